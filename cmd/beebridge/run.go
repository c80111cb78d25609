package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/beebridge/internal/config"
	"github.com/edumarques81/beebridge/internal/daemon"
	"github.com/edumarques81/beebridge/internal/domain/artwork"
	"github.com/edumarques81/beebridge/internal/domain/presence"
	"github.com/edumarques81/beebridge/internal/infra/cache"
	"github.com/edumarques81/beebridge/internal/infra/coverart"
	"github.com/edumarques81/beebridge/internal/infra/discord"
	"github.com/edumarques81/beebridge/internal/infra/mpris"
	"github.com/edumarques81/beebridge/internal/infra/upload"
	"github.com/edumarques81/beebridge/internal/transport/socketio"
	"github.com/edumarques81/beebridge/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runBridge(ctx, resolvedConfigPath())
	},
}

func runBridge(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logFile := ""
	if cfg.Logging.File {
		if err := os.MkdirAll(cfg.Communication.Directory, 0o755); err == nil {
			logFile = cfg.LogFile()
		}
	}
	closer, err := setupLogging(level, logFile)
	if err != nil {
		log.Warn().Err(err).Msg("Logging to stderr only")
	}
	defer closer.Close()

	log.Info().
		Str("version", version.GetInfo().String()).
		Str("config", path).
		Str("dir", cfg.Communication.Directory).
		Msg("Starting bridge")

	var opts []daemon.Option

	if cfg.MediaControls.Enabled {
		session, err := mpris.Connect()
		if err != nil {
			log.Warn().Err(err).Msg("No session bus, media controls disabled")
		} else {
			opts = append(opts, daemon.WithSession(session))
		}
	}

	var db *cache.DB
	if cfg.RPC.Enabled {
		var mirror *presence.Mirror
		mirror, db = newMirror(cfg)
		opts = append(opts, daemon.WithMirror(mirror))
	}

	d := daemon.New(config.NewHolder(cfg, path), opts...)

	var srv *http.Server
	var sock *socketio.Server
	if cfg.Status.Enabled {
		sock, err = socketio.NewServer(d.State(), d.Commands(),
			socketio.WithMaxExternalClients(cfg.Status.MaxExternalClients),
			socketio.WithAllowedOrigins(cfg.Status.AllowedOrigins),
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create status server")
		} else {
			d.AddListener(sock)
			srv = &http.Server{
				Addr:              cfg.Status.Listen,
				Handler:           newRouter(d.State(), sock, cfg.Status.AllowedOrigins),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("Status server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("Status server error")
				}
			}()
		}
	}

	runErr := d.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server shutdown error")
		}
		cancel()
		sock.Close()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close upload cache")
		}
	}
	return runErr
}

// newMirror builds the presence mirror. The upload cache is optional: when
// it cannot be opened, uploads are remembered in memory only.
func newMirror(cfg *config.Config) (*presence.Mirror, *cache.DB) {
	client := discord.NewClient(cfg.RPC.ClientID)

	var uploader presence.Uploader
	if svc, err := upload.New(cfg.RPC.Service); err != nil {
		log.Error().Err(err).Str("service", cfg.RPC.Service).Msg("Cover uploads disabled")
	} else {
		uploader = svc
	}

	options := []presence.Option{
		presence.WithArtResolver(artwork.NewResolver(nil)),
	}
	if cfg.RPC.OnlineCovers {
		options = append(options, presence.WithCoverFinder(coverart.New()))
	}

	db := cache.NewDB(cfg.CachePath())
	if err := db.Open(); err != nil {
		log.Warn().Err(err).Str("path", db.Path()).Msg("Upload cache unavailable")
		db = nil
	} else {
		options = append(options, presence.WithStore(cache.NewDAO(db)))
	}

	return presence.NewMirror(client, uploader, presence.Options{}, options...), db
}
