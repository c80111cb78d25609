package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edumarques81/beebridge/internal/config"
	"github.com/edumarques81/beebridge/internal/domain/pathmap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := config.Default()
	if cfg.Communication.Directory != def.Communication.Directory {
		t.Errorf("expected %q, got %q", def.Communication.Directory, cfg.Communication.Directory)
	}
	if cfg.SeekAmount() != 5*time.Second {
		t.Errorf("expected 5s seek, got %v", cfg.SeekAmount())
	}
	if cfg.MediaControls.NotifyCommand != "/VolumeDown" {
		t.Errorf("expected /VolumeDown, got %q", cfg.MediaControls.NotifyCommand)
	}
	if cfg.RPC.Enabled || cfg.RPC.OnlineCovers {
		t.Error("rpc and online covers should be disabled by default")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.MediaControls.Enabled {
		t.Error("expected defaults for empty file")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
commands:
  wine_command: wine64
  watch_process: true
communication:
  directory: /run/user/1000/mb
media_controls:
  seek_amount: 10
  send_volume: false
  volume_ack_timeout: 500ms
  notify_command: ""
rpc:
  enabled: true
  service: imgur
  online_covers: true
detach_on_stop: true
status:
  enabled: true
  listen: 0.0.0.0:4000
logging:
  level: debug
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Commands.WineCommand != "wine64" || !cfg.Commands.WatchProcess {
		t.Errorf("unexpected commands %+v", cfg.Commands)
	}
	// Unset keys keep their defaults
	if cfg.Commands.PlayerLocation != config.Default().Commands.PlayerLocation {
		t.Errorf("expected default player location, got %q", cfg.Commands.PlayerLocation)
	}
	if cfg.Communication.Directory != "/run/user/1000/mb" {
		t.Errorf("unexpected directory %q", cfg.Communication.Directory)
	}
	if cfg.SeekAmount() != 10*time.Second || cfg.MediaControls.SendVolume {
		t.Errorf("unexpected media controls %+v", cfg.MediaControls)
	}
	if cfg.MediaControls.VolumeAckTimeout != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", cfg.MediaControls.VolumeAckTimeout)
	}
	if cfg.MediaControls.NotifyCommand != "" {
		t.Errorf("expected notify command disabled, got %q", cfg.MediaControls.NotifyCommand)
	}
	if !cfg.RPC.Enabled || cfg.RPC.Service != "imgur" || cfg.RPC.ClientID == "" || !cfg.RPC.OnlineCovers {
		t.Errorf("unexpected rpc %+v", cfg.RPC)
	}
	if !cfg.DetachOnStop || cfg.ExitWithPlugin {
		t.Error("unexpected lifecycle flags")
	}
	if !cfg.Status.Enabled || cfg.Status.Listen != "0.0.0.0:4000" {
		t.Errorf("unexpected status %+v", cfg.Status)
	}
}

func TestLoad_RuleTables(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []config.Rule
	}{
		{
			name: "single mapping",
			yaml: "music_file_mapper:\n  from: \"D:/Music\"\n  to: /mnt/music\n",
			want: []config.Rule{{From: "D:/Music", To: "/mnt/music"}},
		},
		{
			name: "list",
			yaml: "music_file_mapper:\n  - from: \"D:/Music\"\n    to: /mnt/music\n  - from: \"E:/\"\n    to: /mnt/e/\n",
			want: []config.Rule{{From: "D:/Music", To: "/mnt/music"}, {From: "E:/", To: "/mnt/e/"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, tt.yaml))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(cfg.MusicFileMapper) != len(tt.want) {
				t.Fatalf("expected %d rules, got %d", len(tt.want), len(cfg.MusicFileMapper))
			}
			for i, r := range tt.want {
				if cfg.MusicFileMapper[i] != r {
					t.Errorf("rule %d: expected %+v, got %+v", i, r, cfg.MusicFileMapper[i])
				}
			}
			tables := cfg.Tables()
			if len(tables.Music) != len(tt.want) || len(tables.Other) != 1 {
				t.Errorf("unexpected tables %+v", tables)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		invalid bool
	}{
		{"empty directory", "communication:\n  directory: \"\"\n", true},
		{"malformed document", "media_controls: [\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, config.ErrInvalid) != tt.invalid {
				t.Errorf("expected ErrInvalid=%v, got %v", tt.invalid, err)
			}
		})
	}
}

func TestLoad_BrokenSettingsFallBack(t *testing.T) {
	def := config.Default()

	tests := []struct {
		name  string
		yaml  string
		check func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "zero seek amount",
			yaml: "media_controls:\n  seek_amount: 0\n",
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.SeekAmount() != def.SeekAmount() {
					t.Errorf("expected %v, got %v", def.SeekAmount(), cfg.SeekAmount())
				}
			},
		},
		{
			name: "negative ack timeout",
			yaml: "media_controls:\n  volume_ack_timeout: -1s\n",
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.MediaControls.VolumeAckTimeout != def.MediaControls.VolumeAckTimeout {
					t.Errorf("expected %v, got %v", def.MediaControls.VolumeAckTimeout, cfg.MediaControls.VolumeAckTimeout)
				}
			},
		},
		{
			name: "bad log level",
			yaml: "logging:\n  level: loud\n",
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Logging.Level != def.Logging.Level {
					t.Errorf("expected %q, got %q", def.Logging.Level, cfg.Logging.Level)
				}
			},
		},
		{
			name: "unknown key keeps the rest",
			yaml: "media_controls:\n  seek: 5\n  seek_amount: 9\ndetach_on_stop: true\n",
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.SeekAmount() != 9*time.Second || !cfg.DetachOnStop {
					t.Errorf("known keys should still apply, got seek %v detach %v", cfg.SeekAmount(), cfg.DetachOnStop)
				}
			},
		},
		{
			name: "mistyped value",
			yaml: "media_controls:\n  seek_amount: lots\nexit_with_plugin: true\n",
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.SeekAmount() != def.SeekAmount() || !cfg.ExitWithPlugin {
					t.Errorf("unexpected seek %v exit %v", cfg.SeekAmount(), cfg.ExitWithPlugin)
				}
			},
		},
		{
			name: "scalar mapper",
			yaml: "music_file_mapper: nope\n",
			check: func(t *testing.T, cfg *config.Config) {
				if len(cfg.MusicFileMapper) != 1 || cfg.MusicFileMapper[0] != def.MusicFileMapper[0] {
					t.Errorf("expected default music rule, got %+v", cfg.MusicFileMapper)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, tt.yaml))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestDisableBroken(t *testing.T) {
	cfg := config.Default()
	cfg.RPC.Enabled = true
	cfg.RPC.Service = "catbox"
	cfg.Status.Enabled = true
	cfg.Status.Listen = "no-port"

	problems := cfg.DisableBroken()
	if len(problems) != 2 {
		t.Fatalf("expected 2 problems, got %d: %v", len(problems), problems)
	}
	if cfg.RPC.Enabled || cfg.Status.Enabled {
		t.Error("broken features should be disabled")
	}
	// The rest stays on
	if !cfg.MediaControls.Enabled {
		t.Error("media controls should stay enabled")
	}
}

func TestVars(t *testing.T) {
	t.Setenv("HOME", "/home/alex")
	t.Setenv("USER", "alex")

	cfg := config.Default()
	v, err := cfg.Vars()
	if err != nil {
		t.Fatalf("Vars failed: %v", err)
	}
	want := pathmap.Vars{HomeDir: "/home/alex", Username: "alex", WinePrefix: "/home/alex/.wine"}
	if v != want {
		t.Errorf("expected %+v, got %+v", want, v)
	}

	tr, err := pathmap.NewTranslator(cfg.Tables(), v)
	if err != nil {
		t.Fatalf("NewTranslator failed: %v", err)
	}
	if got := tr.Map(`C:\Users\alex\Music\A\01.flac`); got != "/home/alex/Music/A/01.flac" {
		t.Errorf("unexpected mapping %q", got)
	}
	if got := tr.Map("C:/users/Temp/cover.jpg"); got != "/home/alex/.wine/drive_c/users/Temp/cover.jpg" {
		t.Errorf("unexpected mapping %q", got)
	}

	cfg.Commands.WinePrefix = "{nope}/.wine"
	if _, err := cfg.Vars(); !errors.Is(err, pathmap.ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
	if cfg.WinePrefix() != "{nope}/.wine" {
		t.Errorf("expected raw prefix, got %q", cfg.WinePrefix())
	}
}

func TestCachePath(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/var/cache/test")
	cfg := config.Default()
	if got := cfg.CachePath(); got != "/var/cache/test/beebridge/uploads.db" {
		t.Errorf("unexpected cache path %q", got)
	}
	cfg.RPC.CachePath = "/tmp/x.db"
	if got := cfg.CachePath(); got != "/tmp/x.db" {
		t.Errorf("unexpected cache path %q", got)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beebridge", "config.yaml")
	if err := config.WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "music_file_mapper:") {
		t.Errorf("expected mapper in default file:\n%s", data)
	}

	// The written file loads back to the defaults
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MediaControls != config.Default().MediaControls {
		t.Errorf("expected default media controls, got %+v", cfg.MediaControls)
	}

	// An existing file is left alone
	os.WriteFile(path, []byte("detach_on_stop: true\n"), 0644)
	if err := config.WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "detach_on_stop: true\n" {
		t.Errorf("existing file overwritten: %q", data)
	}
}
