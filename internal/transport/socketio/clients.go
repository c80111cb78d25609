package socketio

import (
	"net"
	"slices"
	"sync"
)

// ClientLimiter admits status clients. Loopback clients are unlimited.
// External clients are capped; when the cap is reached a host may replace its
// own oldest connection (a reloaded dashboard), but a new host is refused so
// it cannot take control away from an existing one.
type ClientLimiter struct {
	mu  sync.Mutex
	max int

	// host per admitted client, "" for loopback
	hosts map[string]string
	// external client ids, oldest first
	external []string
}

// NewClientLimiter creates a limiter allowing max external clients. A max of
// zero or less admits loopback clients only.
func NewClientLimiter(max int) *ClientLimiter {
	return &ClientLimiter{
		max:   max,
		hosts: make(map[string]string),
	}
}

// Admit registers a client connecting from addr (host or host:port). It
// returns false when the client must be refused, and the id of a connection
// from the same host that the new one replaces, if any.
func (l *ClientLimiter) Admit(id, addr string) (ok bool, replaced string) {
	host := hostOf(addr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, known := l.hosts[id]; known {
		return true, ""
	}
	if isLoopback(host) {
		l.hosts[id] = ""
		return true, ""
	}

	if len(l.external) >= l.max {
		i := slices.IndexFunc(l.external, func(other string) bool { return l.hosts[other] == host })
		if i < 0 {
			return false, ""
		}
		replaced = l.external[i]
		l.external = slices.Delete(l.external, i, i+1)
		delete(l.hosts, replaced)
	}

	l.hosts[id] = host
	l.external = append(l.external, id)
	return true, replaced
}

// Release forgets a disconnected client.
func (l *ClientLimiter) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	host, ok := l.hosts[id]
	if !ok {
		return
	}
	delete(l.hosts, id)
	if host != "" {
		l.external = slices.DeleteFunc(l.external, func(other string) bool { return other == id })
	}
}

// Counts returns the number of admitted loopback and external clients.
func (l *ClientLimiter) Counts() (local, external int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts) - len(l.external), len(l.external)
}

func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
