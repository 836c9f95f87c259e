// Package shutdown signals a graceful stop once the server has gone idle.
package shutdown

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Config configures a Monitor.
type Config struct {
	// Timeout is the inactivity period before shutdown. Zero or negative disables it.
	Timeout time.Duration

	// CheckInterval defaults to 10s.
	CheckInterval time.Duration

	// Busy reports work in progress outside HTTP requests, such as running
	// tasks. A busy server is never idle.
	Busy func() int

	// Skip marks requests that do not count as activity. Defaults to IsHealthCheck.
	Skip func(*http.Request) bool

	Logger *slog.Logger
}

// Monitor tracks request and task activity and closes Done when the server
// has been idle for longer than the timeout.
type Monitor struct {
	timeout  time.Duration
	interval time.Duration
	busy     func() int
	skip     func(*http.Request) bool
	logger   *slog.Logger
	now      func() time.Time

	lastActivity atomic.Int64 // unix nanos
	inFlight     atomic.Int64

	stop chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a monitor. It does nothing until Start.
func New(cfg Config) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.Skip == nil {
		cfg.Skip = IsHealthCheck
	}
	if cfg.Busy == nil {
		cfg.Busy = func() int { return 0 }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &Monitor{
		timeout:  cfg.Timeout,
		interval: cfg.CheckInterval,
		busy:     cfg.Busy,
		skip:     cfg.Skip,
		logger:   cfg.Logger.With("component", "idle"),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.Touch()
	return m
}

// Enabled reports whether idle shutdown is on.
func (m *Monitor) Enabled() bool {
	return m.timeout > 0
}

// Start begins checking for idleness.
func (m *Monitor) Start() {
	if !m.Enabled() {
		m.logger.Debug("idle shutdown disabled")
		return
	}
	m.logger.Info("idle shutdown enabled", "timeout", m.timeout)

	m.wg.Add(1)
	go m.run()
}

// Stop ends monitoring. Done is not closed by Stop.
func (m *Monitor) Stop() {
	close(m.stop)
	m.wg.Wait()
}

// Done is closed once the idle timeout is reached.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Touch records activity now.
func (m *Monitor) Touch() {
	m.lastActivity.Store(m.now().UnixNano())
}

// IdleFor returns how long nothing has happened.
func (m *Monitor) IdleFor() time.Duration {
	return m.now().Sub(time.Unix(0, m.lastActivity.Load()))
}

// Middleware counts in-flight requests as activity.
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		m.inFlight.Add(1)
		m.Touch()
		defer func() {
			m.inFlight.Add(-1)
			m.Touch()
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if m.check() {
				close(m.done)
				return
			}
		}
	}
}

// check reports whether the server is idle. Busy work counts as activity.
func (m *Monitor) check() bool {
	if m.inFlight.Load() > 0 {
		return false
	}
	if n := m.busy(); n > 0 {
		m.Touch()
		return false
	}
	idle := m.IdleFor()
	if idle <= m.timeout {
		return false
	}
	m.logger.Info("idle timeout reached, signaling graceful shutdown",
		"idle_time", idle.Round(time.Second),
		"timeout", m.timeout,
	)
	return true
}

// IsHealthCheck reports whether r is a liveness check.
func IsHealthCheck(r *http.Request) bool {
	switch r.URL.Path {
	case "/health", "/healthz", "/livez", "/readyz":
		return true
	}
	return false
}
