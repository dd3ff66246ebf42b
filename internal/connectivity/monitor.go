// Package connectivity watches whether the server is reachable and signals
// each offline-to-online transition, which is when queued actions should
// be synced.
package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// DefaultInterval is the probe interval when none is configured.
const DefaultInterval = 30 * time.Second

// Prober checks reachability once. Satisfied by *api.Client.
type Prober interface {
	Health(ctx context.Context) error
}

// Config holds the options for New.
type Config struct {
	Prober   Prober
	Interval time.Duration // between probes, and between websocket redials
	Logger   *slog.Logger

	// WebsocketURL switches the monitor from polling to holding a websocket
	// open: connected means online. Header is sent with the handshake.
	WebsocketURL string
	Header       http.Header
}

// state values.
const (
	stateUnknown int32 = iota
	stateOffline
	stateOnline
)

// Monitor tracks reachability. The first successful probe counts as a
// transition to online.
type Monitor struct {
	prober       Prober
	interval     time.Duration
	logger       *slog.Logger
	websocketURL string
	header       http.Header

	state  atomic.Int32
	events chan struct{}
}

// New creates a Monitor.
func New(cfg *Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Monitor{
		prober:       cfg.Prober,
		interval:     interval,
		logger:       logger,
		websocketURL: cfg.WebsocketURL,
		header:       cfg.Header,
		events:       make(chan struct{}, 1),
	}
}

// Online delivers a value for each transition to online. Transitions that
// arrive while a previous one is unread are merged.
func (m *Monitor) Online() <-chan struct{} {
	return m.events
}

// IsOnline reports the last observed state.
func (m *Monitor) IsOnline() bool {
	return m.state.Load() == stateOnline
}

// Run probes until ctx is canceled, returning nil on clean shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	if m.websocketURL != "" {
		m.runWebsocket(ctx)
	} else {
		m.runPoll(ctx)
	}

	return nil
}

func (m *Monitor) runPoll(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.probe(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	err := m.prober.Health(probeCtx)
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		m.markOffline(err)
		return
	}

	m.markOnline()
}

func (m *Monitor) runWebsocket(ctx context.Context) {
	for {
		m.holdWebsocket(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
	}
}

// holdWebsocket dials and blocks until the connection drops.
func (m *Monitor) holdWebsocket(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, m.interval)
	conn, _, err := websocket.Dial(dialCtx, m.websocketURL, &websocket.DialOptions{HTTPHeader: m.header})
	cancel()

	if err != nil {
		if ctx.Err() == nil {
			m.markOffline(err)
		}

		return
	}

	defer conn.CloseNow()

	m.markOnline()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}

			if errors.Is(err, context.Canceled) {
				return
			}

			m.markOffline(err)

			return
		}
	}
}

func (m *Monitor) markOnline() {
	if m.state.Swap(stateOnline) == stateOnline {
		return
	}

	m.logger.Info("server reachable")

	select {
	case m.events <- struct{}{}:
	default:
	}
}

func (m *Monitor) markOffline(err error) {
	if m.state.Swap(stateOffline) == stateOffline {
		return
	}

	m.logger.Info("server unreachable", slog.String("error", err.Error()))
}
