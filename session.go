package main

import (
	"log/slog"
	"net/http"

	"github.com/tonimelisma/lighthouse/internal/api"
	"github.com/tonimelisma/lighthouse/internal/config"
	"github.com/tonimelisma/lighthouse/internal/dashboard"
	"github.com/tonimelisma/lighthouse/internal/identity"
	"github.com/tonimelisma/lighthouse/internal/queue"
	"github.com/tonimelisma/lighthouse/internal/store"
	isync "github.com/tonimelisma/lighthouse/internal/sync"
)

// Session wires the offline core for one command: the durable store, the
// device identity, the server client, and the queue on top of the store.
// Nothing touches disk or network until a method is called.
type Session struct {
	Cfg      *config.Config
	Store    *store.Store
	Identity *identity.Identity
	Client   *api.Client
	Queue    *queue.Queue

	// syncClient never retries: one request per group per pass.
	syncClient *api.Client
	logger     *slog.Logger
}

// NewSession creates a Session from resolved config.
func NewSession(cfg *config.Config, logger *slog.Logger) *Session {
	st := store.New(cfg.DBPath(), store.Options{
		MaxQueueSize:  cfg.MaxQueueSize,
		MaxStoreBytes: cfg.MaxStoreBytes(),
	}, logger)

	return &Session{
		Cfg:      cfg,
		Store:    st,
		Identity: identity.New(cfg.DevicePath(), logger),
		Client:   newAPIClient(cfg, cfg.MaxRetries, logger),
		Queue:    queue.New(st, logger),

		syncClient: newAPIClient(cfg, 0, logger),
		logger:     logger,
	}
}

// newAPIClient builds a server client bounded by request_timeout that
// retries transient failures up to retries times.
func newAPIClient(cfg *config.Config, retries int, logger *slog.Logger) *api.Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeoutDuration()}

	client := api.NewClient(cfg.ServerURL, httpClient, api.StaticToken(cfg.APIToken), logger, cfg.UserAgent)
	client.SetMaxRetries(retries)

	return client
}

// Engine returns a sync engine over this session.
func (s *Session) Engine() *isync.Engine {
	return isync.NewEngine(&isync.EngineConfig{
		Store:        s.Store,
		Transport:    s.syncClient,
		Identity:     s.Identity,
		Logger:       s.logger,
		MaxActionAge: s.Cfg.MaxActionAgeDuration(),
	})
}

// Loader returns a dashboard loader backed by the snapshot cache.
func (s *Session) Loader(includeRead bool) *dashboard.Loader {
	return dashboard.NewLoader(s.Client, dashboard.NewCache(s.Store), includeRead, s.logger)
}

// Close releases the store.
func (s *Session) Close() error {
	return s.Store.Close()
}
