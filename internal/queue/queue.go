// Package queue turns user intents into durable queued actions. Enqueueing
// returns as soon as the action is committed locally; delivery to the
// server is the sync engine's job.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/lighthouse/internal/api"
	"github.com/tonimelisma/lighthouse/internal/store"
)

// ErrInvalidAction is returned when an intent is rejected before it
// reaches the store.
var ErrInvalidAction = errors.New("queue: invalid action")

// Store is the subset of the durable store the queue needs.
type Store interface {
	EnqueueAction(ctx context.Context, t store.ActionType, payload json.RawMessage) (store.Action, error)
	ListPendingActions(ctx context.Context) ([]store.Action, error)
}

// Queue records intents. No deduplication happens here: marking the same
// article read twice enqueues two actions.
type Queue struct {
	store    Store
	logger   *slog.Logger
	validate *validator.Validate
}

// New returns a Queue over s.
func New(s Store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		store:    s,
		logger:   logger,
		validate: newValidator(),
	}
}

// newValidator reports field names by their JSON key.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// MarkRead enqueues a read action for the article at rawURL.
func (q *Queue) MarkRead(ctx context.Context, rawURL string) (store.Action, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return store.Action{}, err
	}

	return q.enqueue(ctx, store.ActionRead, ReadPayload{URL: u})
}

// Rate enqueues a rating action. rating must be -1, 0, or 1.
func (q *Queue) Rate(ctx context.Context, articleID int64, rating int) (store.Action, error) {
	if articleID <= 0 {
		return store.Action{}, fmt.Errorf("%w: article id must be positive, got %d", ErrInvalidAction, articleID)
	}

	if !validRating(rating) {
		return store.Action{}, fmt.Errorf("%w: rating must be -1, 0, or 1, got %d", ErrInvalidAction, rating)
	}

	return q.enqueue(ctx, store.ActionRating, RatingPayload{ArticleID: articleID, Rating: rating})
}

// SaveSettings enqueues a full settings replacement document. Missing team
// and route lists are sent as empty lists so the server clears them.
func (q *Queue) SaveSettings(ctx context.Context, doc api.Settings) (store.Action, error) {
	if err := q.ValidateSettings(doc); err != nil {
		return store.Action{}, err
	}

	if doc.SportsTeams == nil {
		doc.SportsTeams = []api.SportsTeam{}
	}

	if doc.TrafficRoutes == nil {
		doc.TrafficRoutes = []api.TrafficRoute{}
	}

	return q.enqueue(ctx, store.ActionSettings, doc)
}

// ValidateSettings checks a settings document, reporting every problem.
func (q *Queue) ValidateSettings(doc api.Settings) error {
	err := q.validate.Struct(doc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidAction, err)
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("settings: %s fails %q (value %v)",
			strings.TrimPrefix(fe.Namespace(), "Settings."), fe.Tag(), fe.Value()))
	}

	return fmt.Errorf("%w: %w", ErrInvalidAction, errors.Join(errs...))
}

// LatestSettings returns the most recently queued settings document, the
// one a sync pass would send. It reports false when none is queued.
func (q *Queue) LatestSettings(ctx context.Context) (api.Settings, bool, error) {
	actions, err := q.store.ListPendingActions(ctx)
	if err != nil {
		return api.Settings{}, false, err
	}

	var (
		latest store.Action
		found  bool
	)

	for _, a := range actions {
		if a.Type == store.ActionSettings && (!found || a.ID > latest.ID) {
			latest = a
			found = true
		}
	}

	if !found {
		return api.Settings{}, false, nil
	}

	doc, ok := DecodeSettings(latest)
	if !ok {
		return api.Settings{}, false, fmt.Errorf("queue: settings action %d has an unreadable payload", latest.ID)
	}

	return doc, true, nil
}

func (q *Queue) enqueue(ctx context.Context, t store.ActionType, payload any) (store.Action, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return store.Action{}, fmt.Errorf("queue: encoding %s payload: %w", t, err)
	}

	a, err := q.store.EnqueueAction(ctx, t, data)
	if err != nil {
		return store.Action{}, err
	}

	q.logger.Info("action queued",
		slog.Int64("id", a.ID),
		slog.String("type", string(t)),
	)

	return a, nil
}

// NormalizeURL trims and NFC-normalizes an article URL and checks that it
// is an absolute http(s) URL. The server matches read status by exact URL,
// so nothing else about the URL is changed.
func NormalizeURL(raw string) (string, error) {
	s := norm.NFC.String(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: article URL is empty", ErrInvalidAction)
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: article URL %q: %w", ErrInvalidAction, raw, err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: article URL %q must be an absolute http(s) URL", ErrInvalidAction, raw)
	}

	return s, nil
}
