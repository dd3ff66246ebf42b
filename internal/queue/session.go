package queue

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/tonimelisma/lighthouse/internal/api"
	"github.com/tonimelisma/lighthouse/internal/store"
)

// SettingsSource records where a session's starting document came from.
type SettingsSource string

// Session sources, in the order LoadSession tries them.
const (
	SourceQueued  SettingsSource = "queued"
	SourceServer  SettingsSource = "server"
	SourceDefault SettingsSource = "default"
)

// SettingsFetcher reads the server's current settings.
type SettingsFetcher interface {
	GetSettings(ctx context.Context) (*api.ServerSettings, error)
}

// SettingsSession is the settings document being edited. It is owned by
// whoever renders the settings form and passed explicitly to the code that
// edits it; the sync engine never sees it, only the documents it saves.
type SettingsSession struct {
	doc    api.Settings
	source SettingsSource
	dirty  bool
}

// DefaultSettings mirrors the server's built-in defaults.
func DefaultSettings() api.Settings {
	return api.Settings{
		Location: &api.Location{
			Name:         "New York, NY",
			Lat:          40.7128,
			Lon:          -74.006,
			NWSZoneCodes: "NYZ072,NYZ073",
		},
		SportsTeams: []api.SportsTeam{
			{Name: "Lakers", League: "nba", Sport: "basketball", ESPNID: "13"},
			{Name: "Yankees", League: "mlb", Sport: "baseball", ESPNID: "10"},
			{Name: "Cowboys", League: "nfl", Sport: "football", ESPNID: "6"},
		},
		ReaderCacheHours: 24,
		ReaderTheme:      "auto",
	}
}

// NewSettingsSession starts a session from doc.
func NewSettingsSession(doc api.Settings, source SettingsSource) *SettingsSession {
	return &SettingsSession{doc: cloneSettings(doc), source: source}
}

// LoadSession starts a session from the newest queued settings document,
// else the server's current settings, else the defaults. fetcher may be
// nil to skip the server. An unreachable server is not an error.
func LoadSession(ctx context.Context, q *Queue, fetcher SettingsFetcher, logger *slog.Logger) (*SettingsSession, error) {
	if logger == nil {
		logger = slog.Default()
	}

	doc, found, err := q.LatestSettings(ctx)
	if err != nil {
		return nil, err
	}

	if found {
		return NewSettingsSession(doc, SourceQueued), nil
	}

	if fetcher != nil {
		remote, fetchErr := fetcher.GetSettings(ctx)
		if fetchErr == nil {
			return NewSettingsSession(remote.Settings(), SourceServer), nil
		}

		logger.Warn("server settings unavailable, starting from defaults",
			slog.String("error", fetchErr.Error()),
		)
	}

	return NewSettingsSession(DefaultSettings(), SourceDefault), nil
}

// Settings returns a copy of the current document.
func (s *SettingsSession) Settings() api.Settings {
	return cloneSettings(s.doc)
}

// Source reports where the starting document came from.
func (s *SettingsSession) Source() SettingsSource {
	return s.source
}

// Dirty reports whether the document changed since the session started or
// was last saved.
func (s *SettingsSession) Dirty() bool {
	return s.dirty
}

// SetLocation replaces the home location.
func (s *SettingsSession) SetLocation(loc api.Location) {
	s.doc.Location = &loc
	s.dirty = true
}

// AddTeam adds a team, replacing one with the same league and ESPN id.
func (s *SettingsSession) AddTeam(team api.SportsTeam) {
	team.League = strings.ToLower(team.League)
	team.Sport = strings.ToLower(team.Sport)

	idx := slices.IndexFunc(s.doc.SportsTeams, func(t api.SportsTeam) bool {
		return t.League == team.League && t.ESPNID == team.ESPNID
	})

	if idx >= 0 {
		s.doc.SportsTeams[idx] = team
	} else {
		s.doc.SportsTeams = append(s.doc.SportsTeams, team)
	}

	s.dirty = true
}

// RemoveTeam removes every team with the given name, case-insensitively.
// It reports whether anything was removed.
func (s *SettingsSession) RemoveTeam(name string) bool {
	before := len(s.doc.SportsTeams)
	s.doc.SportsTeams = slices.DeleteFunc(s.doc.SportsTeams, func(t api.SportsTeam) bool {
		return strings.EqualFold(t.Name, name)
	})

	removed := len(s.doc.SportsTeams) != before
	s.dirty = s.dirty || removed

	return removed
}

// AddRoute adds a traffic route, replacing one with the same name.
func (s *SettingsSession) AddRoute(route api.TrafficRoute) {
	idx := slices.IndexFunc(s.doc.TrafficRoutes, func(r api.TrafficRoute) bool {
		return strings.EqualFold(r.Name, route.Name)
	})

	if idx >= 0 {
		s.doc.TrafficRoutes[idx] = route
	} else {
		s.doc.TrafficRoutes = append(s.doc.TrafficRoutes, route)
	}

	s.dirty = true
}

// RemoveRoute removes the route with the given name. It reports whether
// anything was removed.
func (s *SettingsSession) RemoveRoute(name string) bool {
	before := len(s.doc.TrafficRoutes)
	s.doc.TrafficRoutes = slices.DeleteFunc(s.doc.TrafficRoutes, func(r api.TrafficRoute) bool {
		return strings.EqualFold(r.Name, name)
	})

	removed := len(s.doc.TrafficRoutes) != before
	s.dirty = s.dirty || removed

	return removed
}

// SetReaderTheme sets the reader theme (auto, light, or dark).
func (s *SettingsSession) SetReaderTheme(theme string) {
	s.doc.ReaderTheme = strings.ToLower(strings.TrimSpace(theme))
	s.dirty = true
}

// SetReaderCacheHours sets how long the reader keeps fetched articles.
func (s *SettingsSession) SetReaderCacheHours(hours int) {
	s.doc.ReaderCacheHours = hours
	s.dirty = true
}

// BlockSource hides a news source from the reader.
func (s *SettingsSession) BlockSource(id int64) {
	if !slices.Contains(s.doc.ReaderBlacklistedSources, id) {
		s.doc.ReaderBlacklistedSources = append(s.doc.ReaderBlacklistedSources, id)
		s.dirty = true
	}
}

// UnblockSource shows a previously hidden news source again.
func (s *SettingsSession) UnblockSource(id int64) {
	before := len(s.doc.ReaderBlacklistedSources)
	s.doc.ReaderBlacklistedSources = slices.DeleteFunc(s.doc.ReaderBlacklistedSources, func(v int64) bool {
		return v == id
	})

	s.dirty = s.dirty || len(s.doc.ReaderBlacklistedSources) != before
}

// Save enqueues the whole document as a settings replacement and marks the
// session clean.
func (s *SettingsSession) Save(ctx context.Context, q *Queue) (store.Action, error) {
	a, err := q.SaveSettings(ctx, s.doc)
	if err != nil {
		return store.Action{}, err
	}

	s.dirty = false

	return a, nil
}

func cloneSettings(doc api.Settings) api.Settings {
	out := doc

	if doc.Location != nil {
		loc := *doc.Location
		out.Location = &loc
	}

	out.SportsTeams = slices.Clone(doc.SportsTeams)
	out.TrafficRoutes = slices.Clone(doc.TrafficRoutes)
	out.ReaderBlacklistedSources = slices.Clone(doc.ReaderBlacklistedSources)

	return out
}
