package api

import (
	"encoding/json"
	"fmt"
)

// Rating is one article rating in a sync-ratings batch.
type Rating struct {
	ArticleID int64 `json:"article_id"`
	Rating    int   `json:"rating"`
}

// Settings is the full settings document sent by PUT /api/settings. Each
// save replaces the whole document on the server. The yaml and toml tags
// let the document be authored as a file for `lighthouse settings push`.
type Settings struct {
	Location                 *Location      `json:"location,omitempty" yaml:"location,omitempty" toml:"location,omitempty"`
	SportsTeams              []SportsTeam   `json:"sports_teams" yaml:"sports_teams" toml:"sports_teams" validate:"dive"`
	TrafficRoutes            []TrafficRoute `json:"traffic_routes" yaml:"traffic_routes" toml:"traffic_routes" validate:"dive"`
	ReaderBlacklistedSources []int64        `json:"reader_blacklisted_sources,omitempty" yaml:"reader_blacklisted_sources,omitempty" toml:"reader_blacklisted_sources,omitempty" validate:"dive,gt=0"`
	ReaderCacheHours         int            `json:"reader_cache_hours,omitempty" yaml:"reader_cache_hours,omitempty" toml:"reader_cache_hours,omitempty" validate:"omitempty,min=1,max=720"`
	ReaderTheme              string         `json:"reader_theme,omitempty" yaml:"reader_theme,omitempty" toml:"reader_theme,omitempty" validate:"omitempty,oneof=auto light dark"`
}

// Location is the home location driving weather and local news.
type Location struct {
	Name         string  `json:"location_name" yaml:"name" toml:"name" validate:"required"`
	Lat          float64 `json:"location_lat" yaml:"lat" toml:"lat" validate:"latitude"`
	Lon          float64 `json:"location_lon" yaml:"lon" toml:"lon" validate:"longitude"`
	NWSZoneCodes string  `json:"nws_zone_codes" yaml:"nws_zone_codes" toml:"nws_zone_codes"`
}

// SportsTeam is a tracked team, identified by its ESPN id within a league.
type SportsTeam struct {
	Name   string `json:"name" yaml:"name" toml:"name" validate:"required"`
	League string `json:"league" yaml:"league" toml:"league" validate:"required,lowercase"`
	Sport  string `json:"sport" yaml:"sport" toml:"sport" validate:"required,lowercase"`
	ESPNID string `json:"espn_id" yaml:"espn_id" toml:"espn_id" validate:"required,numeric"`
}

// TrafficRoute is a commute route whose travel time the server estimates.
type TrafficRoute struct {
	Name        string `json:"name" yaml:"name" toml:"name" validate:"required"`
	Origin      string `json:"origin" yaml:"origin" toml:"origin" validate:"required"`
	Destination string `json:"destination" yaml:"destination" toml:"destination" validate:"required"`
}

// ServerSettings is the GET /api/settings response. Its location object
// uses short field names, unlike the PUT document, and teams from the
// server's built-in defaults carry "id" instead of "espn_id".
type ServerSettings struct {
	Location struct {
		Name         string  `json:"name"`
		Lat          float64 `json:"lat"`
		Lon          float64 `json:"lon"`
		NWSZoneCodes string  `json:"nws_zone_codes"`
	} `json:"location"`
	SportsTeams []serverTeam `json:"sports_teams"`
}

type serverTeam struct {
	Name   string `json:"name"`
	League string `json:"league"`
	Sport  string `json:"sport"`
	ESPNID string `json:"espn_id"`
	ID     string `json:"id"`
}

// Settings converts the server view into a replacement document.
func (s *ServerSettings) Settings() Settings {
	doc := Settings{}

	for _, t := range s.SportsTeams {
		id := t.ESPNID
		if id == "" {
			id = t.ID
		}

		doc.SportsTeams = append(doc.SportsTeams, SportsTeam{Name: t.Name, League: t.League, Sport: t.Sport, ESPNID: id})
	}

	if s.Location.Name != "" {
		doc.Location = &Location{
			Name:         s.Location.Name,
			Lat:          s.Location.Lat,
			Lon:          s.Location.Lon,
			NWSZoneCodes: s.Location.NWSZoneCodes,
		}
	}

	return doc
}

// ReadSyncResult is the sync-read-status response body.
type ReadSyncResult struct {
	Success        bool   `json:"success"`
	ArticlesSynced int    `json:"articles_synced"`
	DeviceID       string `json:"device_id"`
}

// RefreshResult is the settings refresh response body.
type RefreshResult struct {
	Success   bool            `json:"success"`
	Refreshed map[string]bool `json:"refreshed"`
}

// Health is the /api/health response body.
type Health struct {
	Status string `json:"status"`
}

// Dashboard is a typed view over the dashboard payload for display. The
// payload itself is cached verbatim; this view only reads the parts the
// CLI summarizes.
type Dashboard struct {
	Weather  *Weather             `json:"weather"`
	Traffic  []TrafficAlert       `json:"traffic"`
	Games    []Game               `json:"games"`
	Sections map[string][]Article `json:"sections"`
	Stats    DashboardStats       `json:"stats"`
}

// Weather is the current conditions block.
type Weather struct {
	Temperature     *float64 `json:"temperature"`
	FeelsLike       *float64 `json:"feels_like"`
	Conditions      string   `json:"conditions"`
	High            *float64 `json:"high"`
	Low             *float64 `json:"low"`
	DressSuggestion string   `json:"dress_suggestion"`
}

// TrafficAlert is one active traffic alert.
type TrafficAlert struct {
	Route       string `json:"route"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Game is one upcoming game for a tracked team.
type Game struct {
	Team     string `json:"team"`
	Opponent string `json:"opponent"`
	GameTime string `json:"game_time"`
	IsHome   bool   `json:"is_home"`
	League   string `json:"league"`
}

// Article is one dashboard article.
type Article struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	SourceName string `json:"source_name"`
	IsRead     bool   `json:"is_read"`
	Rating     *int   `json:"rating"`
}

// DashboardStats is the stats block of the dashboard payload.
type DashboardStats struct {
	TotalUnread int    `json:"total_unread"`
	FetchedAt   string `json:"fetched_at"`
}

// DecodeDashboard parses a dashboard payload into its typed view.
func DecodeDashboard(payload json.RawMessage) (*Dashboard, error) {
	var d Dashboard
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("api: decoding dashboard: %w", err)
	}

	return &d, nil
}
