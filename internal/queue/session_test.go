package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/lighthouse/internal/api"
	"github.com/tonimelisma/lighthouse/internal/apitest"
)

type failingFetcher struct{}

func (failingFetcher) GetSettings(context.Context) (*api.ServerSettings, error) {
	return nil, errors.New("offline")
}

func TestLoadSession_PrefersQueued(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.SaveSettings(ctx, validSettings())
	require.NoError(t, err)

	sess, err := LoadSession(ctx, q, failingFetcher{}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, SourceQueued, sess.Source())
	assert.Equal(t, "Boston, MA", sess.Settings().Location.Name)
	assert.False(t, sess.Dirty())
}

func TestLoadSession_FromServer(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	srv := apitest.New(t)

	sess, err := LoadSession(context.Background(), q,
		api.NewClient(srv.URL, nil, nil, quietLogger(), ""), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, SourceServer, sess.Source())
	require.NotNil(t, sess.Settings().Location)
	assert.Equal(t, "MAZ015", sess.Settings().Location.NWSZoneCodes)
}

func TestLoadSession_DefaultsWhenOffline(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)

	sess, err := LoadSession(context.Background(), q, failingFetcher{}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, sess.Source())
	assert.Equal(t, DefaultSettings(), sess.Settings())

	sess, err = LoadSession(context.Background(), q, nil, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, sess.Source())
}

func TestSession_EditsAndSave(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()

	sess := NewSettingsSession(DefaultSettings(), SourceDefault)

	sess.SetLocation(api.Location{Name: "Somerville, MA", Lat: 42.39, Lon: -71.1, NWSZoneCodes: "MAZ014"})
	sess.AddTeam(api.SportsTeam{Name: "Celtics", League: "NBA", Sport: "Basketball", ESPNID: "2"})
	assert.True(t, sess.RemoveTeam("lakers"))
	assert.False(t, sess.RemoveTeam("lakers"))
	sess.AddRoute(api.TrafficRoute{Name: "Commute", Origin: "Somerville, MA", Destination: "Boston, MA"})
	sess.SetReaderTheme(" Dark ")
	sess.BlockSource(9)
	sess.BlockSource(9)
	require.True(t, sess.Dirty())

	_, err := sess.Save(ctx, q)
	require.NoError(t, err)
	assert.False(t, sess.Dirty())

	latest, found, err := q.LatestSettings(ctx)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "Somerville, MA", latest.Location.Name)
	assert.Equal(t, "dark", latest.ReaderTheme)
	assert.Equal(t, []int64{9}, latest.ReaderBlacklistedSources)
	assert.Len(t, latest.TrafficRoutes, 1)

	names := make([]string, 0, len(latest.SportsTeams))
	for _, team := range latest.SportsTeams {
		names = append(names, team.Name)
	}

	assert.Equal(t, []string{"Yankees", "Cowboys", "Celtics"}, names)
	assert.Equal(t, "nba", latest.SportsTeams[2].League)
}

func TestSession_AddTeamReplacesSameID(t *testing.T) {
	t.Parallel()

	sess := NewSettingsSession(api.Settings{}, SourceDefault)
	sess.AddTeam(api.SportsTeam{Name: "Celtics", League: "nba", Sport: "basketball", ESPNID: "2"})
	sess.AddTeam(api.SportsTeam{Name: "Boston Celtics", League: "nba", Sport: "basketball", ESPNID: "2"})

	teams := sess.Settings().SportsTeams
	require.Len(t, teams, 1)
	assert.Equal(t, "Boston Celtics", teams[0].Name)
}

func TestSession_InvalidSaveKeepsDirty(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)

	sess := NewSettingsSession(DefaultSettings(), SourceDefault)
	sess.SetReaderTheme("neon")

	_, err := sess.Save(context.Background(), q)
	require.ErrorIs(t, err, ErrInvalidAction)
	assert.True(t, sess.Dirty())
}

func TestSession_SettingsIsACopy(t *testing.T) {
	t.Parallel()

	sess := NewSettingsSession(DefaultSettings(), SourceDefault)

	doc := sess.Settings()
	doc.Location.Name = "Elsewhere"
	doc.SportsTeams[0].Name = "Nobody"

	assert.Equal(t, "New York, NY", sess.Settings().Location.Name)
	assert.Equal(t, "Lakers", sess.Settings().SportsTeams[0].Name)
}

func TestSession_RouteAndSourceEdits(t *testing.T) {
	t.Parallel()

	sess := NewSettingsSession(api.Settings{}, SourceDefault)
	sess.AddRoute(api.TrafficRoute{Name: "Commute", Origin: "A", Destination: "B"})
	sess.AddRoute(api.TrafficRoute{Name: "commute", Origin: "A", Destination: "C"})

	routes := sess.Settings().TrafficRoutes
	require.Len(t, routes, 1)
	assert.Equal(t, "C", routes[0].Destination)

	assert.True(t, sess.RemoveRoute("COMMUTE"))
	assert.Empty(t, sess.Settings().TrafficRoutes)

	sess.BlockSource(3)
	sess.UnblockSource(3)
	assert.Empty(t, sess.Settings().ReaderBlacklistedSources)
}
