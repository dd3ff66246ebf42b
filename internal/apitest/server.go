// Package apitest runs an in-process fake Lighthouse server for tests. It
// records every request, keeps enough state to answer like the real server,
// and can be told to fail a route with a status code or a dropped
// connection.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	gosync "sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// DropConnection as a failure status makes the route close the connection
// without a response, which clients see as a network error.
const DropConnection = -1

// Route paths served by the fake.
const (
	PathSyncReadStatus = "/api/articles/sync-read-status"
	PathSyncRatings    = "/api/articles/sync-ratings"
	PathSettings       = "/api/settings"
	PathRefresh        = "/api/settings/refresh"
	PathDashboard      = "/api/dashboard"
	PathHealth         = "/api/health"
	PathWebsocket      = "/api/ws"
)

// Request is one recorded request.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Rating mirrors one entry of a sync-ratings batch as the server received it.
type Rating struct {
	ArticleID int64 `json:"article_id"`
	Rating    int   `json:"rating"`
}

// DefaultDashboard is served until SetDashboard replaces it.
const DefaultDashboard = `{"weather":{"temperature":61,"conditions":"Cloudy","high":64,"low":50},` +
	`"traffic":[],"games":[{"team":"Celtics","opponent":"Knicks","game_time":"2026-01-02T00:30:00Z","is_home":true,"league":"nba"}],` +
	`"sections":{"boston_sports":[{"id":1,"title":"Opening night","url":"https://example.com/a","source_name":"Globe","is_read":false}],` +
	`"national_news":[]},"stats":{"total_unread":1,"fetched_at":"2026-01-01T12:00:00"}}`

// Server is the fake. Its zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu        gosync.Mutex
	requests  []Request
	failures  map[string]int
	token     string
	dashboard json.RawMessage
	settings  json.RawMessage
	read      map[string]bool
	ratings   map[int64]int
	sockets   map[*websocket.Conn]context.CancelFunc
}

// New starts a fake server and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		failures:  make(map[string]int),
		dashboard: json.RawMessage(DefaultDashboard),
		read:      make(map[string]bool),
		ratings:   make(map[int64]int),
		sockets:   make(map[*websocket.Conn]context.CancelFunc),
	}

	s.Server = httptest.NewServer(s.routes())

	t.Cleanup(func() {
		s.CloseSockets()
		s.Server.Close()
	})

	return s
}

func (s *Server) routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.record, s.inject, s.authorize)
	engine.POST(PathSyncReadStatus, s.handleSyncReadStatus)
	engine.POST(PathSyncRatings, s.handleSyncRatings)
	engine.GET(PathSettings, s.handleGetSettings)
	engine.PUT(PathSettings, s.handlePutSettings)
	engine.POST(PathRefresh, s.handleRefresh)
	engine.GET(PathDashboard, s.handleDashboard)
	engine.GET(PathHealth, s.handleHealth)
	engine.GET(PathWebsocket, s.handleWebsocket)

	return engine
}

func routeKey(method, path string) string {
	return method + " " + path
}

// Fail makes every following request to the route answer with status, or
// drop the connection when status is DropConnection.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[routeKey(method, path)] = status
}

// Recover clears a failure set by Fail.
func (s *Server) Recover(method, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failures, routeKey(method, path))
}

// RequireToken makes every route answer 401 unless the request carries
// the bearer token.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
}

// SetDashboard replaces the dashboard payload.
func (s *Server) SetDashboard(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dashboard = json.RawMessage(payload)
}

// Requests returns the recorded requests for a route, in arrival order.
// An empty method and path return every request.
func (s *Server) Requests(method, path string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Request

	for _, r := range s.requests {
		if (method == "" || r.Method == method) && (path == "" || r.Path == path) {
			out = append(out, r)
		}
	}

	return out
}

// Count returns how many requests reached a route.
func (s *Server) Count(method, path string) int {
	return len(s.Requests(method, path))
}

// Reset forgets recorded requests. Server-side state is kept.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = nil
}

// IsRead reports whether a URL has been marked read.
func (s *Server) IsRead(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read[url]
}

// RatingFor returns the stored rating for an article.
func (s *Server) RatingFor(articleID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.ratings[articleID]

	return r, ok
}

// Settings returns the last settings document accepted by PUT, or nil.
func (s *Server) Settings() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings
}

// CloseSockets closes every open websocket, as a server restart would.
func (s *Server) CloseSockets() {
	s.mu.Lock()
	sockets := s.sockets
	s.sockets = make(map[*websocket.Conn]context.CancelFunc)
	s.mu.Unlock()

	for conn, cancel := range sockets {
		cancel()
		_ = conn.Close(websocket.StatusGoingAway, "server closing")
	}
}

// WebsocketURL returns the ws:// URL of the websocket route.
func (s *Server) WebsocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + PathWebsocket
}

func (s *Server) record(c *gin.Context) {
	var body []byte
	if c.Request.Body != nil {
		body, _ = io.ReadAll(c.Request.Body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Query:  c.Request.URL.RawQuery,
		Header: c.Request.Header.Clone(),
		Body:   body,
	})
	s.mu.Unlock()

	c.Next()
}

func (s *Server) inject(c *gin.Context) {
	s.mu.Lock()
	status, failing := s.failures[routeKey(c.Request.Method, c.Request.URL.Path)]
	s.mu.Unlock()

	if !failing {
		c.Next()
		return
	}

	if status == DropConnection {
		conn, _, err := c.Writer.Hijack()
		if err == nil {
			conn.Close()
		}

		c.Abort()

		return
	}

	c.AbortWithStatusJSON(status, gin.H{"detail": "injected failure"})
}

func (s *Server) authorize(c *gin.Context) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token != "" && c.GetHeader("Authorization") != "Bearer "+token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "not authenticated"})
		return
	}

	c.Next()
}

func (s *Server) handleSyncReadStatus(c *gin.Context) {
	var req struct {
		ArticleURLs []string `json:"article_urls"`
		DeviceID    string   `json:"device_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceID == "" || req.ArticleURLs == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "article_urls and device_id required"})
		return
	}

	s.mu.Lock()
	synced := 0

	for _, u := range req.ArticleURLs {
		if !s.read[u] {
			s.read[u] = true
			synced++
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "articles_synced": synced, "device_id": req.DeviceID})
}

func (s *Server) handleSyncRatings(c *gin.Context) {
	var req struct {
		Ratings  []Rating `json:"ratings"`
		DeviceID string   `json:"device_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceID == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "ratings and device_id required"})
		return
	}

	for _, r := range req.Ratings {
		if r.Rating < -1 || r.Rating > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Rating must be -1, 0, or 1"})
			return
		}
	}

	s.mu.Lock()
	for _, r := range req.Ratings {
		s.ratings[r.ArticleID] = r.Rating
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "ratings_synced": len(req.Ratings)})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	s.mu.Lock()
	stored := s.settings
	s.mu.Unlock()

	var doc struct {
		Location *struct {
			Name         string  `json:"location_name"`
			Lat          float64 `json:"location_lat"`
			Lon          float64 `json:"location_lon"`
			NWSZoneCodes string  `json:"nws_zone_codes"`
		} `json:"location"`
		SportsTeams []map[string]string `json:"sports_teams"`
	}

	if stored != nil {
		_ = json.Unmarshal(stored, &doc)
	}

	location := gin.H{"name": "Boston, MA", "lat": 42.3601, "lon": -71.0589, "nws_zone_codes": "MAZ015"}
	if doc.Location != nil {
		location = gin.H{
			"name":           doc.Location.Name,
			"lat":            doc.Location.Lat,
			"lon":            doc.Location.Lon,
			"nws_zone_codes": doc.Location.NWSZoneCodes,
		}
	}

	teams := doc.SportsTeams
	if teams == nil {
		teams = []map[string]string{{"name": "Celtics", "league": "nba", "sport": "basketball", "espn_id": "2"}}
	}

	c.JSON(http.StatusOK, gin.H{"location": location, "sports_teams": teams})
}

func (s *Server) handlePutSettings(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || !json.Valid(body) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid settings document"})
		return
	}

	s.mu.Lock()
	s.settings = json.RawMessage(body)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Settings updated"})
}

func (s *Server) handleRefresh(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "refreshed": gin.H{"weather": true, "sports": true}})
}

func (s *Server) handleDashboard(c *gin.Context) {
	s.mu.Lock()
	payload := s.dashboard
	s.mu.Unlock()

	c.Data(http.StatusOK, "application/json", payload)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleWebsocket holds the connection open until the client leaves or
// CloseSockets is called.
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())

	s.mu.Lock()
	s.sockets[conn] = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sockets, conn)
		s.mu.Unlock()

		cancel()
	}()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
