package queue

import (
	"encoding/json"
	"strings"

	"github.com/tonimelisma/lighthouse/internal/api"
	"github.com/tonimelisma/lighthouse/internal/store"
)

// ReadPayload is the stored payload of a read action. Reads are keyed by
// URL because the server syncs read status by URL.
type ReadPayload struct {
	URL string `json:"url"`
}

// RatingPayload is the stored payload of a rating action.
type RatingPayload struct {
	ArticleID int64 `json:"article_id"`
	Rating    int   `json:"rating"`
}

// Valid ratings.
const (
	RatingDown    = -1
	RatingNeutral = 0
	RatingUp      = 1
)

// DecodeRead returns the URL a read action carries. It reports false when
// the payload is unreadable or has no URL.
func DecodeRead(a store.Action) (string, bool) {
	if a.Type != store.ActionRead {
		return "", false
	}

	var p ReadPayload
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return "", false
	}

	url := strings.TrimSpace(p.URL)

	return url, url != ""
}

// DecodeRating returns the rating a rating action carries. It reports
// false when the payload is unreadable or the rating is out of range.
func DecodeRating(a store.Action) (api.Rating, bool) {
	if a.Type != store.ActionRating {
		return api.Rating{}, false
	}

	var p struct {
		ArticleID *int64 `json:"article_id"`
		Rating    *int   `json:"rating"`
	}
	if err := json.Unmarshal(a.Payload, &p); err != nil || p.ArticleID == nil || p.Rating == nil {
		return api.Rating{}, false
	}

	if !validRating(*p.Rating) {
		return api.Rating{}, false
	}

	return api.Rating{ArticleID: *p.ArticleID, Rating: *p.Rating}, true
}

// DecodeSettings returns the settings document a settings action carries.
func DecodeSettings(a store.Action) (api.Settings, bool) {
	if a.Type != store.ActionSettings {
		return api.Settings{}, false
	}

	var doc api.Settings
	if err := json.Unmarshal(a.Payload, &doc); err != nil {
		return api.Settings{}, false
	}

	return doc, true
}

func validRating(r int) bool {
	return r >= RatingDown && r <= RatingUp
}
