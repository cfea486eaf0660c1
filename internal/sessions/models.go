// Package sessions owns the visitor session and page view stores: the raw
// activity records behind the real-time dashboard. Sessions are created on
// session_start, mutated by every later event that references their id, and
// closed either explicitly or by the liveness sweep.
package sessions

import (
	"fmt"
	"time"
)

// SessionNotFoundError is returned when an event references a session id that
// does not exist.
type SessionNotFoundError struct {
	SessionID uint
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("visitor session not found: %d", e.SessionID)
}

// NewSessionNotFoundError creates a new SessionNotFoundError
func NewSessionNotFoundError(sessionID uint) *SessionNotFoundError {
	return &SessionNotFoundError{SessionID: sessionID}
}

// VisitorSession represents one visitor's browsing session. Attribution
// fields (referrer, UTM) are captured once at session start and never change;
// the counters are mutated by page views and heartbeats.
type VisitorSession struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	VisitorID string `gorm:"index;not null" json:"visitor_id"`

	Device  string `gorm:"index" json:"device"`
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Country string `json:"country"`

	Referrer    string `json:"referrer"`
	UTMSource   string `gorm:"index" json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`

	PageViews int `gorm:"not null;default:0" json:"page_views"`
	Duration  int `gorm:"not null;default:0" json:"duration"` // seconds of active time

	IsActive  bool       `gorm:"index;not null;default:true" json:"is_active"`
	LastPing  time.Time  `gorm:"index;not null" json:"last_ping"`
	StartedAt time.Time  `gorm:"index;not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageView represents a single page view within a session. Duration and
// scroll depth stay null until the matching page_exit arrives; after that the
// record is immutable.
type PageView struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID uint   `gorm:"index:idx_session_path;not null" json:"session_id"`
	VisitorID string `gorm:"index" json:"visitor_id"`

	Path     string `gorm:"index:idx_session_path;not null" json:"path"`
	Title    string `json:"title"`
	Referrer string `json:"referrer"`

	ViewedAt    time.Time `gorm:"index;not null" json:"viewed_at"`
	Duration    *int      `json:"duration"`     // seconds, set on page_exit
	ScrollDepth *int      `json:"scroll_depth"` // 0-100, set on page_exit

	CreatedAt time.Time `json:"created_at"`
}
