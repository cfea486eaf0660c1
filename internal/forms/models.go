// Package forms owns the form-session store: one record per lead-form filling
// attempt, with an append-only step history that the step analyzer consumes.
package forms

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepHistoryParseError is a soft error: one session's serialized history is
// malformed. Aggregations skip the record and continue with the batch.
type StepHistoryParseError struct {
	SessionID uint
	Err       error
}

func (e *StepHistoryParseError) Error() string {
	return fmt.Sprintf("malformed step history on form session %d: %v", e.SessionID, e.Err)
}

func (e *StepHistoryParseError) Unwrap() error {
	return e.Err
}

// FormSessionNotFoundError is returned when a form event references an
// unknown form session id.
type FormSessionNotFoundError struct {
	SessionID uint
}

func (e *FormSessionNotFoundError) Error() string {
	return fmt.Sprintf("form session not found: %d", e.SessionID)
}

// NewFormSessionNotFoundError creates a new FormSessionNotFoundError
func NewFormSessionNotFoundError(sessionID uint) *FormSessionNotFoundError {
	return &FormSessionNotFoundError{SessionID: sessionID}
}

// StepEvent is one observation of a visitor passing through a funnel step.
// Revisits append a new event rather than mutating the old one, so the same
// step number may appear multiple times in a history; analyzers treat each
// appearance as an independent observation.
type StepEvent struct {
	Step       float64     `json:"step"`
	StepName   string      `json:"stepName"`
	EnteredAt  time.Time   `json:"enteredAt"`
	LeftAt     *time.Time  `json:"leftAt,omitempty"`
	Duration   *int        `json:"duration,omitempty"` // seconds on step
	Answer     interface{} `json:"answer,omitempty"`   // string, []string or number per step kind
	WasSkipped bool        `json:"wasSkipped,omitempty"`
	WentBack   bool        `json:"wentBack,omitempty"`
}

// FormSession represents one attempt at filling the multi-step lead form.
// StepHistory is the JSON-serialized append-only log of StepEvents in real
// traversal order.
type FormSession struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	VisitorID string `gorm:"index" json:"visitor_id"`

	StartedAt time.Time `gorm:"index;not null" json:"started_at"`
	Completed bool      `gorm:"index;not null;default:false" json:"completed"`
	Abandoned bool      `gorm:"not null;default:false" json:"abandoned"`

	ExitStep       *float64 `json:"exit_step"`
	MaxStepReached float64  `gorm:"not null;default:0" json:"max_step_reached"` // monotonic
	TotalDuration  int      `gorm:"not null;default:0" json:"total_duration"`   // seconds, set on completion

	DeviceType string `gorm:"index" json:"device_type"`
	UTMSource  string `gorm:"index" json:"utm_source"`

	StepHistory string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// History parses the serialized step history. A malformed blob yields a
// StepHistoryParseError so callers can skip the record without aborting a
// whole aggregation pass.
func (fs *FormSession) History() ([]StepEvent, error) {
	if fs.StepHistory == "" {
		return nil, nil
	}
	var events []StepEvent
	if err := json.Unmarshal([]byte(fs.StepHistory), &events); err != nil {
		return nil, &StepHistoryParseError{SessionID: fs.ID, Err: err}
	}
	return events, nil
}

// EncodeHistory serializes a step event log into the stored blob form.
func EncodeHistory(events []StepEvent) (string, error) {
	data, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("failed to encode step history: %w", err)
	}
	return string(data), nil
}
