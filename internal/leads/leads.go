// Package leads owns the lead store: converted form submissions with their
// marketing touchpoint journeys. The attribution summarizer and the overview
// dashboard read from here.
package leads

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Lead statuses, in rough pipeline order.
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQualified = "qualified"
	StatusConverted = "converted"
	StatusLost      = "lost"
)

// LeadNotFoundError is returned when a lead id does not exist.
type LeadNotFoundError struct {
	LeadID uint
}

func (e *LeadNotFoundError) Error() string {
	return fmt.Sprintf("lead not found: %d", e.LeadID)
}

// NewLeadNotFoundError creates a new LeadNotFoundError
func NewLeadNotFoundError(leadID uint) *LeadNotFoundError {
	return &LeadNotFoundError{LeadID: leadID}
}

// Lead is one captured seller lead.
type Lead struct {
	ID    uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name  string `json:"name"`
	Email string `gorm:"index" json:"email"`
	Phone string `json:"phone"`

	Status    string  `gorm:"index;not null;default:'new'" json:"status"`
	Source    string  `gorm:"index" json:"source"`
	DealValue float64 `gorm:"not null;default:0" json:"deal_value"`

	Touchpoints []Touchpoint `gorm:"foreignKey:LeadID" json:"touchpoints,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touchpoint is one recorded marketing-channel interaction in a lead's
// journey before conversion. Position preserves chronological order even when
// two touches share a timestamp.
type Touchpoint struct {
	ID     uint `gorm:"primaryKey;autoIncrement" json:"id"`
	LeadID uint `gorm:"index;not null" json:"lead_id"`

	Source     string    `gorm:"index;not null" json:"source"`
	Action     string    `json:"action"`
	OccurredAt time.Time `gorm:"index;not null" json:"occurred_at"`
	Position   int       `gorm:"not null" json:"position"`
}

// CreateLeadInput carries a new lead plus its journey in chronological order.
type CreateLeadInput struct {
	Name      string
	Email     string
	Phone     string
	Source    string
	DealValue float64
	Journey   []TouchpointInput
}

// TouchpointInput is one journey entry as submitted by the client.
type TouchpointInput struct {
	Source     string
	Action     string
	OccurredAt time.Time
}

// CreateLead stores a lead and its ordered touchpoint journey.
func CreateLead(dbManager cartridge.DBManager, logger *slog.Logger, input *CreateLeadInput) (uint, error) {
	lead := &Lead{
		Name:      input.Name,
		Email:     input.Email,
		Phone:     input.Phone,
		Status:    StatusNew,
		Source:    input.Source,
		DealValue: input.DealValue,
	}

	db := dbManager.GetConnection()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Create(lead).Error; err != nil {
			return err
		}
		for i, tp := range input.Journey {
			touchpoint := &Touchpoint{
				LeadID:     lead.ID,
				Source:     tp.Source,
				Action:     tp.Action,
				OccurredAt: tp.OccurredAt.UTC(),
				Position:   i,
			}
			if err := tx.Create(touchpoint).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to create lead", slog.Any("error", err))
		return 0, fmt.Errorf("failed to create lead: %w", err)
	}

	return lead.ID, nil
}

// UpdateLeadStatus moves a lead through the pipeline.
func UpdateLeadStatus(dbManager cartridge.DBManager, logger *slog.Logger, leadID uint, status string) error {
	if !validStatus(status) {
		return fmt.Errorf("invalid lead status: %s", status)
	}

	db := dbManager.GetConnection()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		var lead Lead
		if err := tx.First(&lead, leadID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewLeadNotFoundError(leadID)
			}
			return err
		}
		return tx.Model(&Lead{}).Where("id = ?", leadID).Update("status", status).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update lead status: %w", err)
	}
	return nil
}

// AppendTouchpoint adds one interaction to the end of a lead's journey.
func AppendTouchpoint(dbManager cartridge.DBManager, logger *slog.Logger, leadID uint, input TouchpointInput) error {
	db := dbManager.GetConnection()

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Lead{}).Where("id = ?", leadID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return NewLeadNotFoundError(leadID)
		}

		var position int64
		if err := tx.Model(&Touchpoint{}).Where("lead_id = ?", leadID).Count(&position).Error; err != nil {
			return err
		}

		touchpoint := &Touchpoint{
			LeadID:     leadID,
			Source:     input.Source,
			Action:     input.Action,
			OccurredAt: input.OccurredAt.UTC(),
			Position:   int(position),
		}
		return tx.Create(touchpoint).Error
	})
	if err != nil {
		return fmt.Errorf("failed to append touchpoint: %w", err)
	}
	return nil
}

// GetLeadWithJourney loads a lead with its touchpoints in journey order.
func GetLeadWithJourney(db *gorm.DB, leadID uint) (*Lead, error) {
	var lead Lead
	err := db.Preload("Touchpoints", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&lead, leadID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewLeadNotFoundError(leadID)
		}
		return nil, err
	}
	return &lead, nil
}

// GetLeadsWithJourneys loads all leads created in [from, to] with their
// journeys in order.
func GetLeadsWithJourneys(db *gorm.DB, from, to time.Time) ([]Lead, error) {
	var result []Lead
	err := db.Preload("Touchpoints", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("created_at BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Order("created_at ASC").
		Find(&result).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}
	return result, nil
}

func validStatus(status string) bool {
	switch status {
	case StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusLost:
		return true
	}
	return false
}
