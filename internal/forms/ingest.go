package forms

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// StartFormSessionInput carries the metadata captured when a visitor first
// interacts with the form.
type StartFormSessionInput struct {
	VisitorID  string
	DeviceType string
	UTMSource  string
}

// StartFormSession creates a FormSession on first step interaction.
func StartFormSession(dbManager cartridge.DBManager, logger *slog.Logger, input *StartFormSessionInput) (uint, error) {
	session := &FormSession{
		VisitorID:  input.VisitorID,
		StartedAt:  time.Now().UTC(),
		DeviceType: input.DeviceType,
		UTMSource:  input.UTMSource,
	}

	db := dbManager.GetConnection()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(session).Error
	})
	if err != nil {
		logger.Error("Failed to create form session", slog.Any("error", err))
		return 0, fmt.Errorf("failed to create form session: %w", err)
	}
	return session.ID, nil
}

// RecordStepEnter advances MaxStepReached when the visitor reaches a step
// beyond their previous maximum. Going back never decreases it.
func RecordStepEnter(dbManager cartridge.DBManager, logger *slog.Logger, formSessionID uint, step float64) error {
	db := dbManager.GetConnection()

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		session, err := lockFormSession(tx, formSessionID)
		if err != nil {
			return err
		}
		if step > session.MaxStepReached {
			return tx.Model(&FormSession{}).
				Where("id = ?", formSessionID).
				Update("max_step_reached", step).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record step enter: %w", err)
	}
	return nil
}

// RecordStepExit appends one StepEvent to the session's history. Every exit
// appends: revisited steps produce a new entry rather than mutating the old
// one, preserving real traversal order.
func RecordStepExit(dbManager cartridge.DBManager, logger *slog.Logger, formSessionID uint, event StepEvent) error {
	db := dbManager.GetConnection()

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		session, err := lockFormSession(tx, formSessionID)
		if err != nil {
			return err
		}

		history, err := session.History()
		if err != nil {
			// The stored blob is malformed; rather than losing the new event
			// too, restart the log from this event.
			logger.Warn("Replacing malformed step history",
				slog.Uint64("form_session_id", uint64(formSessionID)),
				slog.Any("error", err))
			history = nil
		}
		history = append(history, event)

		encoded, err := EncodeHistory(history)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{"step_history": encoded}
		if event.Step > session.MaxStepReached {
			updates["max_step_reached"] = event.Step
		}
		return tx.Model(&FormSession{}).Where("id = ?", formSessionID).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record step exit: %w", err)
	}
	return nil
}

// CompleteForm marks the session completed and stamps its total duration.
func CompleteForm(dbManager cartridge.DBManager, logger *slog.Logger, formSessionID uint, totalDuration int) error {
	db := dbManager.GetConnection()

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if _, err := lockFormSession(tx, formSessionID); err != nil {
			return err
		}
		return tx.Model(&FormSession{}).
			Where("id = ?", formSessionID).
			Updates(map[string]interface{}{
				"completed":      true,
				"abandoned":      false,
				"total_duration": totalDuration,
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to complete form session: %w", err)
	}
	return nil
}

// AbandonForm marks the session abandoned at the given step. A session that
// later completes anyway clears the flag via CompleteForm.
func AbandonForm(dbManager cartridge.DBManager, logger *slog.Logger, formSessionID uint, exitStep float64) error {
	db := dbManager.GetConnection()

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		session, err := lockFormSession(tx, formSessionID)
		if err != nil {
			return err
		}
		if session.Completed {
			// A completed session cannot be retroactively abandoned.
			return nil
		}
		return tx.Model(&FormSession{}).
			Where("id = ?", formSessionID).
			Updates(map[string]interface{}{
				"abandoned": true,
				"exit_step": exitStep,
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to abandon form session: %w", err)
	}
	return nil
}

// GetFormSession loads a form session by id.
func GetFormSession(db *gorm.DB, formSessionID uint) (*FormSession, error) {
	var session FormSession
	if err := db.First(&session, formSessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewFormSessionNotFoundError(formSessionID)
		}
		return nil, err
	}
	return &session, nil
}

func lockFormSession(tx *gorm.DB, formSessionID uint) (*FormSession, error) {
	var session FormSession
	if err := tx.First(&session, formSessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewFormSessionNotFoundError(formSessionID)
		}
		return nil, err
	}
	return &session, nil
}
