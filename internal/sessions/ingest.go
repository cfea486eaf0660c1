package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"leadlens/internal/config"
	"leadlens/internal/pkg/geoip"
	"leadlens/internal/pkg/useragent"
)

// StartSessionInput defines the input required to open a visitor session.
type StartSessionInput struct {
	VisitorID   string
	UserAgent   string
	IPAddress   string
	Referrer    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
}

// StartSession creates a new active VisitorSession and returns its id.
// Device, browser and OS are derived from the user agent; the country comes
// from the optional GeoLite2 lookup. A missing visitor id gets a
// server-generated one so the session is still trackable.
func StartSession(dbManager cartridge.DBManager, logger *slog.Logger, input *StartSessionInput) (uint, error) {
	visitorID := input.VisitorID
	if visitorID == "" {
		visitorID = uuid.NewString()
		logger.Debug("No visitor id supplied, generated one", slog.String("visitor_id", visitorID))
	}

	ua := useragent.Parse(input.UserAgent)
	now := time.Now().UTC()

	session := &VisitorSession{
		VisitorID:   visitorID,
		Device:      ua.Device,
		Browser:     ua.Browser,
		OS:          ua.OS,
		Country:     geoip.CountryForIP(input.IPAddress),
		Referrer:    input.Referrer,
		UTMSource:   input.UTMSource,
		UTMMedium:   input.UTMMedium,
		UTMCampaign: input.UTMCampaign,
		IsActive:    true,
		LastPing:    now,
		StartedAt:   now,
	}

	db := dbManager.GetConnection()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(session).Error
	})
	if err != nil {
		logger.Error("Failed to create visitor session", slog.Any("error", err))
		return 0, fmt.Errorf("failed to create visitor session: %w", err)
	}

	return session.ID, nil
}

// RecordPageViewInput defines the input for a page_view event.
type RecordPageViewInput struct {
	SessionID uint
	VisitorID string
	Path      string
	Title     string
	Referrer  string
}

// RecordPageView stores a PageView and bumps the owning session's page counter
// and last ping. Returns the new page view id.
func RecordPageView(dbManager cartridge.DBManager, logger *slog.Logger, input *RecordPageViewInput) (uint, error) {
	db := dbManager.GetConnection()

	if err := ensureSessionExists(db, input.SessionID); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	view := &PageView{
		SessionID: input.SessionID,
		VisitorID: input.VisitorID,
		Path:      input.Path,
		Title:     input.Title,
		Referrer:  input.Referrer,
		ViewedAt:  now,
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Create(view).Error; err != nil {
			return err
		}
		return tx.Model(&VisitorSession{}).
			Where("id = ?", input.SessionID).
			Updates(map[string]interface{}{
				"page_views": gorm.Expr("page_views + 1"),
				"last_ping":  now,
			}).Error
	})
	if err != nil {
		logger.Error("Failed to record page view",
			slog.Uint64("session_id", uint64(input.SessionID)),
			slog.Any("error", err))
		return 0, fmt.Errorf("failed to record page view: %w", err)
	}

	return view.ID, nil
}

// RecordPageExit fills in duration and scroll depth on the most recent open
// page view for (session, path). A missing view is a silent no-op: page_exit
// events legitimately arrive out of order or after the view expired.
func RecordPageExit(dbManager cartridge.DBManager, logger *slog.Logger, sessionID uint, path string, duration, scrollDepth int) error {
	db := dbManager.GetConnection()

	var view PageView
	err := db.Where("session_id = ? AND path = ? AND duration IS NULL", sessionID, path).
		Order("viewed_at DESC").
		First(&view).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Debug("No open page view for exit event, ignoring",
				slog.Uint64("session_id", uint64(sessionID)),
				slog.String("path", path))
			return nil
		}
		return fmt.Errorf("failed to look up page view: %w", err)
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&PageView{}).
			Where("id = ?", view.ID).
			Updates(map[string]interface{}{
				"duration":     duration,
				"scroll_depth": clampScrollDepth(scrollDepth),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to close page view: %w", err)
	}
	return nil
}

// Heartbeat bumps the session's last ping and credits it with one tick of
// active time. Concurrent heartbeats are commutative increments.
func Heartbeat(dbManager cartridge.DBManager, logger *slog.Logger, sessionID uint) error {
	db := dbManager.GetConnection()

	if err := ensureSessionExists(db, sessionID); err != nil {
		return err
	}

	tick := config.GetConfig().GetHeartbeatInterval()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&VisitorSession{}).
			Where("id = ?", sessionID).
			Updates(map[string]interface{}{
				"duration":  gorm.Expr("duration + ?", tick),
				"last_ping": time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// EndSession closes a session explicitly.
func EndSession(dbManager cartridge.DBManager, logger *slog.Logger, sessionID uint) error {
	db := dbManager.GetConnection()

	if err := ensureSessionExists(db, sessionID); err != nil {
		return err
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&VisitorSession{}).
			Where("id = ? AND is_active = ?", sessionID, true).
			Updates(map[string]interface{}{
				"is_active": false,
				"ended_at":  time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// SweepStaleSessions closes every active session whose last ping is older than
// the liveness threshold. The whole sweep is one conditional bulk UPDATE, so
// concurrent sweeps cannot double-close a session or restamp ended_at: the
// second run matches zero rows. Returns the number of sessions closed.
func SweepStaleSessions(dbManager cartridge.DBManager, logger *slog.Logger) (int64, error) {
	db := dbManager.GetConnection()
	liveness := time.Duration(config.GetConfig().GetSessionLiveness()) * time.Second
	cutoff := time.Now().UTC().Add(-liveness)

	var closed int64
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Model(&VisitorSession{}).
			Where("is_active = ? AND last_ping < ?", true, cutoff).
			Updates(map[string]interface{}{
				"is_active": false,
				"ended_at":  time.Now().UTC(),
			})
		closed = result.RowsAffected
		return result.Error
	})
	if err != nil {
		logger.Error("Liveness sweep failed", slog.Any("error", err))
		return 0, fmt.Errorf("liveness sweep failed: %w", err)
	}

	if closed > 0 {
		logger.Debug("Liveness sweep closed stale sessions", slog.Int64("count", closed))
	}
	return closed, nil
}

// GetSession loads a session by id, returning SessionNotFoundError when absent.
func GetSession(db *gorm.DB, sessionID uint) (*VisitorSession, error) {
	var session VisitorSession
	if err := db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewSessionNotFoundError(sessionID)
		}
		return nil, err
	}
	return &session, nil
}

func ensureSessionExists(db *gorm.DB, sessionID uint) error {
	var count int64
	if err := db.Model(&VisitorSession{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if count == 0 {
		return NewSessionNotFoundError(sessionID)
	}
	return nil
}

func clampScrollDepth(depth int) int {
	if depth < 0 {
		return 0
	}
	if depth > 100 {
		return 100
	}
	return depth
}
