package jobs

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"leadlens/internal/config"
	"leadlens/internal/forms"
	"leadlens/internal/sessions"
)

// CleanupJob removes visitor data older than the retention period
type CleanupJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run removes closed visitor sessions, their page views and stale form
// sessions older than the retention period. This keeps the store within GDPR
// data minimization bounds and bounds storage growth. Leads are never cleaned
// up here; they are business records, not telemetry.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.SessionRetentionDays
	cutoffDate := time.Now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting retention cleanup",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	if err := j.deleteInBatches("page views", func(limit int) (int64, error) {
		result := j.dbManager.GetConnection().
			Where("viewed_at < ?", cutoffDate).
			Limit(limit).
			Delete(&sessions.PageView{})
		return result.RowsAffected, result.Error
	}); err != nil {
		return err
	}

	if err := j.deleteInBatches("visitor sessions", func(limit int) (int64, error) {
		result := j.dbManager.GetConnection().
			Where("is_active = ? AND started_at < ?", false, cutoffDate).
			Limit(limit).
			Delete(&sessions.VisitorSession{})
		return result.RowsAffected, result.Error
	}); err != nil {
		return err
	}

	return j.deleteInBatches("form sessions", func(limit int) (int64, error) {
		result := j.dbManager.GetConnection().
			Where("started_at < ?", cutoffDate).
			Limit(limit).
			Delete(&forms.FormSession{})
		return result.RowsAffected, result.Error
	})
}

// deleteInBatches deletes matching rows in chunks to avoid locking the
// database for too long.
func (j *CleanupJob) deleteInBatches(kind string, deleteBatch func(limit int) (int64, error)) error {
	batchSize := 1000
	totalDeleted := int64(0)

	for {
		affected, err := deleteBatch(batchSize)
		if err != nil {
			j.logger.Error("Failed to delete old records",
				slog.String("kind", kind),
				slog.Any("error", err),
				slog.Int64("deleted_so_far", totalDeleted))
			return err
		}

		totalDeleted += affected

		if affected < int64(batchSize) {
			break
		}

		// Small delay between batches to prevent database lock contention
		time.Sleep(100 * time.Millisecond)
	}

	if totalDeleted > 0 {
		j.logger.Info("Cleaned up old records",
			slog.String("kind", kind),
			slog.Int64("deleted_count", totalDeleted))
	}

	return nil
}
