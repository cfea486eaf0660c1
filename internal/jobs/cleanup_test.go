package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadlens/internal/config"
	"leadlens/internal/forms"
	"leadlens/internal/jobs"
	"leadlens/internal/leads"
	"leadlens/internal/sessions"
	"leadlens/internal/testsupport"
)

func TestCleanupJobRemovesExpiredTelemetry(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	cfg := config.GetConfig()

	expired := time.Now().UTC().AddDate(0, 0, -cfg.SessionRetentionDays-5)
	recent := time.Now().UTC().AddDate(0, 0, -1)

	oldSession := testsupport.CreateTestVisitorSession(t, db, "old", expired)
	require.NoError(t, db.Model(&sessions.VisitorSession{}).Where("id = ?", oldSession.ID).
		Update("is_active", false).Error)
	testsupport.CreateTestPageView(t, db, oldSession, "/sellers", expired)

	freshSession := testsupport.CreateTestVisitorSession(t, db, "fresh", recent)
	testsupport.CreateTestPageView(t, db, freshSession, "/sellers", recent)

	oldForm := testsupport.CreateTestFormSession(t, db, "old", false, nil)
	require.NoError(t, db.Model(&forms.FormSession{}).Where("id = ?", oldForm.ID).
		Update("started_at", expired).Error)
	testsupport.CreateTestFormSession(t, db, "fresh", true, nil)

	lead := testsupport.CreateTestLead(t, db, "keep@example.com", 300000, "Direct")
	require.NoError(t, db.Model(&leads.Lead{}).Where("id = ?", lead.ID).
		Update("created_at", expired).Error)

	job := jobs.NewCleanupJob(dbManager, logger, cfg)
	require.NoError(t, job.Run())

	var sessionCount, viewCount, formCount, leadCount int64
	db.Model(&sessions.VisitorSession{}).Count(&sessionCount)
	db.Model(&sessions.PageView{}).Count(&viewCount)
	db.Model(&forms.FormSession{}).Count(&formCount)
	db.Model(&leads.Lead{}).Count(&leadCount)

	assert.Equal(t, int64(1), sessionCount)
	assert.Equal(t, int64(1), viewCount)
	assert.Equal(t, int64(1), formCount)
	// Leads are business records, never part of retention cleanup.
	assert.Equal(t, int64(1), leadCount)
}

func TestCleanupJobKeepsOldActiveSessions(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	cfg := config.GetConfig()

	expired := time.Now().UTC().AddDate(0, 0, -cfg.SessionRetentionDays-1)
	testsupport.CreateTestVisitorSession(t, db, "still-open", expired)

	job := jobs.NewCleanupJob(dbManager, logger, cfg)
	require.NoError(t, job.Run())

	var count int64
	db.Model(&sessions.VisitorSession{}).Count(&count)
	assert.Equal(t, int64(1), count)
}
