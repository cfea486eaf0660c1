package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadlens/internal/analytics"
	"leadlens/internal/leads"
	"leadlens/internal/sessions"
	"leadlens/internal/testsupport"
)

func TestGetRealTimeSnapshot(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	now := time.Now().UTC()

	// Two live sessions, one stale one that the sweep must close first.
	liveA := testsupport.CreateTestVisitorSession(t, db, "live-a", now.Add(-2*time.Minute))
	require.NoError(t, db.Model(&sessions.VisitorSession{}).Where("id = ?", liveA.ID).
		Update("last_ping", now.Add(-time.Minute)).Error)
	liveB := testsupport.CreateTestVisitorSession(t, db, "live-b", now.Add(-10*time.Minute))
	require.NoError(t, db.Model(&sessions.VisitorSession{}).Where("id = ?", liveB.ID).
		Update("last_ping", now.Add(-30*time.Second)).Error)
	testsupport.CreateTestVisitorSession(t, db, "stale", now.Add(-45*time.Minute))

	testsupport.CreateTestPageView(t, db, liveA, "/sellers", now.Add(-3*time.Minute))
	testsupport.CreateTestPageView(t, db, liveA, "/get-offer", now.Add(-2*time.Minute))
	testsupport.CreateTestPageView(t, db, liveB, "/sellers", now.Add(-time.Minute))

	snapshot, err := analytics.GetRealTimeSnapshot(dbManager, logger)
	require.NoError(t, err)

	assert.Equal(t, 2, snapshot.ActiveVisitors)
	require.Len(t, snapshot.Buckets, 12)

	var bucketViews int
	for _, b := range snapshot.Buckets {
		bucketViews += b.PageViews
	}
	assert.Equal(t, 3, bucketViews)

	require.NotEmpty(t, snapshot.TopPages)
	assert.Equal(t, "/sellers", snapshot.TopPages[0].Path)
	assert.Equal(t, 1, snapshot.TopPages[0].Rank)
	assert.Equal(t, 2, snapshot.TopPages[0].Count)

	require.NotEmpty(t, snapshot.Devices)
	assert.Equal(t, "desktop", snapshot.Devices[0].Name)

	assert.Len(t, snapshot.RecentActivity, 3)
}

func TestGetRealTimeSnapshotEmptyStore(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	snapshot, err := analytics.GetRealTimeSnapshot(dbManager, logger)
	require.NoError(t, err)

	assert.Zero(t, snapshot.ActiveVisitors)
	assert.Zero(t, snapshot.BounceRate)
	assert.Len(t, snapshot.Buckets, 12)
	assert.Empty(t, snapshot.TopPages)
}

func TestGetOverview(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	testsupport.CreateTestLead(t, db, "one@example.com", 250000, "Google Ads")
	testsupport.CreateTestLead(t, db, "two@example.com", 0, "Facebook", "Direct")
	converted := testsupport.CreateTestLead(t, db, "three@example.com", 310000, "Google Organic")
	require.NoError(t, db.Model(&leads.Lead{}).Where("id = ?", converted.ID).
		Update("status", leads.StatusConverted).Error)

	overview, err := analytics.GetOverview(db, logger)
	require.NoError(t, err)

	assert.Equal(t, 3, overview.TotalLeads)
	assert.Equal(t, 3, overview.NewLeads)
	assert.InDelta(t, 33.3, overview.ConversionRate, 0.001)
	assert.Len(t, overview.RecentLeads, 3)
	assert.Len(t, overview.DailyTrend, 7)

	var sourceTotal int
	for _, s := range overview.LeadSources {
		sourceTotal += s.Count
	}
	assert.Equal(t, 3, sourceTotal)
}
