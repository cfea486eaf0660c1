package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadlens/internal/analytics"
	"leadlens/internal/forms"
	"leadlens/internal/pkg/useragent"
	"leadlens/internal/testsupport"
	"leadlens/internal/timeframe"
)

func TestFormSessionBreakdownFallbackLabel(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	testsupport.CreateTestFormSession(t, db, "v-desktop-a", false, nil)
	testsupport.CreateTestFormSession(t, db, "v-desktop-b", false, nil)
	bare := testsupport.CreateTestFormSession(t, db, "v-bare", false, nil)
	require.NoError(t, db.Model(&forms.FormSession{}).Where("id = ?", bare.ID).
		Updates(map[string]interface{}{"device_type": "", "utm_source": ""}).Error)

	now := time.Now().UTC()
	tf, err := timeframe.NewTimeFrame(now.Add(-24*time.Hour), now, timeframe.BucketSizeDay)
	require.NoError(t, err)

	devices, err := analytics.FormSessionBreakdown(db, tf, "device_type", useragent.Unknown)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, analytics.Breakdown{Name: "desktop", Count: 2, Percentage: 66.7}, devices[0])
	assert.Equal(t, analytics.Breakdown{Name: useragent.Unknown, Count: 1, Percentage: 33.3}, devices[1])

	sources, err := analytics.FormSessionBreakdown(db, tf, "utm_source", "direct")
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, analytics.Breakdown{Name: "google", Count: 2, Percentage: 66.7}, sources[0])
	assert.Equal(t, analytics.Breakdown{Name: "direct", Count: 1, Percentage: 33.3}, sources[1])
}
