// Package http_test exercises the admin analytics endpoints end to end.
package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadlens/internal/analytics"
	"leadlens/internal/config"
	"leadlens/internal/forms"
	adminhttp "leadlens/internal/http"
	"leadlens/internal/leads"
	"leadlens/internal/sessions"
	"leadlens/internal/testsupport"
)

const testAdminKey = "test-admin-key"

func adminGet(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("Authorization", "Bearer "+testAdminKey)

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	return resp
}

func withAdminKey(t *testing.T) {
	t.Helper()

	cfg := config.GetConfig()
	previous := cfg.AdminAPIKey
	cfg.AdminAPIKey = testAdminKey
	t.Cleanup(func() { cfg.AdminAPIKey = previous })
}

func TestFunnelEndpointDegradesOnStorageFailure(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	withAdminKey(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	require.NoError(t, db.Migrator().DropTable(&forms.FormSession{}))

	resp := adminGet(t, app, "/admin/api/analytics/funnel")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body adminhttp.FunnelResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	steps := forms.MustFunnel()
	assert.Equal(t, 0, body.TotalSessions)
	require.Len(t, body.Steps, len(steps))
	for _, step := range body.Steps {
		assert.Equal(t, 0, step.Reached)
	}
	require.Len(t, body.StepTimes, len(steps))
	for _, st := range body.StepTimes {
		assert.Equal(t, 0, st.AverageTime)
	}
	assert.Empty(t, body.DropOffs)
	assert.Empty(t, body.Devices)
	assert.Empty(t, body.Sources)
	assert.NotEmpty(t, body.CompletionTrend)
	for _, point := range body.CompletionTrend {
		assert.Equal(t, 0, point.Count)
	}
}

func TestRealtimeEndpointDegradesOnStorageFailure(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	withAdminKey(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	require.NoError(t, db.Migrator().DropTable(&sessions.VisitorSession{}))

	resp := adminGet(t, app, "/admin/api/analytics/realtime")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body analytics.RealTimeSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, 0, body.ActiveVisitors)
	assert.Equal(t, 0.0, body.BounceRate)
	assert.Empty(t, body.Buckets)
	assert.Empty(t, body.Devices)
	assert.Empty(t, body.Sources)
	assert.Empty(t, body.Countries)
	assert.Empty(t, body.TopPages)
	assert.Empty(t, body.RecentActivity)
}

func TestOverviewEndpointDegradesOnStorageFailure(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	withAdminKey(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	require.NoError(t, db.Migrator().DropTable(&leads.Lead{}))

	resp := adminGet(t, app, "/admin/api/analytics/overview")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body analytics.Overview
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, 0, body.TotalLeads)
	assert.Equal(t, 0, body.NewLeads)
	assert.Equal(t, 0.0, body.ConversionRate)
	assert.Empty(t, body.StatusCounts)
	assert.Empty(t, body.LeadSources)
	assert.Empty(t, body.RecentLeads)
	assert.Empty(t, body.DailyTrend)
}
