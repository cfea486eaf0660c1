// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "leadlens/api/v1"
	"leadlens/internal/sessions"
	"leadlens/internal/testsupport"
)

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")
	req.Header.Set("X-Forwarded-For", "127.0.0.1")

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	return resp
}

func decodeTrackResponse(t *testing.T, resp *http.Response) v1.TrackEventResponse {
	t.Helper()
	var body v1.TrackEventResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestTrackEventHandler(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	app := testsupport.CreateMinimalTestApp(t, db)

	t.Run("session_start creates an active session", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/track", map[string]interface{}{
			"action":    v1.ActionSessionStart,
			"visitorId": "visitor-a",
			"referrer":  "https://www.google.com/",
			"utmSource": "google",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeTrackResponse(t, resp)
		assert.True(t, body.Success)
		require.NotZero(t, body.SessionID)

		session, err := sessions.GetSession(db, body.SessionID)
		require.NoError(t, err)
		assert.True(t, session.IsActive)
		assert.Equal(t, "google", session.UTMSource)
	})

	t.Run("page_view requires a session id", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/track", map[string]interface{}{
			"action": v1.ActionPageView,
			"path":   "/sellers",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("page_view records and bumps counters", func(t *testing.T) {
		session := testsupport.CreateTestVisitorSession(t, db, "visitor-b", time.Now().UTC())

		resp := postJSON(t, app, "/api/v1/track", map[string]interface{}{
			"action":    v1.ActionPageView,
			"sessionId": session.ID,
			"visitorId": session.VisitorID,
			"path":      "/get-offer",
			"title":     "Get Your Offer",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeTrackResponse(t, resp)
		assert.True(t, body.Success)
		assert.NotZero(t, body.PageViewID)
	})

	t.Run("heartbeat against unknown session returns 404", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/track", map[string]interface{}{
			"action":    v1.ActionHeartbeat,
			"sessionId": 123456,
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("session_end closes the session", func(t *testing.T) {
		session := testsupport.CreateTestVisitorSession(t, db, "visitor-c", time.Now().UTC())

		resp := postJSON(t, app, "/api/v1/track", map[string]interface{}{
			"action":    v1.ActionSessionEnd,
			"sessionId": session.ID,
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		reloaded, err := sessions.GetSession(db, session.ID)
		require.NoError(t, err)
		assert.False(t, reloaded.IsActive)
	})

	t.Run("unknown action is rejected", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/track", map[string]interface{}{
			"action": "page_scroll",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
