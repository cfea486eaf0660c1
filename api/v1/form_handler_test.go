package v1_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "leadlens/api/v1"
	"leadlens/internal/forms"
	"leadlens/internal/leads"
	"leadlens/internal/testsupport"
)

func decodeFormResponse(t *testing.T, resp *http.Response) v1.FormEventResponse {
	t.Helper()
	var body v1.FormEventResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestFormEventHandler(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	app := testsupport.CreateMinimalTestApp(t, db)

	t.Run("form lifecycle through the endpoint", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/form-events", map[string]interface{}{
			"action":     v1.ActionFormStart,
			"visitorId":  "visitor-f",
			"deviceType": "mobile",
			"utmSource":  "facebook",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		start := decodeFormResponse(t, resp)
		require.NotZero(t, start.FormSessionID)

		resp = postJSON(t, app, "/api/v1/form-events", map[string]interface{}{
			"action":        v1.ActionStepExit,
			"formSessionId": start.FormSessionID,
			"step":          1,
			"stepName":      "Property Type",
			"answer":        "House",
			"duration":      14,
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		resp = postJSON(t, app, "/api/v1/form-events", map[string]interface{}{
			"action":        v1.ActionFormComplete,
			"formSessionId": start.FormSessionID,
			"totalDuration": 120,
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		session, err := forms.GetFormSession(db, start.FormSessionID)
		require.NoError(t, err)
		assert.True(t, session.Completed)
		assert.Equal(t, 120, session.TotalDuration)
		assert.Equal(t, 1.0, session.MaxStepReached)

		history, err := session.History()
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "House", history[0].Answer)
	})

	t.Run("step events require a form session id", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/form-events", map[string]interface{}{
			"action": v1.ActionStepEnter,
			"step":   2,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown form session returns 404", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/form-events", map[string]interface{}{
			"action":        v1.ActionFormAbandon,
			"formSessionId": 98765,
			"exitStep":      2,
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestCreateLeadHandler(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	app := testsupport.CreateMinimalTestApp(t, db)

	t.Run("creates lead with journey", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/leads", map[string]interface{}{
			"name":      "Sam Rivera",
			"email":     "sam@example.com",
			"source":    "Google Ads",
			"dealValue": 275000,
			"journey": []map[string]interface{}{
				{"source": "Google Organic", "action": "visit", "occurredAt": "2026-08-27T10:00:00Z"},
				{"source": "Google Ads", "action": "conversion", "occurredAt": "2026-08-29T15:30:00Z"},
			},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var body v1.CreateLeadResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body.Success)
		require.NotZero(t, body.LeadID)

		lead, err := leads.GetLeadWithJourney(db, body.LeadID)
		require.NoError(t, err)
		assert.Equal(t, 275000.0, lead.DealValue)
		require.Len(t, lead.Touchpoints, 2)
		assert.Equal(t, "Google Organic", lead.Touchpoints[0].Source)
	})

	t.Run("requires email or phone", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/leads", map[string]interface{}{
			"name":   "No Contact",
			"source": "Direct",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
