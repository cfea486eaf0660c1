package leads_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadlens/internal/leads"
	"leadlens/internal/testsupport"
)

func TestCreateLeadStoresJourneyInOrder(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	id, err := leads.CreateLead(dbManager, logger, &leads.CreateLeadInput{
		Name:      "Jamie Fields",
		Email:     "jamie@example.com",
		Source:    "Google Ads",
		DealValue: 325000,
		Journey: []leads.TouchpointInput{
			{Source: "Google Organic", Action: "visit", OccurredAt: now.Add(-72 * time.Hour)},
			{Source: "Facebook", Action: "visit", OccurredAt: now.Add(-48 * time.Hour)},
			{Source: "Google Ads", Action: "conversion", OccurredAt: now},
		},
	})
	require.NoError(t, err)

	lead, err := leads.GetLeadWithJourney(db, id)
	require.NoError(t, err)
	assert.Equal(t, leads.StatusNew, lead.Status)
	assert.Equal(t, 325000.0, lead.DealValue)
	require.Len(t, lead.Touchpoints, 3)
	assert.Equal(t, "Google Organic", lead.Touchpoints[0].Source)
	assert.Equal(t, "Google Ads", lead.Touchpoints[2].Source)
	for i, tp := range lead.Touchpoints {
		assert.Equal(t, i, tp.Position)
	}
}

func TestUpdateLeadStatus(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	lead := testsupport.CreateTestLead(t, db, "status@example.com", 0, "Direct")

	require.NoError(t, leads.UpdateLeadStatus(dbManager, logger, lead.ID, leads.StatusQualified))

	reloaded, err := leads.GetLeadWithJourney(db, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, leads.StatusQualified, reloaded.Status)
}

func TestUpdateLeadStatusRejectsUnknownStatus(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	lead := testsupport.CreateTestLead(t, dbManager.GetConnection(), "bad-status@example.com", 0)

	err := leads.UpdateLeadStatus(dbManager, logger, lead.ID, "archived")
	assert.Error(t, err)
}

func TestUpdateLeadStatusNotFound(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	err := leads.UpdateLeadStatus(dbManager, logger, 777, leads.StatusContacted)
	var notFound *leads.LeadNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, uint(777), notFound.LeadID)
}

func TestAppendTouchpointExtendsJourney(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	lead := testsupport.CreateTestLead(t, db, "append@example.com", 0, "Google Organic", "Direct")

	require.NoError(t, leads.AppendTouchpoint(dbManager, logger, lead.ID, leads.TouchpointInput{
		Source:     "Google Ads",
		Action:     "call",
		OccurredAt: time.Now().UTC(),
	}))

	reloaded, err := leads.GetLeadWithJourney(db, lead.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Touchpoints, 3)
	assert.Equal(t, "Google Ads", reloaded.Touchpoints[2].Source)
	assert.Equal(t, 2, reloaded.Touchpoints[2].Position)
}

func TestGetLeadsWithJourneysFiltersByCreatedAt(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	inRange := testsupport.CreateTestLead(t, db, "in-range@example.com", 250000, "Facebook", "Direct")
	outOfRange := testsupport.CreateTestLead(t, db, "old@example.com", 0, "Direct")
	require.NoError(t, db.Model(&leads.Lead{}).Where("id = ?", outOfRange.ID).
		Update("created_at", time.Now().UTC().AddDate(0, 0, -90)).Error)

	from := time.Now().UTC().AddDate(0, 0, -7)
	to := time.Now().UTC().Add(time.Hour)
	result, err := leads.GetLeadsWithJourneys(db, from, to)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, inRange.ID, result[0].ID)
	require.Len(t, result[0].Touchpoints, 2)
	assert.Equal(t, "Facebook", result[0].Touchpoints[0].Source)
}
