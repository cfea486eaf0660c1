package sessions_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadlens/internal/sessions"
	"leadlens/internal/testsupport"
)

func TestStartSessionDerivesDeviceAndGeneratesVisitorID(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	id, err := sessions.StartSession(dbManager, logger, &sessions.StartSessionInput{
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		IPAddress: "192.168.1.10",
		Referrer:  "https://www.google.com/",
		UTMSource: "google",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	session, err := sessions.GetSession(dbManager.GetConnection(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, session.VisitorID)
	assert.Equal(t, "mobile", session.Device)
	assert.Equal(t, "google", session.UTMSource)
	assert.True(t, session.IsActive)
	assert.Nil(t, session.EndedAt)
}

func TestRecordPageViewBumpsSessionCounters(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	session := testsupport.CreateTestVisitorSession(t, db, "v-1", time.Now().UTC().Add(-time.Minute))

	viewID, err := sessions.RecordPageView(dbManager, logger, &sessions.RecordPageViewInput{
		SessionID: session.ID,
		VisitorID: session.VisitorID,
		Path:      "/sellers",
		Title:     "Sell Your Home",
	})
	require.NoError(t, err)
	require.NotZero(t, viewID)

	reloaded, err := sessions.GetSession(db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.PageViews)
	assert.True(t, reloaded.LastPing.After(session.LastPing))
}

func TestRecordPageViewUnknownSession(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	_, err := sessions.RecordPageView(dbManager, logger, &sessions.RecordPageViewInput{
		SessionID: 9999,
		Path:      "/",
	})

	var notFound *sessions.SessionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, uint(9999), notFound.SessionID)
}

func TestRecordPageExitClosesLatestOpenView(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	session := testsupport.CreateTestVisitorSession(t, db, "v-2", time.Now().UTC().Add(-time.Minute))

	first := testsupport.CreateTestPageView(t, db, session, "/get-offer", time.Now().UTC().Add(-40*time.Second))
	second := testsupport.CreateTestPageView(t, db, session, "/get-offer", time.Now().UTC().Add(-10*time.Second))

	require.NoError(t, sessions.RecordPageExit(dbManager, logger, session.ID, "/get-offer", 25, 150))

	var closed sessions.PageView
	require.NoError(t, db.First(&closed, second.ID).Error)
	require.NotNil(t, closed.Duration)
	assert.Equal(t, 25, *closed.Duration)
	require.NotNil(t, closed.ScrollDepth)
	assert.Equal(t, 100, *closed.ScrollDepth)

	var untouched sessions.PageView
	require.NoError(t, db.First(&untouched, first.ID).Error)
	assert.Nil(t, untouched.Duration)
}

func TestRecordPageExitWithoutOpenViewIsNoOp(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	session := testsupport.CreateTestVisitorSession(t, db, "v-3", time.Now().UTC())

	assert.NoError(t, sessions.RecordPageExit(dbManager, logger, session.ID, "/never-viewed", 10, 50))
}

func TestHeartbeatCreditsActiveTime(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	session := testsupport.CreateTestVisitorSession(t, db, "v-4", time.Now().UTC().Add(-2*time.Minute))

	require.NoError(t, sessions.Heartbeat(dbManager, logger, session.ID))
	require.NoError(t, sessions.Heartbeat(dbManager, logger, session.ID))

	reloaded, err := sessions.GetSession(db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, reloaded.Duration)
	assert.True(t, reloaded.LastPing.After(session.LastPing))
}

func TestEndSessionIsIdempotent(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	session := testsupport.CreateTestVisitorSession(t, db, "v-5", time.Now().UTC().Add(-time.Minute))

	require.NoError(t, sessions.EndSession(dbManager, logger, session.ID))

	closed, err := sessions.GetSession(db, session.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.EndedAt)
	firstEndedAt := *closed.EndedAt

	// A second end must not restamp ended_at.
	require.NoError(t, sessions.EndSession(dbManager, logger, session.ID))
	reloaded, err := sessions.GetSession(db, session.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.EndedAt)
	assert.Equal(t, firstEndedAt, *reloaded.EndedAt)
}

func TestSweepStaleSessions(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	stale := testsupport.CreateTestVisitorSession(t, db, "stale", time.Now().UTC().Add(-20*time.Minute))
	fresh := testsupport.CreateTestVisitorSession(t, db, "fresh", time.Now().UTC().Add(-time.Minute))

	closed, err := sessions.SweepStaleSessions(dbManager, logger)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	staleReloaded, err := sessions.GetSession(db, stale.ID)
	require.NoError(t, err)
	assert.False(t, staleReloaded.IsActive)
	require.NotNil(t, staleReloaded.EndedAt)

	freshReloaded, err := sessions.GetSession(db, fresh.ID)
	require.NoError(t, err)
	assert.True(t, freshReloaded.IsActive)

	// Sweeping again matches zero rows.
	closed, err = sessions.SweepStaleSessions(dbManager, logger)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestGetSessionNotFound(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)

	_, err := sessions.GetSession(dbManager.GetConnection(), 42)
	var notFound *sessions.SessionNotFoundError
	assert.True(t, errors.As(err, &notFound))
}
