package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadlens/internal/sessions"
)

const (
	errInvalidRequest = "Invalid request"
	errUnknownAction  = "Unknown action"
	errMissingSession = "Missing sessionId"
)

// Track actions accepted by the public ingestion endpoint.
const (
	ActionSessionStart = "session_start"
	ActionPageView     = "page_view"
	ActionPageExit     = "page_exit"
	ActionHeartbeat    = "heartbeat"
	ActionSessionEnd   = "session_end"
)

// TrackEventParams is the discriminated payload of POST /api/v1/track. Action
// selects which of the other fields are read.
type TrackEventParams struct {
	Action      string `json:"action"`
	SessionID   uint   `json:"sessionId"`
	VisitorID   string `json:"visitorId"`
	Path        string `json:"path"`
	Title       string `json:"title"`
	Referrer    string `json:"referrer"`
	UTMSource   string `json:"utmSource"`
	UTMMedium   string `json:"utmMedium"`
	UTMCampaign string `json:"utmCampaign"`
	Duration    int    `json:"duration"`
	ScrollDepth int    `json:"scrollDepth"`
}

// TrackEventResponse is the uniform ingestion response envelope.
type TrackEventResponse struct {
	Success    bool   `json:"success"`
	SessionID  uint   `json:"sessionId,omitempty"`
	PageViewID uint   `json:"pageViewId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TrackEventHandler is the single public tracking endpoint. The SDK batches
// every kind of visitor event through it, discriminated by action.
func TrackEventHandler(ctx *cartridge.Context) error {
	var params TrackEventParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		ctx.Logger.Debug("Failed to parse track request", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(TrackEventResponse{Success: false, Error: errInvalidRequest})
	}

	userAgentHeader := ctx.Get("User-Agent")
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgentHeader = forwardedUA
	}

	switch params.Action {
	case ActionSessionStart:
		input := &sessions.StartSessionInput{
			VisitorID:   params.VisitorID,
			UserAgent:   userAgentHeader,
			IPAddress:   getClientIP(ctx.Ctx),
			Referrer:    params.Referrer,
			UTMSource:   params.UTMSource,
			UTMMedium:   params.UTMMedium,
			UTMCampaign: params.UTMCampaign,
		}
		sessionID, err := sessions.StartSession(ctx.DBManager, ctx.Logger, input)
		if err != nil {
			return trackError(ctx, err)
		}
		return ctx.Status(http.StatusCreated).JSON(TrackEventResponse{Success: true, SessionID: sessionID})

	case ActionPageView:
		if params.SessionID == 0 {
			return ctx.Status(http.StatusBadRequest).JSON(TrackEventResponse{Success: false, Error: errMissingSession})
		}
		input := &sessions.RecordPageViewInput{
			SessionID: params.SessionID,
			VisitorID: params.VisitorID,
			Path:      params.Path,
			Title:     params.Title,
			Referrer:  params.Referrer,
		}
		pageViewID, err := sessions.RecordPageView(ctx.DBManager, ctx.Logger, input)
		if err != nil {
			return trackError(ctx, err)
		}
		return ctx.Status(http.StatusCreated).JSON(TrackEventResponse{Success: true, PageViewID: pageViewID})

	case ActionPageExit:
		if params.SessionID == 0 {
			return ctx.Status(http.StatusBadRequest).JSON(TrackEventResponse{Success: false, Error: errMissingSession})
		}
		err := sessions.RecordPageExit(ctx.DBManager, ctx.Logger, params.SessionID, params.Path, params.Duration, params.ScrollDepth)
		if err != nil {
			return trackError(ctx, err)
		}
		return ctx.Status(http.StatusAccepted).JSON(TrackEventResponse{Success: true})

	case ActionHeartbeat:
		if params.SessionID == 0 {
			return ctx.Status(http.StatusBadRequest).JSON(TrackEventResponse{Success: false, Error: errMissingSession})
		}
		if err := sessions.Heartbeat(ctx.DBManager, ctx.Logger, params.SessionID); err != nil {
			return trackError(ctx, err)
		}
		return ctx.Status(http.StatusAccepted).JSON(TrackEventResponse{Success: true})

	case ActionSessionEnd:
		if params.SessionID == 0 {
			return ctx.Status(http.StatusBadRequest).JSON(TrackEventResponse{Success: false, Error: errMissingSession})
		}
		if err := sessions.EndSession(ctx.DBManager, ctx.Logger, params.SessionID); err != nil {
			return trackError(ctx, err)
		}
		return ctx.Status(http.StatusAccepted).JSON(TrackEventResponse{Success: true})
	}

	ctx.Logger.Debug("Unknown track action", slog.String("action", params.Action))
	return ctx.Status(http.StatusBadRequest).JSON(TrackEventResponse{Success: false, Error: errUnknownAction})
}

// trackError maps store errors onto the ingestion response envelope.
func trackError(ctx *cartridge.Context, err error) error {
	if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "busy") {
		return ctx.Status(599).JSON(fiber.Map{}) // custom status code
	}

	var notFound *sessions.SessionNotFoundError
	if errors.As(err, &notFound) {
		return ctx.Status(http.StatusNotFound).JSON(TrackEventResponse{Success: false, Error: notFound.Error()})
	}

	ctx.Logger.Error("Failed to process track event", slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(TrackEventResponse{Success: false, Error: "Failed to process event"})
}
