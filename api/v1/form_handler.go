package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadlens/internal/forms"
)

// Form actions accepted by the form-events endpoint.
const (
	ActionFormStart    = "form_start"
	ActionStepEnter    = "step_enter"
	ActionStepExit     = "step_exit"
	ActionFormComplete = "form_complete"
	ActionFormAbandon  = "form_abandon"
)

// FormEventParams is the discriminated payload of POST /api/v1/form-events.
type FormEventParams struct {
	Action        string      `json:"action"`
	FormSessionID uint        `json:"formSessionId"`
	VisitorID     string      `json:"visitorId"`
	DeviceType    string      `json:"deviceType"`
	UTMSource     string      `json:"utmSource"`
	Step          float64     `json:"step"`
	StepName      string      `json:"stepName"`
	Answer        interface{} `json:"answer"`
	Duration      *int        `json:"duration"`
	WasSkipped    bool        `json:"wasSkipped"`
	WentBack      bool        `json:"wentBack"`
	TotalDuration int         `json:"totalDuration"`
	ExitStep      float64     `json:"exitStep"`
}

// FormEventResponse is the form ingestion response envelope.
type FormEventResponse struct {
	Success       bool   `json:"success"`
	FormSessionID uint   `json:"formSessionId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// FormEventHandler ingests questionnaire progress events.
func FormEventHandler(ctx *cartridge.Context) error {
	var params FormEventParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		ctx.Logger.Debug("Failed to parse form event request", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(FormEventResponse{Success: false, Error: errInvalidRequest})
	}

	if params.Action == ActionFormStart {
		input := &forms.StartFormSessionInput{
			VisitorID:  params.VisitorID,
			DeviceType: params.DeviceType,
			UTMSource:  params.UTMSource,
		}
		formSessionID, err := forms.StartFormSession(ctx.DBManager, ctx.Logger, input)
		if err != nil {
			return formError(ctx, err)
		}
		return ctx.Status(http.StatusCreated).JSON(FormEventResponse{Success: true, FormSessionID: formSessionID})
	}

	if params.FormSessionID == 0 {
		return ctx.Status(http.StatusBadRequest).JSON(FormEventResponse{Success: false, Error: "Missing formSessionId"})
	}

	switch params.Action {
	case ActionStepEnter:
		if err := forms.RecordStepEnter(ctx.DBManager, ctx.Logger, params.FormSessionID, params.Step); err != nil {
			return formError(ctx, err)
		}

	case ActionStepExit:
		now := time.Now().UTC()
		event := forms.StepEvent{
			Step:       params.Step,
			StepName:   params.StepName,
			EnteredAt:  enteredAtFor(now, params.Duration),
			LeftAt:     &now,
			Duration:   params.Duration,
			Answer:     params.Answer,
			WasSkipped: params.WasSkipped,
			WentBack:   params.WentBack,
		}
		if err := forms.RecordStepExit(ctx.DBManager, ctx.Logger, params.FormSessionID, event); err != nil {
			return formError(ctx, err)
		}

	case ActionFormComplete:
		if err := forms.CompleteForm(ctx.DBManager, ctx.Logger, params.FormSessionID, params.TotalDuration); err != nil {
			return formError(ctx, err)
		}

	case ActionFormAbandon:
		if err := forms.AbandonForm(ctx.DBManager, ctx.Logger, params.FormSessionID, params.ExitStep); err != nil {
			return formError(ctx, err)
		}

	default:
		ctx.Logger.Debug("Unknown form action", slog.String("action", params.Action))
		return ctx.Status(http.StatusBadRequest).JSON(FormEventResponse{Success: false, Error: errUnknownAction})
	}

	return ctx.Status(http.StatusAccepted).JSON(FormEventResponse{Success: true})
}

// enteredAtFor reconstructs the step entry time from the reported dwell
// duration; clients only send how long they stayed.
func enteredAtFor(leftAt time.Time, duration *int) time.Time {
	if duration == nil {
		return leftAt
	}
	return leftAt.Add(-time.Duration(*duration) * time.Second)
}

func formError(ctx *cartridge.Context, err error) error {
	if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "busy") {
		return ctx.Status(599).JSON(fiber.Map{})
	}

	var notFound *forms.FormSessionNotFoundError
	if errors.As(err, &notFound) {
		return ctx.Status(http.StatusNotFound).JSON(FormEventResponse{Success: false, Error: notFound.Error()})
	}

	ctx.Logger.Error("Failed to process form event", slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(FormEventResponse{Success: false, Error: "Failed to process event"})
}
