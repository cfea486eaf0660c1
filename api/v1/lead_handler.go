package v1

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadlens/internal/leads"
)

// CreateLeadParams is the payload of POST /api/v1/leads, submitted when a
// visitor finishes the questionnaire with their contact details.
type CreateLeadParams struct {
	Name      string                 `json:"name"`
	Email     string                 `json:"email"`
	Phone     string                 `json:"phone"`
	Source    string                 `json:"source"`
	DealValue float64                `json:"dealValue"`
	Journey   []LeadTouchpointParams `json:"journey"`
}

// LeadTouchpointParams is one journey entry as submitted by the client.
type LeadTouchpointParams struct {
	Source     string    `json:"source"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurredAt"`
}

// CreateLeadResponse is the lead creation response envelope.
type CreateLeadResponse struct {
	Success bool   `json:"success"`
	LeadID  uint   `json:"leadId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateLeadHandler records a converted visitor together with their
// touchpoint journey, which later feeds attribution.
func CreateLeadHandler(ctx *cartridge.Context) error {
	var params CreateLeadParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		ctx.Logger.Debug("Failed to parse lead request", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(CreateLeadResponse{Success: false, Error: errInvalidRequest})
	}

	if strings.TrimSpace(params.Email) == "" && strings.TrimSpace(params.Phone) == "" {
		return ctx.Status(http.StatusBadRequest).JSON(CreateLeadResponse{
			Success: false,
			Error:   "Either email or phone is required",
		})
	}

	input := &leads.CreateLeadInput{
		Name:      params.Name,
		Email:     params.Email,
		Phone:     params.Phone,
		Source:    params.Source,
		DealValue: params.DealValue,
	}
	for _, tp := range params.Journey {
		input.Journey = append(input.Journey, leads.TouchpointInput{
			Source:     tp.Source,
			Action:     tp.Action,
			OccurredAt: tp.OccurredAt,
		})
	}

	leadID, err := leads.CreateLead(ctx.DBManager, ctx.Logger, input)
	if err != nil {
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "busy") {
			return ctx.Status(599).JSON(fiber.Map{})
		}
		ctx.Logger.Error("Failed to create lead", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(CreateLeadResponse{Success: false, Error: "Failed to create lead"})
	}

	ctx.Logger.Info("Lead created", slog.Uint64("lead_id", uint64(leadID)))
	return ctx.Status(http.StatusCreated).JSON(CreateLeadResponse{Success: true, LeadID: leadID})
}
