// Package seeder fills the database with realistic demo data: visitor
// sessions with page view journeys, form sessions with step histories and
// converted leads with touchpoint journeys. Used by the llctl seed command
// for local development and demos.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"leadlens/internal/forms"
	"leadlens/internal/leads"
	"leadlens/internal/sessions"
)

// Seeder handles the demo data seeding process.
type Seeder struct {
	DBManager    cartridge.DBManager
	Logger       *slog.Logger
	SessionCount int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, sessionCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager:    dbManager,
		Logger:       logger,
		SessionCount: sessionCount,
	}
}

var journeyTemplates = [][]string{
	{"/"},
	{"/", "/how-it-works"},
	{"/", "/how-it-works", "/get-offer"},
	{"/", "/testimonials", "/get-offer"},
	{"/", "/faq", "/how-it-works", "/get-offer"},
	{"/get-offer"},
	{"/", "/about", "/faq"},
	{"/blog/selling-as-is", "/", "/get-offer"},
	{"/", "/how-it-works", "/testimonials", "/faq", "/get-offer"},
}

var devicePool = []string{"desktop", "desktop", "mobile", "mobile", "mobile", "tablet"}

var browserByDevice = map[string][]string{
	"desktop": {"chrome", "firefox", "edge", "safari"},
	"mobile":  {"mobile safari", "chrome"},
	"tablet":  {"safari", "chrome"},
}

var osByDevice = map[string][]string{
	"desktop": {"windows", "macos", "linux"},
	"mobile":  {"ios", "android"},
	"tablet":  {"ios", "android"},
}

var countryPool = []string{"US", "US", "US", "CA", "GB", "AU", "DE"}

type sourceProfile struct {
	utmSource   string
	utmMedium   string
	utmCampaign string
	referrer    string
}

var sourcePool = []sourceProfile{
	{utmSource: "google_ads", utmMedium: "cpc", utmCampaign: "sell-fast-q3", referrer: "https://www.google.com/"},
	{utmSource: "facebook", utmMedium: "paid_social", utmCampaign: "cash-offer", referrer: "https://www.facebook.com/"},
	{utmSource: "google_organic", utmMedium: "organic", referrer: "https://www.google.com/"},
	{utmSource: "email", utmMedium: "newsletter", utmCampaign: "monthly-digest"},
	{},
	{},
}

// Run executes the seeding process
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...", slog.Int("sessionCount", s.SessionCount))

	numSessions := s.SessionCount
	if numSessions < 10 {
		numSessions = 10
	}

	seeded := 0
	for i := 0; i < numSessions; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.seedVisit(); err != nil {
			s.Logger.Error("Failed to seed visit", slog.Any("error", err))
			continue
		}
		seeded++
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("sessions", seeded),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// seedVisit creates one visitor session with its page views, and with some
// probability a form session and a converted lead on top of it.
func (s *Seeder) seedVisit() error {
	visitorID := uuid.NewString()
	device := devicePool[rand.IntN(len(devicePool))]
	source := sourcePool[rand.IntN(len(sourcePool))]
	journey := journeyTemplates[rand.IntN(len(journeyTemplates))]

	startedAt := time.Now().UTC().Add(-time.Duration(rand.IntN(30*24*60*60)) * time.Second)

	session := &sessions.VisitorSession{
		VisitorID:   visitorID,
		Device:      device,
		Browser:     pick(browserByDevice[device]),
		OS:          pick(osByDevice[device]),
		Country:     pick(countryPool),
		Referrer:    source.referrer,
		UTMSource:   source.utmSource,
		UTMMedium:   source.utmMedium,
		UTMCampaign: source.utmCampaign,
		PageViews:   len(journey),
		IsActive:    false,
		StartedAt:   startedAt,
		LastPing:    startedAt,
	}

	db := s.DBManager.GetConnection()
	err := sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}

		cumulative := time.Duration(0)
		for _, path := range journey {
			dwell := rand.IntN(110) + 10
			view := &sessions.PageView{
				SessionID: session.ID,
				VisitorID: visitorID,
				Path:      path,
				ViewedAt:  startedAt.Add(cumulative),
				Duration:  &dwell,
			}
			if err := tx.Create(view).Error; err != nil {
				return err
			}
			cumulative += time.Duration(dwell) * time.Second
		}

		endedAt := startedAt.Add(cumulative)
		return tx.Model(session).Updates(map[string]interface{}{
			"duration":  int(cumulative.Seconds()),
			"last_ping": endedAt,
			"ended_at":  endedAt,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to seed visitor session: %w", err)
	}

	// Visitors who reach the offer page start the questionnaire about half
	// the time.
	if !reachedOfferPage(journey) || rand.Float64() > 0.5 {
		return nil
	}
	return s.seedFormSession(visitorID, device, source, startedAt)
}

func (s *Seeder) seedFormSession(visitorID, device string, source sourceProfile, startedAt time.Time) error {
	steps := forms.MustFunnel()

	// Bias toward early abandonment so the funnel narrows realistically.
	reachedCount := 1 + rand.IntN(len(steps))
	if rand.Float64() < 0.3 {
		reachedCount = len(steps)
	}

	var history []forms.StepEvent
	cursor := startedAt.Add(time.Minute)
	totalDuration := 0
	for i := 0; i < reachedCount; i++ {
		step := steps[i]
		dwell := rand.IntN(40) + 5
		left := cursor.Add(time.Duration(dwell) * time.Second)
		event := forms.StepEvent{
			Step:      step.Step,
			StepName:  step.Name,
			EnteredAt: cursor,
			LeftAt:    &left,
			Duration:  &dwell,
			Answer:    demoAnswer(step),
		}
		if event.Answer == nil && step.Kind != forms.StepKindForm {
			event.WasSkipped = true
		}
		history = append(history, event)
		cursor = left
		totalDuration += dwell
	}

	completed := reachedCount == len(steps) && rand.Float64() < 0.8
	lastStep := steps[reachedCount-1].Step

	formSession := &forms.FormSession{
		VisitorID:      visitorID,
		StartedAt:      startedAt.Add(time.Minute),
		Completed:      completed,
		Abandoned:      !completed,
		MaxStepReached: lastStep,
		DeviceType:     device,
		UTMSource:      source.utmSource,
		StepHistory:    encodeDemoHistory(history),
	}
	if completed {
		formSession.TotalDuration = totalDuration
	} else {
		formSession.ExitStep = &lastStep
	}

	db := s.DBManager.GetConnection()
	err := sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
		return tx.Create(formSession).Error
	})
	if err != nil {
		return fmt.Errorf("failed to seed form session: %w", err)
	}

	if !completed {
		return nil
	}
	return s.seedLead(source, cursor)
}

func (s *Seeder) seedLead(source sourceProfile, convertedAt time.Time) error {
	channel := source.utmSource
	if channel == "" {
		channel = "direct"
	}

	journeyLen := 1 + rand.IntN(4)
	input := &leads.CreateLeadInput{
		Name:      fmt.Sprintf("Demo Seller %d", rand.IntN(10000)),
		Email:     fmt.Sprintf("seller%d@example.com", rand.IntN(10000)),
		Source:    channel,
		DealValue: float64((rand.IntN(16) + 4) * 25000),
	}
	for i := 0; i < journeyLen; i++ {
		tpSource := channel
		if i < journeyLen-1 {
			tpSource = pick([]string{"google_organic", "google_ads", "facebook", "direct", "email"})
		}
		input.Journey = append(input.Journey, leads.TouchpointInput{
			Source:     tpSource,
			Action:     pick([]string{"visit", "ad_click", "email_open"}),
			OccurredAt: convertedAt.Add(-time.Duration(journeyLen-i) * 24 * time.Hour),
		})
	}

	if _, err := leads.CreateLead(s.DBManager, s.Logger, input); err != nil {
		return fmt.Errorf("failed to seed lead: %w", err)
	}
	return nil
}

// demoAnswer produces a plausible answer for the step kind, occasionally
// returning nil to simulate a skip.
func demoAnswer(step forms.FunnelStep) interface{} {
	if rand.Float64() < 0.08 {
		return nil
	}

	switch step.Kind {
	case forms.StepKindSelect:
		if len(step.Options) == 0 {
			return nil
		}
		return step.Options[rand.IntN(len(step.Options))]
	case forms.StepKindMultiSelect:
		if len(step.Options) == 0 {
			return nil
		}
		count := 1 + rand.IntN(3)
		picked := make([]string, 0, count)
		for _, idx := range rand.Perm(len(step.Options))[:min(count, len(step.Options))] {
			picked = append(picked, step.Options[idx])
		}
		return picked
	case forms.StepKindSlider:
		if step.Range == nil {
			return nil
		}
		span := step.Range.Max - step.Range.Min
		return step.Range.Min + float64(rand.IntN(int(span/1000)+1))*1000
	}
	return nil
}

func encodeDemoHistory(events []forms.StepEvent) string {
	blob, err := forms.EncodeHistory(events)
	if err != nil {
		return "[]"
	}
	return blob
}

func reachedOfferPage(journey []string) bool {
	for _, path := range journey {
		if path == "/get-offer" {
			return true
		}
	}
	return false
}

func pick(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[rand.IntN(len(values))]
}
