// Package invoice issues the invoice of a completed appointment and archives
// it as a JSON document in object storage.
package invoice

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/zakariya2002/autisme-connect-sub000/internal/finance"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

var idNamespace = uuid.MustParse("b0e7d8a2-4f6c-4c1b-8d0a-9a51c1f3e2d4")

type Line struct {
	Label   string `json:"label"`
	Amount  int64  `json:"amount"`
	Display string `json:"display"`
}

type Invoice struct {
	ID            string    `json:"id"`
	Number        string    `json:"number"`
	AppointmentID int64     `json:"appointment_id"`
	FamilyID      int64     `json:"family_id"`
	EducatorID    int64     `json:"educator_id"`
	SessionDate   string    `json:"session_date"`
	IssuedAt      time.Time `json:"issued_at"`
	Currency      string    `json:"currency"`
	Lines         []Line    `json:"lines"`
	Total         int64     `json:"total"`
	TotalDisplay  string    `json:"total_display"`
}

// ObjectStore is where invoice documents end up.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

type Generator struct {
	store  ObjectStore
	lang   language.Tag
	logger *zap.Logger
}

func NewGenerator(store ObjectStore, lang language.Tag, logger *zap.Logger) *Generator {
	return &Generator{store: store, lang: lang, logger: logger}
}

// Build derives the invoice of a completed appointment. The same appointment
// always yields the same id and number.
func (g *Generator) Build(a *model.Appointment, issuedAt time.Time) (*Invoice, error) {
	if a.Status != model.AppointmentStatusCompleted {
		return nil, fmt.Errorf("appointment %d is %s, not completed", a.ID, a.Status)
	}

	fee := a.FamilyChargeAmount - a.CompensationAmount
	inv := &Invoice{
		ID:            uuid.NewSHA1(idNamespace, []byte(strconv.FormatInt(a.ID, 10))).String(),
		Number:        fmt.Sprintf("AC-%d-%06d", a.Date.Year(), a.ID),
		AppointmentID: a.ID,
		FamilyID:      a.FamilyID,
		EducatorID:    a.EducatorID,
		SessionDate:   a.Date.Format("2006-01-02"),
		IssuedAt:      issuedAt.UTC(),
		Currency:      a.Currency,
		Total:         a.FamilyChargeAmount,
	}
	inv.Lines = []Line{
		g.line("Accompaniment session "+a.StartTime.String()+"-"+a.EndTime.String(), a.CompensationAmount, a.Currency),
		g.line("Platform fee", fee, a.Currency),
	}
	inv.TotalDisplay = finance.FormatMajor(inv.Total, a.Currency, g.lang)
	return inv, nil
}

// Generate builds and archives the invoice. Archiving twice overwrites the
// same object.
func (g *Generator) Generate(ctx context.Context, a *model.Appointment) (*Invoice, error) {
	inv, err := g.Build(a, time.Now())
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("marshal invoice: %w", err)
	}

	key := ObjectKey(a.ID)
	if err := g.store.PutObject(ctx, key, body, "application/json"); err != nil {
		return nil, fmt.Errorf("archive invoice: %w", err)
	}

	g.logger.Info("Invoice archived",
		zap.Int64("appointment_id", a.ID),
		zap.String("number", inv.Number),
		zap.String("object", key),
	)
	return inv, nil
}

func ObjectKey(appointmentID int64) string {
	return "invoices/" + strconv.FormatInt(appointmentID, 10) + ".json"
}

func (g *Generator) line(label string, amount int64, currency string) Line {
	return Line{Label: label, Amount: amount, Display: finance.FormatMajor(amount, currency, g.lang)}
}
