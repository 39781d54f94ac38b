package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

func completedAppointment() *model.Appointment {
	return &model.Appointment{
		ID:                 42,
		FamilyID:           1,
		EducatorID:         2,
		Date:               time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime:          14 * 60,
		EndTime:            15 * 60,
		Status:             model.AppointmentStatusCompleted,
		Price:              10000,
		Currency:           "EUR",
		FamilyChargeAmount: 10000,
		CompensationAmount: 8800,
	}
}

func TestGenerateArchivesInvoice(t *testing.T) {
	store := NewMemoryStore()
	g := NewGenerator(store, language.English, zap.NewNop())

	inv, err := g.Generate(context.Background(), completedAppointment())
	require.NoError(t, err)

	assert.Equal(t, "AC-2026-000042", inv.Number)
	assert.Equal(t, int64(10000), inv.Total)
	require.Len(t, inv.Lines, 2)
	assert.Equal(t, int64(8800), inv.Lines[0].Amount)
	assert.Equal(t, int64(1200), inv.Lines[1].Amount)

	body, ok := store.Object(ObjectKey(42))
	require.True(t, ok)
	var archived Invoice
	require.NoError(t, json.Unmarshal(body, &archived))
	assert.Equal(t, inv.ID, archived.ID)
}

func TestBuildIsStable(t *testing.T) {
	g := NewGenerator(NewMemoryStore(), language.English, zap.NewNop())

	first, err := g.Build(completedAppointment(), time.Now())
	require.NoError(t, err)
	second, err := g.Build(completedAppointment(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Number, second.Number)
}

func TestBuildRequiresCompletedAppointment(t *testing.T) {
	g := NewGenerator(NewMemoryStore(), language.English, zap.NewNop())
	a := completedAppointment()
	a.Status = model.AppointmentStatusAccepted

	_, err := g.Build(a, time.Now())
	assert.Error(t, err)
}
