package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zakariya2002/autisme-connect-sub000/internal/finance"
	"github.com/zakariya2002/autisme-connect-sub000/internal/invoice"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
	"github.com/zakariya2002/autisme-connect-sub000/internal/payment"
	"github.com/zakariya2002/autisme-connect-sub000/internal/pinattempt"
	"github.com/zakariya2002/autisme-connect-sub000/internal/policy"
	"github.com/zakariya2002/autisme-connect-sub000/internal/repository"
)

var paris = time.FixedZone("CET", 3600)

// session on 2026-03-10 from 14:00 to 15:00 local time
var (
	sessionStart = time.Date(2026, 3, 10, 14, 0, 0, 0, paris)
	sessionEnd   = time.Date(2026, 3, 10, 15, 0, 0, 0, paris)
)

var (
	family   = model.Actor{Role: model.PartyRoleFamily, ID: 1}
	educator = model.Actor{Role: model.PartyRoleEducator, ID: 2}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeProcessor struct {
	mu        sync.Mutex
	requests  []payment.Request
	captureFn func(ctx context.Context, req payment.Request) (*payment.Receipt, error)
	refundFn  func(ctx context.Context, req payment.Request) (*payment.Receipt, error)
}

func (f *fakeProcessor) record(req payment.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *fakeProcessor) Capture(ctx context.Context, req payment.Request) (*payment.Receipt, error) {
	f.record(req)
	if f.captureFn != nil {
		return f.captureFn(ctx, req)
	}
	return &payment.Receipt{ID: "cap_" + req.IdempotencyKey(), Status: "succeeded"}, nil
}

func (f *fakeProcessor) Refund(ctx context.Context, req payment.Request) (*payment.Receipt, error) {
	f.record(req)
	if f.refundFn != nil {
		return f.refundFn(ctx, req)
	}
	return &payment.Receipt{ID: "ref_" + req.IdempotencyKey(), Status: "succeeded"}, nil
}

func (f *fakeProcessor) calls() []payment.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]payment.Request(nil), f.requests...)
}

type fakeInvoices struct {
	mu         sync.Mutex
	calls      int
	generated  []int64
	generateFn func(a *model.Appointment) error
}

func (f *fakeInvoices) Generate(ctx context.Context, a *model.Appointment) (*invoice.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.generateFn != nil {
		if err := f.generateFn(a); err != nil {
			return nil, err
		}
	}
	f.generated = append(f.generated, a.ID)
	return &invoice.Invoice{AppointmentID: a.ID}, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *eventRecorder) Publish(event model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []model.EventType
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

type testEnv struct {
	store     *repository.MemoryStore
	attempts  *pinattempt.MemoryStore
	processor *fakeProcessor
	invoices  *fakeInvoices
	events    *eventRecorder
	clock     *testClock
	settler   *Settler
	svc       *AppointmentService
	gate      *SessionGate
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := policy.DefaultConfig()
	cfg.Location = paris

	env := &testEnv{
		store:     repository.NewMemoryStore(),
		attempts:  pinattempt.NewMemoryStore(),
		processor: &fakeProcessor{},
		invoices:  &fakeInvoices{},
		events:    &eventRecorder{},
		clock:     &testClock{now: sessionStart.Add(-72 * time.Hour)},
	}

	logger := zap.NewNop()
	evaluator := policy.NewEvaluator(cfg)
	calculator := finance.NewCalculator(finance.DefaultFeeSchedule())
	hasher := pinattempt.NewHasher(bcrypt.MinCost)

	env.settler = NewSettler(env.store, env.processor, env.invoices, env.events, env.clock.Now, logger)
	env.svc = NewAppointmentService(env.store, env.store, evaluator, calculator, hasher, env.settler, env.events, env.clock.Now, logger)
	env.gate = NewSessionGate(env.store, env.attempts, hasher, evaluator, calculator, env.settler, env.events, 5, env.clock.Now, logger)
	return env
}

func defaultInput() CreateAppointmentInput {
	return CreateAppointmentInput{
		FamilyID:     family.ID,
		EducatorID:   educator.ID,
		Date:         "2026-03-10",
		StartTime:    "14:00",
		EndTime:      "15:00",
		LocationType: model.LocationTypeHome,
		Address:      "12 rue de la Paix, Paris",
		Price:        10000,
		Currency:     "EUR",
	}
}

// accepted creates and accepts an appointment and returns it with its PINs.
func (env *testEnv) accepted(t *testing.T) *RespondResult {
	t.Helper()
	ctx := context.Background()

	a, err := env.svc.Create(ctx, family, defaultInput())
	require.NoError(t, err)

	res, err := env.svc.Respond(ctx, educator, a.ID, true, "")
	require.NoError(t, err)
	return res
}

// started accepts an appointment and starts it at the scheduled start.
func (env *testEnv) started(t *testing.T) *RespondResult {
	t.Helper()
	res := env.accepted(t)

	env.clock.Set(sessionStart)
	_, err := env.gate.StartSession(context.Background(), educator, res.Appointment.ID, res.StartPin)
	require.NoError(t, err)
	return res
}

func wrongPin(pin string) string {
	if pin == "0000" {
		return "1111"
	}
	return "0000"
}
