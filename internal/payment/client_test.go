package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func TestClientSendsIdempotencyKey(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/captures", r.URL.Path)
		assert.Equal(t, "appointment:12:capture", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"cap_1","status":"succeeded"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", zap.NewNop(), WithBackOff(fastBackOff))
	receipt, err := c.Capture(context.Background(), Request{AppointmentID: 12, Action: model.SettlementActionCapture, Amount: 5000, Currency: "EUR"})

	require.NoError(t, err)
	assert.Equal(t, "cap_1", receipt.ID)
	assert.Equal(t, int64(5000), got.Amount)
}

func TestClientRetriesServerErrorsWithSameKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "appointment:3:refund", r.Header.Get("Idempotency-Key"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"ref_1","status":"succeeded"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop(), WithBackOff(fastBackOff))
	receipt, err := c.Refund(context.Background(), Request{AppointmentID: 3, Action: model.SettlementActionRefund, Amount: 100})

	require.NoError(t, err)
	assert.Equal(t, "ref_1", receipt.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "card declined", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop(), WithBackOff(fastBackOff))
	_, err := c.Capture(context.Background(), Request{AppointmentID: 1, Action: model.SettlementActionCapture, Amount: 1})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "card declined")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientGivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zap.NewNop(), WithBackOff(fastBackOff), WithMaxTries(2))
	_, err := c.Capture(context.Background(), Request{AppointmentID: 1, Action: model.SettlementActionCapture, Amount: 1})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecuteDispatchesOnAction(t *testing.T) {
	p := &recordingProcessor{}
	_, _ = Execute(context.Background(), p, Request{Action: model.SettlementActionRefund})
	_, _ = Execute(context.Background(), p, Request{Action: model.SettlementActionCapture})
	assert.Equal(t, []string{"refund", "capture"}, p.calls)
}

type recordingProcessor struct {
	calls []string
}

func (p *recordingProcessor) Capture(ctx context.Context, req Request) (*Receipt, error) {
	p.calls = append(p.calls, "capture")
	return &Receipt{}, nil
}

func (p *recordingProcessor) Refund(ctx context.Context, req Request) (*Receipt, error) {
	p.calls = append(p.calls, "refund")
	return &Receipt{}, nil
}
