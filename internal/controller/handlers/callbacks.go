package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/controller/keyboard"
	"github.com/zakariya2002/autisme-connect-sub000/internal/countdown"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
	"github.com/zakariya2002/autisme-connect-sub000/internal/policy"
)

// Callback handles an inline keyboard press.
func (h *Handlers) Callback(ctx context.Context, chatID int64, data string) Reply {
	switch {
	case strings.HasPrefix(data, keyboard.PrefixCountdown):
		if id, ok := callbackID(data, keyboard.PrefixCountdown); ok {
			return h.countdownReply(ctx, chatID, id)
		}
	case strings.HasPrefix(data, keyboard.PrefixPolicy):
		if id, ok := callbackID(data, keyboard.PrefixPolicy); ok {
			return h.policyReply(ctx, chatID, id)
		}
	}
	return text("❌ Invalid button.")
}

func callbackID(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handlers) countdownReply(ctx context.Context, chatID int64, id int64) Reply {
	actor, err := h.actorForChat(ctx, chatID)
	if err != nil {
		return h.errorReply(chatID, err)
	}

	view, err := h.appointments.Countdown(ctx, actor, id)
	if err != nil {
		return h.errorReply(chatID, err)
	}

	var msg string
	switch {
	case view.StartedAt == nil:
		msg = sprintf("⏱ Session #%d has not started. Scheduled duration: %s.", id, view.Display)
	case view.Elapsed:
		msg = sprintf("✅ Session #%d: the scheduled time has elapsed. It can be completed with the completion PIN.", id)
	default:
		msg = sprintf("⏱ Session #%d: %s left.", id, view.Display)
	}
	return Reply{Text: msg, Markup: keyboard.Appointment(id)}
}

func (h *Handlers) policyReply(ctx context.Context, chatID int64, id int64) Reply {
	actor, err := h.actorForChat(ctx, chatID)
	if err != nil {
		return h.errorReply(chatID, err)
	}

	snapshot, err := h.appointments.Policy(ctx, actor, id)
	if err != nil {
		return h.errorReply(chatID, err)
	}

	var b strings.Builder
	b.WriteString(sprintf("📋 Appointment #%d, %s to %s\n\n",
		id,
		snapshot.StartAt.In(h.location).Format("02.01.2006 15:04"),
		h.clock(snapshot.EndAt),
	))
	writeDecision(&b, "Cancel", snapshot.CanCancel)
	writeDecision(&b, "Start session", snapshot.CanStartSession)
	writeDecision(&b, "Complete session", snapshot.CanComplete)
	writeDecision(&b, "Report no-show", snapshot.CanReportNoShow)
	writeDecision(&b, "Join video call", snapshot.CanJoinVideoCall)
	return Reply{Text: b.String()}
}

func writeDecision(b *strings.Builder, label string, d policy.Decision) {
	if d.Allowed {
		b.WriteString(sprintf("✅ %s\n", label))
		return
	}
	b.WriteString(sprintf("⛔ %s: %s\n", label, d.Reason))
}

func formatDuration(a *model.Appointment) string {
	return countdown.Format(int64(a.ScheduledDuration() / time.Second))
}

// retryable reports whether the PIN dialog should stay open.
func retryable(err error) bool {
	e, ok := apperr.As(err)
	if !ok || e.Locked || e.AttemptsLeft == nil {
		return false
	}
	return *e.AttemptsLeft > 0
}
