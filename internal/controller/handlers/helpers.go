package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/finance"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

var errNotLinked = errors.New("chat is not linked")

func sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// parseCommand splits "/cmd@bot a b" into "/cmd" and its arguments.
func parseCommand(input string) (string, []string) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return "", nil
	}
	command := fields[0]
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return strings.ToLower(command), fields[1:]
}

func parseAppointmentID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// actorForChat resolves the party linked to the chat.
func (h *Handlers) actorForChat(ctx context.Context, chatID int64) (model.Actor, error) {
	link, err := h.appointments.PartyByChat(ctx, chatID)
	if err != nil {
		return model.Actor{}, err
	}
	if link == nil {
		return model.Actor{}, errNotLinked
	}
	return model.Actor{Role: link.Role, ID: link.PartyID}, nil
}

func (h *Handlers) requireEducator(ctx context.Context, chatID int64) (model.Actor, *Reply) {
	actor, err := h.actorForChat(ctx, chatID)
	if err != nil {
		reply := h.errorReply(chatID, err)
		return model.Actor{}, &reply
	}
	if actor.Role != model.PartyRoleEducator {
		reply := text("❌ This command is only available to educators.")
		return model.Actor{}, &reply
	}
	return actor, nil
}

func (h *Handlers) money(amount int64, currency string) string {
	return finance.FormatMajor(amount, currency, h.lang)
}

func (h *Handlers) clock(t time.Time) string {
	return t.In(h.location).Format("15:04")
}

// errorReply turns a service error into a chat message.
func (h *Handlers) errorReply(chatID int64, err error) Reply {
	if errors.Is(err, errNotLinked) {
		return text("🔗 This chat is not linked to an account yet. Ask support to link chat id %d.", chatID)
	}

	e, ok := apperr.As(err)
	if !ok {
		h.logger.Error("Bot command failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return text("❌ Something went wrong. Please try again later.")
	}

	switch {
	case e.Locked:
		return text("🔒 %s", e.Message)
	case e.AttemptsLeft != nil:
		return text("❌ %s. Attempts left: %d", e.Message, *e.AttemptsLeft)
	case e.HoursRemaining > 0:
		return text("⏳ %s (%d h before the session).", e.Message, e.HoursRemaining)
	case e.MinutesRemaining > 0:
		return text("⏳ %s (%d min left).", e.Message, e.MinutesRemaining)
	}

	switch e.Kind {
	case apperr.KindNotFound:
		return text("❌ Appointment not found.")
	case apperr.KindAuthorization:
		return text("⛔ %s.", e.Message)
	case apperr.KindConflict:
		return text("⚠️ %s.", e.Message)
	case apperr.KindExternalService:
		h.logger.Warn("External service error in bot command", zap.Int64("chat_id", chatID), zap.Error(err))
		return text("⚠️ A partner service is unavailable. Please try again in a moment.")
	}
	return text("❌ %s.", e.Message)
}
