package handlers

import (
	"context"
	"strings"

	"github.com/zakariya2002/autisme-connect-sub000/internal/controller/keyboard"
	"github.com/zakariya2002/autisme-connect-sub000/internal/controller/state"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

const helpText = "📚 Commands:\n\n" +
	"/start_session <id> <pin> - Start a session with the family's start PIN\n" +
	"/complete_session <id> <pin> - Complete a session with the completion PIN\n" +
	"/no_show <id> - Report that the family did not attend\n" +
	"/countdown <id> - Time left in a session\n" +
	"/cancel - Abort the current dialog\n" +
	"/help - Show this help\n\n" +
	"You can send the command without the PIN and the bot will ask for it."

// Dispatch routes a text message to its command, or to the open dialog when
// the message is not a command.
func (h *Handlers) Dispatch(ctx context.Context, chatID int64, input string) Reply {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return h.handleDialogInput(ctx, chatID, input)
	}

	command, args := parseCommand(input)
	switch command {
	case "/start":
		return h.handleStart(ctx, chatID)
	case "/help":
		return text(helpText)
	case "/cancel":
		return h.handleCancel(chatID)
	case "/start_session":
		return h.handlePinCommand(ctx, chatID, model.PinModeStart, args)
	case "/complete_session":
		return h.handlePinCommand(ctx, chatID, model.PinModeComplete, args)
	case "/no_show":
		return h.handleNoShow(ctx, chatID, args)
	case "/countdown":
		return h.handleCountdown(ctx, chatID, args)
	}
	return text("🤔 Unknown command. Use /help to see the available commands.")
}

func (h *Handlers) handleStart(ctx context.Context, chatID int64) Reply {
	actor, err := h.actorForChat(ctx, chatID)
	if err != nil {
		return h.errorReply(chatID, err)
	}
	return text("👋 Hello! This chat is linked to %s #%d.\n\n%s", actor.Role, actor.ID, helpText)
}

func (h *Handlers) handleCancel(chatID int64) Reply {
	if h.stateManager.GetState(chatID) == state.StateNone {
		return text("❌ Nothing to cancel.")
	}
	h.stateManager.ClearState(chatID)
	return text("✅ Cancelled.")
}

// handlePinCommand runs the session command at once when the PIN is given
// and otherwise asks for it.
func (h *Handlers) handlePinCommand(ctx context.Context, chatID int64, mode model.PinMode, args []string) Reply {
	actor, reply := h.requireEducator(ctx, chatID)
	if reply != nil {
		return *reply
	}

	id, ok := parseAppointmentID(args)
	if !ok {
		return text("❌ Usage: /%s_session <appointment id> <pin>", mode)
	}

	if len(args) < 2 {
		next := state.StateAwaitingStartPin
		if mode == model.PinModeComplete {
			next = state.StateAwaitingCompletePin
		}
		h.stateManager.SetState(chatID, next)
		h.stateManager.SetData(chatID, state.KeyAppointmentID, id)
		return text("🔢 Send the family's %s PIN for appointment #%d, or /cancel.", mode, id)
	}

	return h.runSession(ctx, chatID, actor, mode, id, args[1])
}

func (h *Handlers) handleDialogInput(ctx context.Context, chatID int64, input string) Reply {
	var mode model.PinMode
	switch h.stateManager.GetState(chatID) {
	case state.StateAwaitingStartPin:
		mode = model.PinModeStart
	case state.StateAwaitingCompletePin:
		mode = model.PinModeComplete
	default:
		return text("Use /help to see the available commands.")
	}

	id, ok := h.stateManager.GetInt64(chatID, state.KeyAppointmentID)
	if !ok {
		h.stateManager.ClearState(chatID)
		return text("❌ The dialog expired. Send the command again.")
	}

	actor, reply := h.requireEducator(ctx, chatID)
	if reply != nil {
		h.stateManager.ClearState(chatID)
		return *reply
	}

	return h.runSession(ctx, chatID, actor, mode, id, input)
}

// runSession keeps the dialog open after a wrong PIN that still has
// attempts left and closes it otherwise.
func (h *Handlers) runSession(ctx context.Context, chatID int64, actor model.Actor, mode model.PinMode, id int64, pin string) Reply {
	run := h.gate.StartSession
	if mode == model.PinModeComplete {
		run = h.gate.CompleteSession
	}

	result, err := run(ctx, actor, id, strings.TrimSpace(pin))
	if err != nil {
		reply := h.errorReply(chatID, err)
		if !retryable(err) {
			h.stateManager.ClearState(chatID)
		}
		return reply
	}
	h.stateManager.ClearState(chatID)

	a := result.Appointment
	if mode == model.PinModeStart {
		return Reply{
			Text:   sprintf("▶️ Session #%d started at %s. Duration: %s.", a.ID, h.clock(*a.StartedAt), formatDuration(a)),
			Markup: keyboard.Appointment(a.ID),
		}
	}

	msg := sprintf("🏁 Session #%d completed. Payout: %s.", a.ID, h.money(a.CompensationAmount, a.Currency))
	switch {
	case result.SettlementPending:
		msg += "\n⏳ The payment is still being processed."
	case a.SettlementStatus == model.SettlementStatusFailed:
		msg += "\n⚠️ The payment was declined. Support will contact the family."
	}
	return Reply{Text: msg}
}

func (h *Handlers) handleNoShow(ctx context.Context, chatID int64, args []string) Reply {
	actor, reply := h.requireEducator(ctx, chatID)
	if reply != nil {
		return *reply
	}
	id, ok := parseAppointmentID(args)
	if !ok {
		return text("❌ Usage: /no_show <appointment id>")
	}

	result, err := h.appointments.ReportNoShow(ctx, actor, id)
	if err != nil {
		return h.errorReply(chatID, err)
	}

	a := result.Appointment
	msg := sprintf("⚠️ No-show recorded for appointment #%d. Compensation: %s.", id, h.money(result.CompensationAmount, a.Currency))
	if result.SettlementPending {
		msg += "\n⏳ The payment is still being processed."
	}
	return Reply{Text: msg}
}

func (h *Handlers) handleCountdown(ctx context.Context, chatID int64, args []string) Reply {
	id, ok := parseAppointmentID(args)
	if !ok {
		return text("❌ Usage: /countdown <appointment id>")
	}
	return h.countdownReply(ctx, chatID, id)
}
