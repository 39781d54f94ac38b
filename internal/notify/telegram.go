package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/text/language"

	"github.com/zakariya2002/autisme-connect-sub000/internal/finance"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type PartyLookup interface {
	GetByParty(ctx context.Context, role model.PartyRole, partyID int64) (*model.PartyLink, error)
}

// TelegramNotifier messages the linked chats of both parties. Parties
// without a linked chat are skipped.
type TelegramNotifier struct {
	sender  MessageSender
	parties PartyLookup
	lang    language.Tag
}

func NewTelegramNotifier(sender MessageSender, parties PartyLookup, lang language.Tag) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, parties: parties, lang: lang}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Notify(ctx context.Context, event model.Event) error {
	var errs []error
	for _, role := range []model.PartyRole{model.PartyRoleFamily, model.PartyRoleEducator} {
		text := n.message(event, role)
		if text == "" {
			continue
		}

		partyID := event.FamilyID
		if role == model.PartyRoleEducator {
			partyID = event.EducatorID
		}
		link, err := n.parties.GetByParty(ctx, role, partyID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if link == nil {
			continue
		}

		_, err = n.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: link.TelegramChatID,
			Text:   text,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("send to %s %d: %w", role, partyID, err))
		}
	}
	return errors.Join(errs...)
}

func (n *TelegramNotifier) message(event model.Event, role model.PartyRole) string {
	amount := finance.FormatMajor(event.Amount, event.Currency, n.lang)
	compensation := finance.FormatMajor(event.Compensation, event.Currency, n.lang)
	id := event.AppointmentID

	switch event.Type {
	case model.EventAppointmentAccepted:
		if role == model.PartyRoleFamily {
			return fmt.Sprintf("✅ Appointment #%d was accepted.", id)
		}
	case model.EventAppointmentRejected:
		if role == model.PartyRoleFamily {
			return fmt.Sprintf("❌ Appointment #%d was declined.", id)
		}
	case model.EventSessionStarted:
		return fmt.Sprintf("▶️ Session #%d has started.", id)
	case model.EventSessionCompleted:
		if role == model.PartyRoleFamily {
			return fmt.Sprintf("🏁 Session #%d is complete. %s will be charged.", id, amount)
		}
		return fmt.Sprintf("🏁 Session #%d is complete. Payout: %s.", id, compensation)
	case model.EventAppointmentCancelled:
		if role == model.PartyRoleFamily {
			return fmt.Sprintf("🚫 Appointment #%d was cancelled. Refund: %s.", id, amount)
		}
		return fmt.Sprintf("🚫 Appointment #%d was cancelled.", id)
	case model.EventAppointmentNoShow:
		if role == model.PartyRoleFamily {
			return fmt.Sprintf("⚠️ Appointment #%d was reported as a no-show. %s will be charged.", id, amount)
		}
		return fmt.Sprintf("⚠️ No-show recorded for appointment #%d. Compensation: %s.", id, compensation)
	case model.EventSettlementFailed:
		if role == model.PartyRoleFamily {
			return fmt.Sprintf("💳 The payment of %s for appointment #%d was declined. Support will contact you.", amount, id)
		}
	}
	return ""
}
