// Package keyboard builds inline keyboards for bot replies.
package keyboard

import (
	"fmt"

	"github.com/go-telegram/bot/models"
)

// Callback data prefixes. The appointment id follows the colon.
const (
	PrefixCountdown = "countdown:"
	PrefixPolicy    = "policy:"
)

// Builder assembles an inline keyboard row by row
type Builder struct {
	rows [][]models.InlineKeyboardButton
}

func NewBuilder() *Builder {
	return &Builder{
		rows: make([][]models.InlineKeyboardButton, 0),
	}
}

// Row appends a row; empty rows are skipped.
func (b *Builder) Row(buttons ...models.InlineKeyboardButton) *Builder {
	if len(buttons) > 0 {
		b.rows = append(b.rows, buttons)
	}
	return b
}

func Button(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

func (b *Builder) Build() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: b.rows,
	}
}

// Appointment is the keyboard attached to appointment replies.
func Appointment(id int64) *models.InlineKeyboardMarkup {
	return NewBuilder().
		Row(
			Button("⏱ Countdown", fmt.Sprintf("%s%d", PrefixCountdown, id)),
			Button("📋 Time windows", fmt.Sprintf("%s%d", PrefixPolicy, id)),
		).
		Build()
}
