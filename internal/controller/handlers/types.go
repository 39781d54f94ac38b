package handlers

import (
	"time"

	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/zakariya2002/autisme-connect-sub000/internal/controller/state"
	"github.com/zakariya2002/autisme-connect-sub000/internal/service"
)

// Handlers holds the dependencies of the bot commands
type Handlers struct {
	appointments *service.AppointmentService
	gate         *service.SessionGate
	stateManager *state.Manager
	location     *time.Location
	lang         language.Tag
	logger       *zap.Logger
}

func NewHandlers(
	appointments *service.AppointmentService,
	gate *service.SessionGate,
	stateManager *state.Manager,
	location *time.Location,
	lang language.Tag,
	logger *zap.Logger,
) *Handlers {
	if location == nil {
		location = time.UTC
	}
	return &Handlers{
		appointments: appointments,
		gate:         gate,
		stateManager: stateManager,
		location:     location,
		lang:         lang,
		logger:       logger,
	}
}

// Reply is the message sent back to the chat.
type Reply struct {
	Text   string
	Markup models.ReplyMarkup
}

func text(format string, args ...any) Reply {
	if len(args) == 0 {
		return Reply{Text: format}
	}
	return Reply{Text: sprintf(format, args...)}
}
