// Package controller wires the Telegram bot used by educators to run their
// sessions.
package controller

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/zakariya2002/autisme-connect-sub000/internal/controller/handlers"
	"github.com/zakariya2002/autisme-connect-sub000/internal/controller/state"
	"github.com/zakariya2002/autisme-connect-sub000/internal/service"
)

type BotController struct {
	bot      *bot.Bot
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func NewBotController(
	botInstance *bot.Bot,
	appointments *service.AppointmentService,
	gate *service.SessionGate,
	location *time.Location,
	lang language.Tag,
	logger *zap.Logger,
) *BotController {
	cmdHandlers := handlers.NewHandlers(
		appointments,
		gate,
		state.NewManager(),
		location,
		lang,
		logger,
	)

	return &BotController{
		bot:      botInstance,
		handlers: cmdHandlers,
		logger:   logger,
	}
}

// RegisterHandlers routes every text message and button press through the
// handlers and sets the command menu.
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	// commands take arguments, so a single prefix handler routes them
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, c.handlers.HandleMessage)
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, c.handlers.HandleCallbackQuery)

	return c.setCommands(ctx)
}

func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start_session", Description: "▶️ Start a session with the start PIN"},
		{Command: "complete_session", Description: "🏁 Complete a session with the completion PIN"},
		{Command: "no_show", Description: "⚠️ Report a family no-show"},
		{Command: "countdown", Description: "⏱ Time left in a session"},
		{Command: "cancel", Description: "❌ Abort the current dialog"},
		{Command: "help", Description: "❓ Help"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})

	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start blocks until ctx is done.
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}
