package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/calbot/internal/dialog"
	"github.com/user/calbot/internal/dispatch"
	"github.com/user/calbot/internal/types"
)

const maxTelegramMessage = 4096

// Adapter bridges Telegram to the dialog engine: long-polled updates go
// into the dispatch queue, replies come back out with the action keyboard
// when asked.
type Adapter struct {
	bot    *tgbotapi.BotAPI
	engine *dialog.Engine
	queue  *dispatch.Queue
}

// New creates a Telegram adapter and registers it as the queue's processor.
func New(token string, engine *dialog.Engine, queue *dispatch.Queue) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := &Adapter{
		bot:    bot,
		engine: engine,
		queue:  queue,
	}
	queue.SetProcessor(a.Process)
	return a, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.enqueue(update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) enqueue(msg *tgbotapi.Message) {
	inbound := &types.InboundMessage{
		UserID: types.UserIDFromInt64(msg.From.ID),
		ChatID: msg.Chat.ID,
		Text:   msg.Text,
	}
	if err := a.queue.Enqueue(inbound); err != nil {
		slog.Error("enqueue message failed", "user_id", string(inbound.UserID), "error", err)
		a.sendText(msg.Chat.ID, "I'm busy with your earlier messages. Please try again in a moment.")
	}
}

// Process runs one message through the dialog engine and sends the reply.
// It is invoked by the dispatch queue, one at a time per user.
func (a *Adapter) Process(ctx context.Context, msg *types.InboundMessage) error {
	reply := a.engine.HandleMessage(ctx, msg)
	if reply == nil || reply.Text == "" {
		return nil
	}
	return a.send(msg.ChatID, reply)
}

func (a *Adapter) send(chatID int64, reply *types.Reply) error {
	parts := splitMessage(reply.Text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if reply.ShowMenu && i == len(parts)-1 {
			msg.ReplyMarkup = menuKeyboard()
		}
		if _, err := a.bot.Send(msg); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func (a *Adapter) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := a.bot.Send(msg); err != nil {
		slog.Error("send message failed", "chat_id", chatID, "error", err)
	}
}

// menuKeyboard is the persistent action menu shown after /start and at the
// end of each flow.
func menuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(dialog.CmdAddEvent),
			tgbotapi.NewKeyboardButton(dialog.CmdDeleteEvent),
			tgbotapi.NewKeyboardButton(dialog.CmdViewEvents),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
