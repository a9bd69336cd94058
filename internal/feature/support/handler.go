// Package support implements the support bot: a human-in-the-loop relay where
// user messages are forwarded to the admin and admin replies are routed back.
package support

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_bridge_bot/internal/logging"
	"tg_bridge_bot/internal/telegram"
)

const (
	welcomeMessage = "👋 Здравствуйте! Это служба поддержки.\n\nНапишите ваш вопрос, и оператор ответит вам в ближайшее время."
	ackMessage     = "✅ Ваше сообщение получено. Оператор ответит вам в ближайшее время."
	replyDelivered = "✅ Ответ доставлен пользователю."
	replyHelp      = "⚠️ Чтобы ответить пользователю, используйте «Ответить» на сообщении, содержащем его ID."
)

type sender interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) error
}

type statsProvider interface {
	CountVerifications(ctx context.Context) (int64, error)
}

// Handler classifies support bot updates and performs the resulting sends.
type Handler struct {
	api         sender
	adminChatID int64
	stats       statsProvider
	logger      *logrus.Entry
}

// NewHandler constructs a support Handler. stats may be nil; the /stats admin
// command then reports that diagnostics are unavailable.
func NewHandler(api sender, adminChatID int64, stats statsProvider, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Handler{
		api:         api,
		adminChatID: adminChatID,
		stats:       stats,
		logger:      logger,
	}
}

// HandleUpdate maps one inbound update to zero or more outbound sends.
// Unmatched updates are dropped with a debug log only.
func (h *Handler) HandleUpdate(ctx context.Context, update *models.Update) error {
	if update == nil || update.Message == nil {
		return nil
	}

	msg := update.Message
	isAdmin := msg.Chat.ID == h.adminChatID

	switch {
	case msg.Text == "/start" && !isAdmin:
		return h.api.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: msg.Chat.ID,
			Text:   welcomeMessage,
		})

	case isAdmin && msg.ReplyToMessage != nil:
		return h.routeAdminReply(ctx, msg)

	case isAdmin && msg.Text == "/stats":
		return h.sendStats(ctx)

	case msg.Text != "" && !isAdmin:
		return h.forwardToAdmin(ctx, msg)

	default:
		h.logger.WithFields(logging.Fields{
			"event":   "support_update_ignored",
			"chat_id": msg.Chat.ID,
		}).Debug("update matched no support branch")
		return nil
	}
}

// routeAdminReply extracts the target user id from the quoted forward and
// relays the admin's text to that user.
func (h *Handler) routeAdminReply(ctx context.Context, msg *models.Message) error {
	targetID, ok := extractRelayID(msg.ReplyToMessage.Text)
	if !ok {
		return h.api.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: h.adminChatID,
			Text:   replyHelp,
		})
	}

	if err := h.api.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: targetID,
		Text:   msg.Text,
	}); err != nil {
		return fmt.Errorf("relay admin reply to %d: %w", targetID, err)
	}

	h.logger.WithFields(logging.Fields{
		"event":   "support_reply_routed",
		"chat_id": targetID,
	}).Info("routed admin reply to user")

	return h.api.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: h.adminChatID,
		Text:   replyDelivered,
	})
}

func (h *Handler) forwardToAdmin(ctx context.Context, msg *models.Message) error {
	if err := h.api.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   ackMessage,
	}); err != nil {
		return fmt.Errorf("acknowledge user %d: %w", msg.Chat.ID, err)
	}

	if err := h.api.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: h.adminChatID,
		Text:   formatForward(msg.From, msg.Chat.ID, msg.Text),
	}); err != nil {
		return fmt.Errorf("forward message from %d to admin: %w", msg.Chat.ID, err)
	}

	h.logger.WithFields(logging.Fields{
		"event":   "support_message_forwarded",
		"chat_id": msg.Chat.ID,
	}).Info("forwarded user message to admin")

	return nil
}

func (h *Handler) sendStats(ctx context.Context) error {
	if h.stats == nil {
		return h.api.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: h.adminChatID,
			Text:   "Статистика недоступна.",
		})
	}

	count, err := h.stats.CountVerifications(ctx)
	if err != nil {
		h.logger.WithField("event", "support_stats_error").WithError(err).Warn("failed to count verifications")
		return h.api.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: h.adminChatID,
			Text:   "Статистика недоступна.",
		})
	}

	return h.api.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: h.adminChatID,
		Text:   fmt.Sprintf("📊 Подтверждённых номеров: %d", count),
	})
}
