// Package apex implements the apex bot: an automated registration flow that
// collects a shared contact and persists the verified phone number.
package apex

import (
	"context"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_bridge_bot/internal/domain"
	"tg_bridge_bot/internal/logging"
	"tg_bridge_bot/internal/telegram"
)

const (
	registrationPrompt = "Для завершения регистрации поделитесь, пожалуйста, номером телефона, нажав кнопку ниже."
	contactButtonLabel = "📱 Отправить номер телефона"
	successMessage     = "✅ Номер телефона подтверждён! Вернитесь на сайт, чтобы продолжить регистрацию."
	failureMessage     = "❌ Не удалось сохранить номер телефона. Попробуйте ещё раз позже."
)

type sender interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) error
}

type verificationStore interface {
	Replace(ctx context.Context, record domain.VerificationRecord) (domain.VerificationRecord, error)
}

// Handler classifies apex bot updates and performs the resulting sends and
// verification writes.
type Handler struct {
	api           sender
	verifications verificationStore
	logger        *logrus.Entry
}

// NewHandler constructs an apex Handler.
func NewHandler(api sender, verifications verificationStore, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Handler{
		api:           api,
		verifications: verifications,
		logger:        logger,
	}
}

// HandleUpdate maps one inbound update to zero or more outbound sends.
// Unmatched updates are dropped with a debug log only.
func (h *Handler) HandleUpdate(ctx context.Context, update *models.Update) error {
	if update == nil || update.Message == nil {
		return nil
	}

	msg := update.Message

	switch {
	case msg.Text == "/start":
		return h.sendContactPrompt(ctx, msg.Chat.ID)

	case msg.Contact != nil:
		return h.storeContact(ctx, msg)

	default:
		h.logger.WithFields(logging.Fields{
			"event":   "apex_update_ignored",
			"chat_id": msg.Chat.ID,
		}).Debug("update matched no apex branch")
		return nil
	}
}

func (h *Handler) sendContactPrompt(ctx context.Context, chatID int64) error {
	return h.api.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: chatID,
		Text:   registrationPrompt,
		ReplyMarkup: models.ReplyKeyboardMarkup{
			Keyboard: [][]models.KeyboardButton{
				{{Text: contactButtonLabel, RequestContact: true}},
			},
			ResizeKeyboard: true,
		},
	})
}

// storeContact persists the verification record and always resolves to a
// user-facing message. Persistence failures are reported to the user and never
// escalate past this handler.
func (h *Handler) storeContact(ctx context.Context, msg *models.Message) error {
	phone := NormalizePhone(msg.Contact.PhoneNumber)

	_, err := h.verifications.Replace(ctx, domain.VerificationRecord{
		ChatID:      msg.Chat.ID,
		PhoneNumber: phone,
	})
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"event":   "apex_verification_failed",
			"chat_id": msg.Chat.ID,
		}).WithError(err).Error("failed to persist verification")

		return h.api.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:      msg.Chat.ID,
			Text:        failureMessage,
			ReplyMarkup: models.ReplyKeyboardRemove{RemoveKeyboard: true},
		})
	}

	h.logger.WithFields(logging.Fields{
		"event":   "apex_verification_stored",
		"chat_id": msg.Chat.ID,
	}).Info("stored phone verification")

	return h.api.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:      msg.Chat.ID,
		Text:        successMessage,
		ReplyMarkup: models.ReplyKeyboardRemove{RemoveKeyboard: true},
	})
}
