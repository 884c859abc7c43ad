// Package telegram tells operators about finished batches.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"mediaflow/internal/config"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/metrics"
)

var _ adapter.BatchNotifier = (*BatchNotifier)(nil)

// BatchNotifier sends one message per admin chat when a batch finishes.
type BatchNotifier struct {
	send    func(chatID int64, text string) error
	chatIDs []int64
	log     *zerolog.Logger
}

func NewBatchNotifier(cfg config.TelegramConfig, log *zerolog.Logger) (*BatchNotifier, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: empty token")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	send := func(chatID int64, text string) error {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		_, err := bot.Send(msg)
		return err
	}
	return newBatchNotifier(send, cfg.AdminChatIDs, log), nil
}

func newBatchNotifier(send func(int64, string) error, chatIDs []int64, log *zerolog.Logger) *BatchNotifier {
	l := log.With().Str("component", "telegram").Logger()
	return &BatchNotifier{send: send, chatIDs: chatIDs, log: &l}
}

func (n *BatchNotifier) BatchFinished(ctx context.Context, b *model.Batch) error {
	text := BatchMessage(b)
	var errs []error
	for _, id := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := n.send(id, text); err != nil {
			n.log.Warn().Err(err).Int64("chat_id", id).Str("batch_id", b.ID).Msg("batch notification failed")
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	metrics.IncBatchNotification(string(b.Status), err)
	return err
}

// BatchMessage renders the operator summary of a finished batch.
func BatchMessage(b *model.Batch) string {
	icon := "✅"
	switch b.Status {
	case model.BatchStatusFailed:
		icon = "❌"
	case model.BatchStatusPartial:
		icon = "⚠️"
	}
	var sb strings.Builder
	name := b.Name
	if name == "" {
		name = b.ID
	}
	fmt.Fprintf(&sb, "%s Batch %q %s\n", icon, name, b.Status)
	fmt.Fprintf(&sb, "Completed: %d/%d", b.CompletedJobs, b.TotalJobs)
	if b.FailedJobs > 0 {
		fmt.Fprintf(&sb, ", failed: %d", b.FailedJobs)
	}
	if b.IsMaster {
		sb.WriteString("\nMaster batch: ready to review and publish.")
	}
	fmt.Fprintf(&sb, "\nID: %s", b.ID)
	return sb.String()
}
