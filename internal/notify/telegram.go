// Package notify reports hard-failed executions to the operator's Telegram
// chat. Delivery is best effort; a failed alert only logs.
package notify

import (
	"fmt"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"pressroom/internal/models"
)

type TelegramNotifier struct {
	bot    *tele.Bot
	chatID int64
	logger *zap.Logger
}

// NewTelegramNotifier returns nil when no token is configured, which
// callers treat as alerting disabled.
func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("create alert bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) ExecutionFailed(job *models.AutomationJob, exec *models.JobExecution, errMsg string) {
	text := fmt.Sprintf(
		"❌ Newsletter run failed\nJob: %s (#%d)\nWorkspace: %s\nExecution: %s\nError: %s",
		job.Name, job.ID, job.WorkspaceID, exec.ID, errMsg,
	)
	if _, err := n.bot.Send(tele.ChatID(n.chatID), text); err != nil {
		n.logger.Warn("Failed to deliver failure alert",
			zap.Uint("job_id", job.ID), zap.Error(err))
	}
}
