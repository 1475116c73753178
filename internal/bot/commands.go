package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/models"
	"github.com/xaenox/wheel-bot/internal/storage"
	"github.com/xaenox/wheel-bot/internal/wheel"
)

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	u, err := b.user(ctx, message.From)
	if err != nil {
		b.sendErrorMessage(message.Chat.ID, internalError)
		return
	}
	b.service.LogAction(ctx, u.ID, models.ActionStart, "", nil)
	b.sendMessage(message.Chat.ID, startText)
}

func (b *Bot) handleAbout(message *tgbotapi.Message) {
	b.sendMessage(message.Chat.ID, aboutText())
}

func (b *Bot) handleBuild(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	u, err := b.user(ctx, message.From)
	if err != nil {
		b.sendErrorMessage(chatID, internalError)
		return
	}

	months, err := b.service.ListFillableMonths(ctx, u.ID)
	if err != nil {
		b.logger.Error("Failed to list fillable months",
			zap.Error(err),
			zap.Int64("user_id", u.ID))
		b.sendErrorMessage(chatID, internalError)
		return
	}

	if _, err := b.sessions.StartBuild(ctx, u.ID, months.Labels); err != nil {
		if errors.Is(err, wheel.ErrNoFillableMonths) {
			b.sendMessage(chatID, allFilledText)
			return
		}
		b.logger.Error("Failed to start wheel session",
			zap.Error(err),
			zap.Int64("user_id", u.ID))
		b.sendErrorMessage(chatID, internalError)
		return
	}
	b.sendKeyboard(chatID, chooseMonthText, monthKeyboard(months.Labels))
}

func (b *Bot) handleCancel(ctx context.Context, message *tgbotapi.Message) {
	u, err := b.user(ctx, message.From)
	if err != nil {
		b.sendErrorMessage(message.Chat.ID, internalError)
		return
	}
	had, err := b.sessions.EndBuild(ctx, u.ID)
	if err != nil {
		b.logger.Error("Failed to end wheel session",
			zap.Error(err),
			zap.Int64("user_id", u.ID))
		b.sendErrorMessage(message.Chat.ID, internalError)
		return
	}
	if !had {
		b.sendMessage(message.Chat.ID, nothingToCancel)
		return
	}
	b.sendMessage(message.Chat.ID, cancelledText)
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	u, err := b.user(ctx, message.From)
	if err != nil {
		b.sendErrorMessage(chatID, internalError)
		return
	}

	wheels, err := b.service.ListHistory(ctx, u.ID)
	if err != nil {
		b.logger.Error("Failed to get wheel history",
			zap.Error(err),
			zap.Int64("user_id", u.ID))
		b.sendErrorMessage(chatID, internalError)
		return
	}
	if len(wheels) == 0 {
		b.sendMessage(chatID, emptyHistoryText)
		return
	}
	b.sendKeyboard(chatID, historyText, historyKeyboard(wheel.SortByMonth(wheels)))
}

func (b *Bot) handleCompare(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	u, err := b.user(ctx, message.From)
	if err != nil {
		b.sendErrorMessage(chatID, internalError)
		return
	}

	last, err := b.sessions.LastOpened(ctx, u.ID)
	if err != nil {
		b.logger.Warn("Failed to read last opened wheel",
			zap.Error(err),
			zap.Int64("user_id", u.ID))
	}
	pair, err := b.service.ResolveComparisonPair(ctx, u.ID, last)
	switch {
	case errors.Is(err, wheel.ErrSelfComparison):
		b.sendMessage(chatID, selfCompareText)
		return
	case errors.Is(err, wheel.ErrComparisonUnavailable):
		b.sendMessage(chatID, noCompareText)
		return
	case err != nil:
		b.logger.Error("Failed to resolve comparison",
			zap.Error(err),
			zap.Int64("user_id", u.ID))
		b.sendErrorMessage(chatID, internalError)
		return
	}
	b.compare(ctx, chatID, u.ID, pair.Selected, pair.Baseline)
}

// compare sends the comparison chart and analysis of two of the user's wheels.
func (b *Bot) compare(ctx context.Context, chatID, userID, a, bID int64) {
	b.sendMessage(chatID, comparingText)

	cmp, err := b.service.Compare(ctx, userID, a, bID)
	switch {
	case errors.Is(err, wheel.ErrSelfComparison):
		b.sendMessage(chatID, selfCompareText)
		return
	case wheel.IsNotFound(err):
		b.sendMessage(chatID, wheelMissingText)
		return
	case err != nil:
		b.logger.Error("Failed to compare wheels",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.Int64("wheel_a", a),
			zap.Int64("wheel_b", bID))
		b.sendErrorMessage(chatID, compareFailText)
		return
	}

	if cmp.Image.Ok() {
		b.sendPhoto(chatID, cmp.Image.Value)
	} else {
		b.sendErrorMessage(chatID, compareFailText)
	}
	b.sendMarkdown(chatID, cmp.Analysis)
}

func (b *Bot) handleClean(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	u, err := b.user(ctx, message.From)
	if err != nil {
		b.sendErrorMessage(chatID, internalError)
		return
	}

	wheels, err := b.service.ListHistory(ctx, u.ID)
	if err != nil {
		b.logger.Error("Failed to list wheels for deletion",
			zap.Error(err),
			zap.Int64("user_id", u.ID))
		b.sendErrorMessage(chatID, internalError)
		return
	}
	text := chooseDeleteText
	if len(wheels) == 0 {
		text = noWheelsText
	}
	b.sendKeyboard(chatID, text, cleanKeyboard(wheel.SortByMonth(wheels)))
}

func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	if b.admins == nil || !b.admins.IsAdmin(message.From.ID) {
		b.sendMessage(chatID, noRightsText)
		return
	}

	stats, err := storage.CollectStatistics(ctx, b.stats, b.service.Now())
	if err != nil {
		b.logger.Error("Failed to collect statistics",
			zap.Error(err),
			zap.Int64("telegram_id", message.From.ID))
		b.sendErrorMessage(chatID, internalError)
		return
	}
	b.sendMessage(chatID, statsText(stats))
}
