package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/models"
	"github.com/xaenox/wheel-bot/internal/wheel"
)

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil || query.Message == nil || query.Message.Chat == nil {
		return
	}

	cb, err := parseCallback(query.Data)
	if err != nil {
		b.logger.Warn("Ignoring callback",
			zap.Error(err),
			zap.Int64("telegram_id", query.From.ID))
		b.answerCallback(query.ID, "")
		return
	}

	u, err := b.user(ctx, query.From)
	if err != nil {
		b.answerCallback(query.ID, "")
		b.sendErrorMessage(query.Message.Chat.ID, internalError)
		return
	}

	switch cb.action {
	case cbChooseMonth:
		b.onChooseMonth(ctx, query, u, cb.args[0])
	case cbRate:
		b.onRate(ctx, query, u, cb)
	case cbHistory:
		b.onOpenWheel(ctx, query, u, cb)
	case cbCompare:
		b.onCompare(ctx, query, u, cb)
	case cbCleanSelect:
		b.onCleanSelect(query, cb.args[0])
	case cbCleanConfirm:
		b.onCleanConfirm(ctx, query, u, cb.args[0], cb.args[1])
	}
}

func ratingPrompt(category string) string {
	return fmt.Sprintf(ratingPromptText, category)
}

// sessionProblem answers a callback that does not fit the build session.
func (b *Bot) sessionProblem(query *tgbotapi.CallbackQuery, userID int64, err error) {
	chatID := query.Message.Chat.ID
	switch {
	case errors.Is(err, wheel.ErrNoActiveSession):
		b.answerCallback(query.ID, "")
		b.sendMessage(chatID, staleSessionText)
	case errors.Is(err, wheel.ErrInvalidLabel):
		b.answerCallback(query.ID, "")
		b.sendMessage(chatID, monthGoneText)
	case errors.Is(err, wheel.ErrInvalidRating):
		// a tap on an old keyboard
		b.answerCallback(query.ID, "")
	default:
		b.logger.Error("Wheel session update failed",
			zap.Error(err),
			zap.Int64("user_id", userID))
		b.answerCallback(query.ID, "")
		b.sendErrorMessage(chatID, internalError)
	}
}

func (b *Bot) onChooseMonth(ctx context.Context, query *tgbotapi.CallbackQuery, u *models.User, label string) {
	session, err := b.sessions.ChooseMonth(ctx, u.ID, label)
	if err != nil {
		b.sessionProblem(query, u.ID, err)
		return
	}
	b.answerCallback(query.ID, "")

	kb := ratingKeyboard(session.Index)
	b.editMessage(query.Message.Chat.ID, query.Message.MessageID, ratingPrompt(session.Category()), &kb)
}

func (b *Bot) onRate(ctx context.Context, query *tgbotapi.CallbackQuery, u *models.User, cb callback) {
	idx, err := cb.intArg(0)
	if err != nil {
		b.answerCallback(query.ID, "")
		return
	}
	value, err := cb.intArg(1)
	if err != nil {
		b.answerCallback(query.ID, "")
		return
	}

	out, err := b.sessions.RecordRating(ctx, u.ID, idx, value)
	if err != nil {
		b.sessionProblem(query, u.ID, err)
		return
	}
	b.answerCallback(query.ID, "")
	if out.Duplicate {
		return
	}

	chatID := query.Message.Chat.ID
	if !out.Complete {
		kb := ratingKeyboard(out.Session.Index)
		b.editMessage(chatID, query.Message.MessageID, ratingPrompt(out.Session.Category()), &kb)
		return
	}

	b.editMessage(chatID, query.Message.MessageID, wheelCreatedText, nil)
	b.finalize(ctx, chatID, u.ID, out.Session)
}

// finalize stores the completed wheel and sends its chart and analysis. The
// build session is over whatever happens.
func (b *Bot) finalize(ctx context.Context, chatID, userID int64, session *wheel.BuildSession) {
	defer func() {
		if _, err := b.sessions.EndBuild(ctx, userID); err != nil {
			b.logger.Warn("Failed to end wheel session",
				zap.Error(err),
				zap.Int64("user_id", userID))
		}
	}()

	res, err := b.service.Finalize(ctx, userID, session.Label, session.Scores)
	switch {
	case errors.Is(err, wheel.ErrMonthAlreadyFilled):
		b.sendMessage(chatID, monthTakenText)
		return
	case err != nil:
		b.logger.Error("Failed to finalize wheel",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("session_id", session.ID),
			zap.String("label", session.Label))
		b.sendErrorMessage(chatID, internalError)
		return
	}

	if res.Image.Ok() {
		b.sendPhoto(chatID, res.Image.Value)
	} else {
		b.sendErrorMessage(chatID, imageFailedText)
	}
	b.sendMarkdown(chatID, res.Analysis)
	b.sendMessage(chatID, "/history")
}

func (b *Bot) onOpenWheel(ctx context.Context, query *tgbotapi.CallbackQuery, u *models.User, cb callback) {
	b.answerCallback(query.ID, "")
	chatID := query.Message.Chat.ID

	id, err := cb.int64Arg(0)
	if err != nil {
		return
	}

	opened, err := b.service.OpenWheel(ctx, u.ID, id)
	if wheel.IsNotFound(err) {
		b.sendMessage(chatID, wheelMissingText)
		return
	}
	if err != nil {
		b.logger.Error("Failed to open wheel",
			zap.Error(err),
			zap.Int64("user_id", u.ID),
			zap.Int64("wheel_id", id))
		b.sendErrorMessage(chatID, internalError)
		return
	}

	if err := b.sessions.SetLastOpened(ctx, u.ID, id); err != nil {
		b.logger.Warn("Failed to remember opened wheel",
			zap.Error(err),
			zap.Int64("user_id", u.ID))
	}

	b.sendMessage(chatID, opened.Wheel.Name)
	if opened.Image.Ok() {
		b.sendPhoto(chatID, opened.Image.Value)
	}
	if opened.Wheel.HasAnalysis() {
		b.sendMarkdown(chatID, *opened.Wheel.LLMAnalysis)
	}

	switch {
	case opened.SelfComparison:
		b.sendMessage(chatID, selfCompareText)
	case opened.CompareWith != nil:
		b.sendKeyboard(chatID, compareHintText, compareKeyboard(id, opened.CompareWith.ID))
	}
}

func (b *Bot) onCompare(ctx context.Context, query *tgbotapi.CallbackQuery, u *models.User, cb callback) {
	b.answerCallback(query.ID, "")
	a, err := cb.int64Arg(0)
	if err != nil {
		return
	}
	other, err := cb.int64Arg(1)
	if err != nil {
		return
	}
	b.compare(ctx, query.Message.Chat.ID, u.ID, a, other)
}

func (b *Bot) onCleanSelect(query *tgbotapi.CallbackQuery, target string) {
	b.answerCallback(query.ID, "")
	kb := confirmKeyboard(target)
	b.editMessage(query.Message.Chat.ID, query.Message.MessageID, confirmDeleteText, &kb)
}

func (b *Bot) onCleanConfirm(ctx context.Context, query *tgbotapi.CallbackQuery, u *models.User, target, decision string) {
	b.answerCallback(query.ID, "")
	chatID, messageID := query.Message.Chat.ID, query.Message.MessageID

	if decision != "yes" {
		b.editMessage(chatID, messageID, cancelText, nil)
		return
	}

	var (
		text string
		err  error
	)
	switch target {
	case targetAll:
		_, err = b.service.DeleteAllWheels(ctx, u.ID)
		if err == nil {
			text = allDeletedText
			b.forgetWheels(ctx, u.ID, nil)
		}
	case targetAccount:
		_, err = b.service.WipeAccount(ctx, u.ID)
		if err == nil {
			text = accountGoneText
			if _, endErr := b.sessions.EndBuild(ctx, u.ID); endErr != nil {
				b.logger.Warn("Failed to end wheel session", zap.Error(endErr), zap.Int64("user_id", u.ID))
			}
			b.forgetWheels(ctx, u.ID, nil)
		}
	default:
		id, parseErr := strconv.ParseInt(target, 10, 64)
		if parseErr != nil {
			b.editMessage(chatID, messageID, wheelMissingText, nil)
			return
		}
		var n int
		n, err = b.service.DeleteWheels(ctx, u.ID, []int64{id})
		if err == nil {
			text = wheelMissingText
			if n > 0 {
				text = oneDeletedText
				b.forgetWheels(ctx, u.ID, []int64{id})
			}
		}
	}

	if err != nil {
		b.logger.Error("Failed to delete data",
			zap.Error(err),
			zap.Int64("user_id", u.ID),
			zap.String("target", target))
		b.editMessage(chatID, messageID, "⚠️ "+internalError, nil)
		return
	}
	b.editMessage(chatID, messageID, text, nil)
}

func (b *Bot) forgetWheels(ctx context.Context, userID int64, ids []int64) {
	if err := b.sessions.ForgetWheels(ctx, userID, ids); err != nil {
		b.logger.Warn("Failed to forget deleted wheels",
			zap.Error(err),
			zap.Int64("user_id", userID))
	}
}
