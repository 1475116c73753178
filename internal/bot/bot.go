package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/models"
	"github.com/xaenox/wheel-bot/internal/storage"
	"github.com/xaenox/wheel-bot/internal/wheel"
)

// Sender is the part of the Telegram API the bot talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// AdminChecker decides who may run admin commands.
type AdminChecker interface {
	IsAdmin(telegramID int64) bool
}

type Bot struct {
	api      Sender
	updates  func() tgbotapi.UpdatesChannel
	stop     func()
	service  *wheel.Service
	sessions *wheel.Sessions
	stats    storage.StatsStorage
	admins   AdminChecker
	logger   *zap.Logger
}

func New(token string, service *wheel.Service, sessions *wheel.Sessions, stats storage.StatsStorage, admins AdminChecker, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))

	b := NewWithSender(api, service, sessions, stats, admins, logger)
	b.updates = func() tgbotapi.UpdatesChannel {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		return api.GetUpdatesChan(u)
	}
	b.stop = api.StopReceivingUpdates
	return b, nil
}

// NewWithSender builds a bot around an existing API client. Start cannot be
// used on it; updates are fed through HandleUpdate.
func NewWithSender(api Sender, service *wheel.Service, sessions *wheel.Sessions, stats storage.StatsStorage, admins AdminChecker, logger *zap.Logger) *Bot {
	return &Bot{
		api:      api,
		service:  service,
		sessions: sessions,
		stats:    stats,
		admins:   admins,
		logger:   logger,
	}
}

// Start polls for updates until ctx is done. Every update is handled in its
// own goroutine.
func (b *Bot) Start(ctx context.Context) error {
	if b.updates == nil {
		return fmt.Errorf("bot has no update source")
	}
	updates := b.updates()

	go func() {
		<-ctx.Done()
		b.stop()
	}()

	for update := range updates {
		go b.HandleUpdate(ctx, update)
	}
	return nil
}

// HandleUpdate dispatches one Telegram update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic while handling update",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}
	if message.IsCommand() {
		b.handleCommand(ctx, message, message.Command())
		return
	}

	// Telegram only marks latin commands, the Russian aliases arrive as text
	text := strings.TrimSpace(message.Text)
	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, message, strings.TrimPrefix(text, "/"))
		return
	}
	b.sendMessage(message.Chat.ID, unknownText)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message, command string) {
	switch command {
	case "start":
		b.handleStart(ctx, message)
	case "about", "help":
		b.handleAbout(message)
	case "build", "build_wheel", "Построить_колесо":
		b.handleBuild(ctx, message)
	case "history", "Посмотреть_историю":
		b.handleHistory(ctx, message)
	case "compare":
		b.handleCompare(ctx, message)
	case "clean", "clear":
		b.handleClean(ctx, message)
	case "cancel":
		b.handleCancel(ctx, message)
	case "stats":
		b.handleStats(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, unknownText)
	}
}

// user resolves the internal user for a Telegram account, creating it on
// first contact.
func (b *Bot) user(ctx context.Context, from *tgbotapi.User) (*models.User, error) {
	u, err := b.service.RegisterUser(ctx, from.ID, from.UserName, from.FirstName)
	if err != nil {
		b.logger.Error("Failed to register user",
			zap.Error(err),
			zap.Int64("telegram_id", from.ID))
		return nil, err
	}
	return u, nil
}

func (b *Bot) send(c tgbotapi.Chattable, chatID int64) bool {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
		return false
	}
	return true
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text), chatID)
}

func (b *Bot) sendHTML(chatID int64, text string, markup any) {
	for i, chunk := range SplitMessage(text, MaxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		if markup != nil && i == 0 {
			msg.ReplyMarkup = markup
		}
		b.send(msg, chatID)
	}
}

// sendMarkdown converts language model output before sending it.
func (b *Bot) sendMarkdown(chatID int64, text string) {
	b.sendHTML(chatID, MarkdownToHTML(text), nil)
}

func (b *Bot) sendKeyboard(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	b.send(msg, chatID)
}

func (b *Bot) sendPhoto(chatID int64, path string) {
	b.send(tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path)), chatID)
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	b.sendMessage(chatID, "⚠️ "+text)
}

// editMessage replaces the text and keyboard of the message a button was
// pressed on. A nil markup removes the keyboard.
func (b *Bot) editMessage(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = markup
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Warn("Failed to edit message",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID))
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err))
	}
}
