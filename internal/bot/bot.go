package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"task-planner/internal/config"
	"task-planner/internal/model"
	"task-planner/internal/reminder"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

// Metrics receives bot-level counters. Optional.
type Metrics interface {
	CommandHandled(command string)
	ReminderDelivered(result string)
	DigestSent()
}

type nopMetrics struct{}

func (nopMetrics) CommandHandled(string)    {}
func (nopMetrics) ReminderDelivered(string) {}
func (nopMetrics) DigestSent()              {}

// Deps groups the collaborators of the bot.
type Deps struct {
	Users      *repository.UserRepository
	Tasks      *service.TaskService
	Stats      *service.StatsService
	Digest     *service.ReminderService
	NewTracker func() *service.Tracker
	Config     *config.Config
	Metrics    Metrics
	Logger     *zap.Logger
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api         *tgbotapi.BotAPI
	userRepo    *repository.UserRepository
	taskSvc     *service.TaskService
	statsSvc    *service.StatsService
	reminderSvc *service.ReminderService
	newTracker  func() *service.Tracker
	config      *config.Config
	metrics     Metrics
	logger      *zap.Logger

	baseCtx context.Context

	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	views         map[int64]*view
	mu            sync.Mutex
}

func New(token string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	b := newBot(api, deps)
	b.logger.Info("bot authorized", zap.String("account", api.Self.UserName))
	return b, nil
}

func newBot(api *tgbotapi.BotAPI, deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Bot{
		api:           api,
		userRepo:      deps.Users,
		taskSvc:       deps.Tasks,
		statsSvc:      deps.Stats,
		reminderSvc:   deps.Digest,
		newTracker:    deps.NewTracker,
		config:        deps.Config,
		metrics:       metrics,
		logger:        logger.Named("bot"),
		baseCtx:       context.Background(),
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
		views:         make(map[int64]*view),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	b.baseCtx = ctx
	b.mu.Unlock()
	defer b.closeViews()

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Warn("handle callback", zap.Error(err))
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.logger.Warn("handle message", zap.Error(err))
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled. Start again whenever you like.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.logger.Info("command",
			zap.Int64("from", msg.From.ID), zap.String("command", msg.Command()), zap.String("args", msg.CommandArguments()))
		b.metrics.CommandHandled("/" + msg.Command())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		b.logger.Debug("conversation step",
			zap.Int64("from", msg.From.ID), zap.Int("stage", int(b.getConversation(msg.From.ID).stage)))
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Send /newtask to plan a task or /help for the list of commands.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "date":
		return b.handleDate(ctx, msg)
	case "edit":
		return b.handleEdit(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "priority":
		return b.handlePriority(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. Have a look at /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	text := fmt.Sprintf(
		"👋 %s, %s!\n<b>I plan your day and remind you when a task starts.</b>\n\n%s",
		service.Greeting(b.taskSvc.Now()),
		escape(user.DisplayName("friend")),
		commandList,
	)
	return b.sendText(msg.Chat.ID, text)
}

const commandList = "Commands:\n" +
	"• /newtask — plan a task step by step\n" +
	"• /tasks [date] — tasks of the selected day with live progress\n" +
	"• /date &lt;YYYY-MM-DD&gt; — switch the selected day (also today, tomorrow)\n" +
	"• /edit &lt;id&gt; — move a task to a new time\n" +
	"• /delete &lt;id&gt; — delete a task\n" +
	"• /priority &lt;id&gt; [level] — change the priority\n" +
	"• /stats — overall statistics\n" +
	"• /report — today's unfinished tasks\n" +
	"• /cancel — cancel the current input"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+commandList)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, count, err := b.reminderSvc.DailySummary(ctx, *user, b.taskSvc.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the report: %s", escape(err.Error())))
	}
	if count == 0 {
		return b.sendText(msg.Chat.ID, "🎉 Nothing left for today.")
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	stats, err := b.statsSvc.Collect(ctx, user)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not collect statistics: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatStats(stats))
}

// SendDailyReports sends the unfinished-task summary to every user that has
// something left for today.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.taskSvc.Now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, count, err := b.reminderSvc.DailySummary(ctx, user, now)
		if err != nil {
			b.logger.Warn("build summary", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
			continue
		}
		if count == 0 {
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			b.logger.Warn("send summary", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
			continue
		}
		b.metrics.DigestSent()
	}
	return nil
}

// DeliverReminder notifies the owner of a task that it has started. It is
// called by the alarm backend.
func (b *Bot) DeliverReminder(payload reminder.Payload) {
	ctx, cancel := context.WithTimeout(b.context(), 30*time.Second)
	defer cancel()

	task, err := b.taskSvc.ReminderTask(ctx, payload)
	if errors.Is(err, repository.ErrTaskNotFound) {
		b.logger.Debug("reminder for deleted task", zap.Uint("task_id", payload.TaskID))
		b.metrics.ReminderDelivered("gone")
		return
	}
	if err != nil {
		b.logger.Warn("load reminder task", zap.Uint("task_id", payload.TaskID), zap.Error(err))
		b.metrics.ReminderDelivered("error")
		return
	}
	user, err := b.userRepo.FindByID(ctx, task.UserID)
	if err != nil {
		b.logger.Warn("load reminder owner", zap.Uint("task_id", task.ID), zap.Error(err))
		b.metrics.ReminderDelivered("error")
		return
	}

	if err := b.sendText(user.TelegramID, formatReminder(*task, b.taskSvc.Now().Location())); err != nil {
		b.logger.Warn("send reminder", zap.Uint("task_id", task.ID), zap.Error(err))
		b.metrics.ReminderDelivered("error")
		return
	}
	b.metrics.ReminderDelivered("sent")
}

func (b *Bot) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baseCtx
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

// send posts an HTML message; markup may be any reply markup or nil.
func (b *Bot) send(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.send(chatID, text, mainMenuKeyboard())
}

// sendTextWithRemove drops a dialog keyboard and puts the main menu back.
func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	if err := b.send(chatID, text, tgbotapi.NewRemoveKeyboard(true)); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	return b.send(chatID, "🔹 Main menu", mainMenuKeyboard())
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelStats):
		return true, b.handleStats(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}
