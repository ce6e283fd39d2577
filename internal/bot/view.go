package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"task-planner/internal/model"
	"task-planner/internal/schedule"
	"task-planner/internal/service"
)

const (
	cbDeletePrefix   = "delete:"
	cbRefreshPrefix  = "refresh:"
	cbPriorityPrefix = "prio:"
)

// view is the per-user screen state: the selected day, its tracker and the
// last snapshot the tracker produced.
type view struct {
	mu      sync.Mutex
	date    model.Date
	tracker *service.Tracker
	cancel  context.CancelFunc

	snapMu sync.Mutex
	latest service.Snapshot
	fresh  bool
}

func (v *view) snapshot() (service.Snapshot, bool) {
	v.snapMu.Lock()
	defer v.snapMu.Unlock()
	return v.latest, v.fresh
}

func (v *view) store(s service.Snapshot) {
	v.snapMu.Lock()
	v.latest, v.fresh = s, true
	v.snapMu.Unlock()
}

func (v *view) reset() {
	v.snapMu.Lock()
	v.latest, v.fresh = service.Snapshot{}, false
	v.snapMu.Unlock()
}

func (b *Bot) viewFor(userID int64) *view {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.views[userID]
	if !ok {
		v = &view{}
		b.views[userID] = v
	}
	return v
}

func (b *Bot) selectedDate(userID int64) model.Date {
	v := b.viewFor(userID)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.date.IsZero() {
		return model.DateOf(b.taskSvc.Now())
	}
	return v.date
}

// activate points the user's tracker at date. The loop runs until the view
// TTL passes or another day is selected.
func (b *Bot) activate(chatID, userID int64, user *model.User, date model.Date) error {
	if b.newTracker == nil {
		return nil
	}
	v := b.viewFor(userID)
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.tracker == nil {
		v.tracker = b.newTracker()
	}
	v.tracker.Stop()
	if v.cancel != nil {
		v.cancel()
	}
	// The old loop may have stopped before the latest write; render from
	// storage until the new loop reports.
	v.reset()

	ctx := b.context()
	var cancel context.CancelFunc
	if b.config != nil && b.config.ViewTTL > 0 {
		ctx, cancel = context.WithTimeout(ctx, b.config.ViewTTL)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	v.date, v.cancel = date, cancel

	return v.tracker.Watch(ctx, user.ID, date, func(s service.Snapshot) {
		v.store(s)
		if done := finishedTransitions(s.Transitions); len(done) > 0 {
			go b.notifyFinished(chatID, done)
		}
	})
}

func (b *Bot) closeViews() {
	b.mu.Lock()
	views := make([]*view, 0, len(b.views))
	for _, v := range b.views {
		views = append(views, v)
	}
	b.mu.Unlock()

	for _, v := range views {
		v.mu.Lock()
		if v.tracker != nil {
			v.tracker.Stop()
		}
		if v.cancel != nil {
			v.cancel()
		}
		v.mu.Unlock()
	}
}

func finishedTransitions(transitions []service.Transition) []service.Transition {
	var done []service.Transition
	for _, t := range transitions {
		if t.To == schedule.PhaseDone {
			done = append(done, t)
		}
	}
	return done
}

func (b *Bot) notifyFinished(chatID int64, done []service.Transition) {
	var builder strings.Builder
	for _, t := range done {
		builder.WriteString(fmt.Sprintf("🏁 «%s» is over.\n", escape(normalizeTitle(t.Title))))
	}
	if err := b.sendText(chatID, strings.TrimSpace(builder.String())); err != nil {
		b.logger.Warn("send finished notice", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	date := b.selectedDate(msg.From.ID)
	if args := strings.TrimSpace(msg.CommandArguments()); args != "" {
		parsed, err := parseDateArg(args, model.DateOf(b.taskSvc.Now()))
		if err != nil {
			return b.sendText(msg.Chat.ID, "Cannot read that date. Use <code>2025-11-30</code>, today or tomorrow.")
		}
		date = parsed
	}
	return b.showDay(ctx, msg.Chat.ID, msg.From.ID, user, date)
}

func (b *Bot) handleDate(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Selected day: %s. Switch with /date 2025-11-30.", b.selectedDate(msg.From.ID)))
	}
	date, err := parseDateArg(args, model.DateOf(b.taskSvc.Now()))
	if err != nil {
		return b.sendText(msg.Chat.ID, "Cannot read that date. Use <code>2025-11-30</code>, today or tomorrow.")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.showDay(ctx, msg.Chat.ID, msg.From.ID, user, date)
}

// showDay selects date, restarts the tracker and sends the task list.
func (b *Bot) showDay(ctx context.Context, chatID, userID int64, user *model.User, date model.Date) error {
	if err := b.activate(chatID, userID, user, date); err != nil {
		b.logger.Warn("start tracker", zap.Int64("from", userID), zap.Error(err))
	}

	text, markup, err := b.renderDay(ctx, userID, user, date)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load tasks: %s", escape(err.Error())))
	}
	return b.send(chatID, text, markup)
}

// renderDay prefers the tracker's last snapshot and falls back to a direct load.
func (b *Bot) renderDay(ctx context.Context, userID int64, user *model.User, date model.Date) (string, tgbotapi.InlineKeyboardMarkup, error) {
	now := b.taskSvc.Now()
	snap, ok := b.viewFor(userID).snapshot()
	if !ok || snap.Date != date {
		tasks, err := b.taskSvc.ListForDate(ctx, user, date)
		if err != nil {
			return "", tgbotapi.InlineKeyboardMarkup{}, err
		}
		snap = service.Snapshot{
			UserID:   user.ID,
			Date:     date,
			At:       now,
			Tasks:    tasks,
			Progress: schedule.ComputeAll(tasks, now),
		}
	}
	return formatDay(snap, now.Location()), dayKeyboard(snap), nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Debug("callback ack", zap.Error(err))
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbDeletePrefix):
		b.logger.Info("callback delete request", zap.Int64("from", cb.From.ID), zap.String("data", data))
		taskID, err := parseTaskID(data, cbDeletePrefix)
		if err != nil {
			return nil
		}
		return b.askDeleteConfirmation(ctx, cb.Message.Chat.ID, cb.From, taskID)
	case strings.HasPrefix(data, cbRefreshPrefix):
		date, err := model.ParseDate(strings.TrimPrefix(data, cbRefreshPrefix))
		if err != nil {
			return nil
		}
		return b.refreshDay(ctx, cb, date)
	case strings.HasPrefix(data, cbPriorityPrefix):
		taskID, priority, err := parsePriorityCallback(data)
		if err != nil {
			return nil
		}
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			return err
		}
		return b.applyPriority(ctx, cb.Message.Chat.ID, user, taskID, priority)
	default:
		return nil
	}
}

// refreshDay edits the list message in place with the latest progress.
func (b *Bot) refreshDay(ctx context.Context, cb *tgbotapi.CallbackQuery, date model.Date) error {
	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}
	if current, running := b.trackerDate(cb.From.ID); !running || current != date {
		if err := b.activate(cb.Message.Chat.ID, cb.From.ID, user, date); err != nil {
			b.logger.Warn("start tracker", zap.Int64("from", cb.From.ID), zap.Error(err))
		}
	}

	text, markup, err := b.renderDay(ctx, cb.From.ID, user, date)
	if err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(cb.Message.Chat.ID, cb.Message.MessageID, text, markup)
	edit.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(edit)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

func (b *Bot) trackerDate(userID int64) (model.Date, bool) {
	v := b.viewFor(userID)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tracker == nil {
		return model.Date{}, false
	}
	return v.tracker.Running()
}
