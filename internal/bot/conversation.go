package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"task-planner/internal/model"
	"task-planner/internal/repository"
	"task-planner/internal/schedule"
	"task-planner/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageDate
	stageStart
	stageEnd
	stagePriority
	stageEditStart
	stageEditEnd
)

type conversationState struct {
	stage  conversationStage
	input  service.TaskInput
	taskID uint
}

type confirmationAction int

const (
	actionDelete confirmationAction = iota
)

type confirmationRequest struct {
	taskID uint
	action confirmationAction
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.logger.Info("start new task conversation", zap.Int64("from", msg.From.ID))
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.send(msg.Chat.ID, "🆕 Planning a new task.\n<b>Step 1:</b> what is it called?", cancelKeyboard())
}

func (b *Bot) handleEdit(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, ok, err := b.taskIDArgument(msg, "/edit 12")
	if !ok {
		return err
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if err != nil {
		return b.replyTaskError(msg.Chat.ID, err)
	}

	loc := b.taskSvc.Now().Location()
	b.setConversation(msg.From.ID, &conversationState{
		stage:  stageEditStart,
		taskID: task.ID,
		input:  service.TaskInput{Date: task.Date},
	})
	text := fmt.Sprintf("✏️ «%s» runs %s–%s on %s.\nSend the new start time as <code>HH:MM</code>.",
		escape(normalizeTitle(task.Title)),
		task.Start(loc).Format("15:04"), task.End(loc).Format("15:04"), task.Date)
	return b.send(msg.Chat.ID, text, cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.send(msg.Chat.ID, validationMessage(schedule.EmptyTitle)+"\nWhat is the task called?", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.send(msg.Chat.ID, "✏️ Add a short description (or press «Skip»).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageDate
		return b.send(msg.Chat.ID,
			fmt.Sprintf("🗓 Which day? Send <code>YYYY-MM-DD</code>, today or tomorrow («Skip» keeps %s).", b.selectedDate(msg.From.ID)),
			skipKeyboard())
	case stageDate:
		date := b.selectedDate(msg.From.ID)
		if !isSkipInput(text) {
			parsed, err := parseDateArg(text, model.DateOf(b.taskSvc.Now()))
			if err != nil {
				return b.send(msg.Chat.ID, "Cannot read that date. Use <code>2025-11-30</code>, today or tomorrow.", skipKeyboard())
			}
			date = parsed
		}
		state.input.Date = date
		state.stage = stageStart
		return b.send(msg.Chat.ID, "⏰ Start time as <code>HH:MM</code>?", cancelKeyboard())
	case stageStart, stageEditStart:
		hour, minute, ok := parseClock(text)
		if !ok {
			return b.send(msg.Chat.ID, "Use the <code>HH:MM</code> format, for example <code>09:30</code>.", cancelKeyboard())
		}
		state.input.StartHour, state.input.StartMinute = hour, minute
		if state.stage == stageStart {
			state.stage = stageEnd
		} else {
			state.stage = stageEditEnd
		}
		return b.send(msg.Chat.ID, "🏁 End time as <code>HH:MM</code>?", cancelKeyboard())
	case stageEnd, stageEditEnd:
		hour, minute, ok := parseClock(text)
		if !ok {
			return b.send(msg.Chat.ID, "Use the <code>HH:MM</code> format, for example <code>18:00</code>.", cancelKeyboard())
		}
		state.input.EndHour, state.input.EndMinute = hour, minute
		if state.stage == stageEditEnd {
			return b.finishTaskEdit(ctx, msg.From, state, msg.Chat.ID)
		}
		state.stage = stagePriority
		return b.send(msg.Chat.ID, "🎯 Priority? (or «Skip»)", priorityKeyboard())
	case stagePriority:
		if !isSkipInput(text) {
			priority, err := model.ParsePriority(stripPriorityIcon(text))
			if err != nil {
				return b.send(msg.Chat.ID, "Pick one of the priorities on the keyboard.", priorityKeyboard())
			}
			state.input.Priority = priority
		}
		return b.finishTaskCreation(ctx, msg.From, state, msg.Chat.ID)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "The dialog was reset. Try again with /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, state *conversationState, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.CreateTask(ctx, user, state.input)
	var notice *service.ReminderNotice
	switch {
	case errors.As(err, &notice):
		// Saved; the reminder is reported below.
	case err != nil:
		return b.retryAfterValidation(chatID, from.ID, state, err)
	}
	b.clearConversation(from.ID)

	loc := b.taskSvc.Now().Location()
	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> %d\n", task.ID))
	summary.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(task.Description)))
	}
	summary.WriteString(fmt.Sprintf("• <b>When:</b> %s, %s–%s (%s)\n", task.Date,
		task.Start(loc).Format("15:04"), task.End(loc).Format("15:04"), service.FormatDuration(task.Duration())))
	if task.Priority != model.PriorityNone {
		summary.WriteString(fmt.Sprintf("• <b>Priority:</b> %s\n", priorityLabel(task.Priority)))
	}
	if notice != nil {
		summary.WriteString("\n" + reminderNoticeText(notice))
	}

	if err := b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.showDay(ctx, chatID, from.ID, user, task.Date)
}

func (b *Bot) finishTaskEdit(ctx context.Context, from *tgbotapi.User, state *conversationState, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.EditTask(ctx, user, state.taskID, state.input)
	var notice *service.ReminderNotice
	switch {
	case errors.As(err, &notice):
	case err != nil:
		return b.retryAfterValidation(chatID, from.ID, state, err)
	}
	b.clearConversation(from.ID)

	if task == nil {
		return b.sendTextWithRemove(chatID, "The task no longer exists.")
	}

	loc := b.taskSvc.Now().Location()
	text := fmt.Sprintf("✏️ «%s» now runs %s–%s.", escape(normalizeTitle(task.Title)),
		task.Start(loc).Format("15:04"), task.End(loc).Format("15:04"))
	if notice != nil {
		text += "\n" + reminderNoticeText(notice)
	}
	if err := b.sendTextWithRemove(chatID, text); err != nil {
		return err
	}
	return b.showDay(ctx, chatID, from.ID, user, task.Date)
}

// retryAfterValidation sends the user back to the step that produced err.
func (b *Bot) retryAfterValidation(chatID, userID int64, state *conversationState, err error) error {
	var verr schedule.ValidationError
	if !errors.As(err, &verr) {
		b.clearConversation(userID)
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Could not save the task: %s", escape(err.Error())))
	}

	editing := state.stage == stageEditEnd
	switch verr {
	case schedule.EmptyTitle:
		state.stage = stageTitle
		return b.send(chatID, validationMessage(verr)+"\nWhat is the task called?", cancelKeyboard())
	case schedule.InvalidEndHour, schedule.InvalidEndMinute, schedule.EndTimeBeforeStart:
		state.stage = stageEnd
		if editing {
			state.stage = stageEditEnd
		}
		return b.send(chatID, validationMessage(verr)+"\nSend the end time again.", cancelKeyboard())
	default:
		state.stage = stageStart
		if editing {
			state.stage = stageEditStart
		}
		return b.send(chatID, validationMessage(verr)+"\nSend the start time again.", cancelKeyboard())
	}
}

func reminderNoticeText(notice *service.ReminderNotice) string {
	if notice.PermissionNeeded() {
		return "🔕 Reminders are switched off, so there will be no start notification for this task."
	}
	return "🔕 The start reminder could not be set."
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, ok, err := b.taskIDArgument(msg, "/delete 12")
	if !ok {
		return err
	}
	return b.askDeleteConfirmation(ctx, msg.Chat.ID, msg.From, taskID)
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if err != nil {
		return b.replyTaskError(chatID, err)
	}

	text := fmt.Sprintf("Delete task «%s» (#%d)?", escape(normalizeTitle(task.Title)), task.ID)
	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, action: actionDelete})
	return b.send(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.deleteTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		return b.send(msg.Chat.ID, "Confirm or cancel the deletion.", confirmKeyboard())
	}
}

func (b *Bot) deleteTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return b.sendTextWithRemove(chatID, "The task was not found or is already deleted.")
		}
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}

	if err := b.taskSvc.DeleteTask(ctx, user, taskID); err != nil {
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}

	b.logger.Info("task deleted", zap.Uint("task_id", task.ID), zap.Uint("user_id", user.ID))
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf("🗑 Task «%s» deleted.", escape(normalizeTitle(task.Title)))); err != nil {
		return err
	}
	return b.showDay(ctx, chatID, from.ID, user, task.Date)
}

func (b *Bot) handlePriority(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		return b.sendText(msg.Chat.ID, "Give the task ID and a level: /priority 12 high")
	}
	taskID, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return b.sendText(msg.Chat.ID, "The task ID must be a number.")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	if len(fields) == 1 {
		task, err := b.taskSvc.GetTask(ctx, user, uint(taskID))
		if err != nil {
			return b.replyTaskError(msg.Chat.ID, err)
		}
		text := fmt.Sprintf("🎯 Priority for «%s»:", escape(normalizeTitle(task.Title)))
		return b.send(msg.Chat.ID, text, priorityInlineKeyboard(task.ID))
	}

	priority, err := model.ParsePriority(fields[1])
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Unknown priority. Choose one of: %s.", priorityNames()))
	}
	return b.applyPriority(ctx, msg.Chat.ID, user, uint(taskID), priority)
}

func (b *Bot) applyPriority(ctx context.Context, chatID int64, user *model.User, taskID uint, priority model.Priority) error {
	task, err := b.taskSvc.SetPriority(ctx, user, taskID, priority)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}
	if task == nil {
		return b.sendText(chatID, "Task not found.")
	}
	return b.sendText(chatID, fmt.Sprintf("🎯 «%s» is now %s.", escape(normalizeTitle(task.Title)), priorityLabel(task.Priority)))
}

// taskIDArgument parses the numeric argument of a command. When ok is false
// the user has already been answered and err is the send result.
func (b *Bot) taskIDArgument(msg *tgbotapi.Message, example string) (uint, bool, error) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return 0, false, b.sendText(msg.Chat.ID, fmt.Sprintf("Give the task ID: %s", example))
	}
	id, err := strconv.ParseUint(args, 10, 64)
	if err != nil {
		return 0, false, b.sendText(msg.Chat.ID, "The task ID must be a number.")
	}
	return uint(id), true, nil
}

func (b *Bot) replyTaskError(chatID int64, err error) error {
	if errors.Is(err, repository.ErrTaskNotFound) {
		return b.sendText(chatID, "Task not found.")
	}
	return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
