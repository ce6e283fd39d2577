package service

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"task-planner/internal/reminder"
)

// Deliverer receives the payload of a reminder when it fires.
type Deliverer func(payload reminder.Payload)

// CronAlarm arms one-shot reminder triggers on the cron scheduler. Entries
// are keyed by task id; the trigger id only labels them, since two tasks may
// share a 32-bit trigger id.
type CronAlarm struct {
	scheduler *SchedulerService
	logger    *zap.Logger
	enabled   bool

	mu      sync.Mutex
	deliver Deliverer
	entries map[uint]cron.EntryID
}

// NewCronAlarm creates an alarm; with enabled false it reports that it
// cannot schedule exact triggers.
func NewCronAlarm(scheduler *SchedulerService, enabled bool, logger *zap.Logger) *CronAlarm {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronAlarm{
		scheduler: scheduler,
		logger:    logger.Named("alarm"),
		enabled:   enabled,
		entries:   make(map[uint]cron.EntryID),
	}
}

// SetDeliverer installs the sink that reminders are handed to.
func (a *CronAlarm) SetDeliverer(d Deliverer) {
	a.mu.Lock()
	a.deliver = d
	a.mu.Unlock()
}

func (a *CronAlarm) CanScheduleExactTriggers() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled && a.deliver != nil
}

func (a *CronAlarm) ArmTrigger(id reminder.TriggerID, at time.Time, payload reminder.Payload) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := payload.TaskID
	if prev, ok := a.entries[key]; ok {
		a.scheduler.Remove(prev)
		delete(a.entries, key)
	}

	entryID := new(cron.EntryID)
	*entryID = a.scheduler.ScheduleOnce(at, func() {
		a.fire(id, entryID, payload)
	})
	a.entries[key] = *entryID
	return nil
}

func (a *CronAlarm) CancelTrigger(_ reminder.TriggerID, payload reminder.Payload) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if entryID, ok := a.entries[payload.TaskID]; ok {
		a.scheduler.Remove(entryID)
		delete(a.entries, payload.TaskID)
	}
	return nil
}

// Armed reports how many triggers are waiting to fire.
func (a *CronAlarm) Armed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *CronAlarm) fire(id reminder.TriggerID, ref *cron.EntryID, payload reminder.Payload) {
	a.mu.Lock()
	entryID := *ref
	current, ok := a.entries[payload.TaskID]
	if !ok || current != entryID {
		// Cancelled or replaced while cron was starting the job.
		a.mu.Unlock()
		return
	}
	delete(a.entries, payload.TaskID)
	deliver := a.deliver
	a.mu.Unlock()

	a.scheduler.Remove(entryID)
	a.logger.Info("reminder fired", zap.Uint("task_id", payload.TaskID), zap.Uint32("trigger", uint32(id)))
	if deliver != nil {
		deliver(payload)
	}
}
