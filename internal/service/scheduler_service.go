package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SchedulerService owns the process cron: the daily digest, periodic
// housekeeping and one-shot reminder triggers all run on it.
type SchedulerService struct {
	cron *cron.Cron
	loc  *time.Location
}

// NewSchedulerService builds a seconds-precision cron in loc. Panicking jobs
// are recovered and logged.
func NewSchedulerService(loc *time.Location, logger *zap.Logger) *SchedulerService {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLog := cronLogger{log: logger.Named("cron").Sugar()}
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		loc: loc,
	}
}

// ScheduleDaily runs job every day at clock, given as HH:MM.
func (s *SchedulerService) ScheduleDaily(clock string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(clock)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleEvery runs job with a constant delay. Sub-second periods are
// rounded up to one second by cron.
func (s *SchedulerService) ScheduleEvery(period time.Duration, job func()) (cron.EntryID, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %s", period)
	}
	return s.cron.Schedule(cron.Every(period), cron.FuncJob(job)), nil
}

// ScheduleOnce runs job a single time at the given instant. The entry stays
// registered after it ran until Remove is called.
func (s *SchedulerService) ScheduleOnce(at time.Time, job func()) cron.EntryID {
	return s.cron.Schedule(onceSchedule{at: at.In(s.loc)}, cron.FuncJob(job))
}

func (s *SchedulerService) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop halts the cron and waits for running jobs.
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
}

// onceSchedule fires at one instant; a zero Next tells cron never to run again.
type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

// buildDailySpec turns HH:MM into a six-field cron spec.
func buildDailySpec(clock string) (string, error) {
	at, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return "", fmt.Errorf("invalid daily time %q, expected HH:MM", clock)
	}
	return fmt.Sprintf("0 %d %d * * *", at.Minute(), at.Hour()), nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
