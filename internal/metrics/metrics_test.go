package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/schedule"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ReminderArmed()
	m.ReminderArmed()
	m.ReminderCancelled()
	m.ReminderSkipped("past")
	m.ReminderDelivered("sent")
	m.StatusTransition(schedule.PhaseStarted)
	m.StatusTransition(schedule.PhaseDone)
	m.StatusTransition(schedule.PhaseDone)
	m.CommandHandled("/tasks")
	m.DigestSent()
	m.TrackerTick(2 * time.Millisecond)
	m.RemindersPending(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.remindersArmed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remindersCancelled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remindersSkipped.WithLabelValues("past")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remindersDelivered.WithLabelValues("sent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("/tasks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.digestsSent))
	assert.Equal(t, 1, testutil.CollectAndCount(m.trackerTicks))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.remindersPending))
}

func TestRouter(t *testing.T) {
	m := New()
	m.ReminderArmed()
	router := NewRouter(m)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "task_planner_reminders_armed_total 1")
}
