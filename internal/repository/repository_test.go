package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"task-planner/internal/model"
)

var day = model.Date{Year: 2025, Month: time.May, Day: 20}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newUser(t *testing.T, db *gorm.DB, telegramID int64) *model.User {
	t.Helper()
	user, err := NewUserRepository(db).UpsertFromTelegram(context.Background(), telegramID, "Ann", "", "ann")
	require.NoError(t, err)
	return user
}

func hm(d model.Date, hour, minute int) int64 {
	return d.At(hour, minute, time.UTC).UnixMilli()
}

func makeTask(userID uint, title string, d model.Date, startH, endH int) *model.Task {
	return &model.Task{
		UserID:    userID,
		Title:     title,
		Date:      d,
		StartTime: hm(d, startH, 0),
		EndTime:   hm(d, endH, 0),
		Priority:  model.PriorityMedium,
		Icon:      model.ResourceIcon(12),
	}
}

func TestTaskRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRepository(db)
	user := newUser(t, db, 100)
	ctx := context.Background()

	task := makeTask(user.ID, "Gym", day, 9, 10)
	task.Icon = model.CustomIcon("content://pics/1")
	require.NoError(t, repo.Create(ctx, task))
	require.NotZero(t, task.ID)

	got, err := repo.FindByID(ctx, user.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gym", got.Title)
	assert.Equal(t, day, got.Date)
	assert.Equal(t, task.StartTime, got.StartTime)
	assert.Equal(t, model.PriorityMedium, got.Priority)
	assert.Equal(t, model.CustomIcon("content://pics/1"), got.Icon)

	_, err = repo.FindByID(ctx, user.ID+1, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	byID, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byID.UserID)
}

func TestListForDateOrdersByStart(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRepository(db)
	user := newUser(t, db, 100)
	other := newUser(t, db, 200)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, makeTask(user.ID, "late", day, 15, 16)))
	require.NoError(t, repo.Create(ctx, makeTask(user.ID, "early", day, 8, 9)))
	require.NoError(t, repo.Create(ctx, makeTask(user.ID, "tomorrow", day.AddDays(1), 8, 9)))
	require.NoError(t, repo.Create(ctx, makeTask(other.ID, "foreign", day, 7, 8)))

	tasks, err := repo.ListForDate(ctx, user.ID, day)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "early", tasks[0].Title)
	assert.Equal(t, "late", tasks[1].Title)
}

func TestUpdateAndDeleteNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRepository(db)
	user := newUser(t, db, 100)
	ctx := context.Background()

	task := makeTask(user.ID, "Read", day, 9, 10)
	require.NoError(t, repo.Create(ctx, task))

	task.Title = "Read more"
	task.EndTime = hm(day, 11, 0)
	require.NoError(t, repo.Update(ctx, task))
	got, err := repo.FindByID(ctx, user.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Read more", got.Title)
	assert.Equal(t, hm(day, 11, 0), got.EndTime)

	require.NoError(t, repo.Delete(ctx, user.ID, task.ID))
	assert.ErrorIs(t, repo.Delete(ctx, user.ID, task.ID), ErrTaskNotFound)
	assert.ErrorIs(t, repo.Update(ctx, task), ErrTaskNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, task), ErrTaskNotFound)
}

func TestSyncStatusesAndCounts(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRepository(db)
	user := newUser(t, db, 100)
	ctx := context.Background()

	done := makeTask(user.ID, "done", day, 6, 7)
	running := makeTask(user.ID, "running", day, 9, 11)
	running.Priority = model.PriorityHigh
	pending := makeTask(user.ID, "pending", day, 12, 13)
	for _, task := range []*model.Task{done, running, pending} {
		require.NoError(t, repo.Create(ctx, task))
	}

	now := day.At(10, 0, time.UTC)
	changed, err := repo.SyncStatuses(ctx, user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	changed, err = repo.SyncStatuses(ctx, user.ID, now)
	require.NoError(t, err)
	assert.Zero(t, changed)

	counts, err := repo.CountByPhase(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseCounts{Total: 3, Done: 1, Started: 1}, counts)
	assert.Equal(t, int64(1), counts.Pending())

	byPriority, err := repo.CountByPriority(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, map[model.Priority]int64{model.PriorityMedium: 2, model.PriorityHigh: 1}, byPriority)

	unfinished, err := repo.ListUnfinishedForDate(ctx, user.ID, day, now)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	assert.Equal(t, "running", unfinished[0].Title)

	upcoming, err := repo.ListStartingAfter(ctx, now)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "pending", upcoming[0].Title)
}

func TestCountsForEmptyUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRepository(db)

	counts, err := repo.CountByPhase(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, PhaseCounts{}, counts)
}

func TestWatchDateEmitsOnWrite(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRepository(db)
	user := newUser(t, db, 100)
	ctx, cancel := context.WithCancel(context.Background())

	updates, err := repo.WatchDate(ctx, user.ID, day)
	require.NoError(t, err)

	first := receive(t, updates)
	assert.Empty(t, first)

	task := makeTask(user.ID, "Walk", day, 9, 10)
	require.NoError(t, repo.Create(context.Background(), task))
	second := receive(t, updates)
	require.Len(t, second, 1)
	assert.Equal(t, "Walk", second[0].Title)

	require.NoError(t, repo.Delete(context.Background(), user.ID, task.ID))
	assert.Empty(t, receive(t, updates))

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, repo.feed.size())
}

func receive(t *testing.T, ch <-chan []model.Task) []model.Task {
	t.Helper()
	select {
	case tasks, ok := <-ch:
		require.True(t, ok, "feed closed")
		return tasks
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task list")
		return nil
	}
}

func TestUserRepository(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	first, err := users.UpsertFromTelegram(ctx, 5, "Bo", "", "bo")
	require.NoError(t, err)
	again, err := users.UpsertFromTelegram(ctx, 5, "Bob", "Smith", "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	got, err := users.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.FirstName)

	assert.Equal(t, "Smith", got.LastName)

	_, err = users.FindByID(ctx, first.ID+100)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = users.UpsertFromTelegram(ctx, 6, "Cy", "", "")
	require.NoError(t, err)
	all, err := users.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(5), all[0].TelegramID)
}

func TestEnsureDirForSQLite(t *testing.T) {
	assert.NoError(t, ensureDirForSQLite(":memory:"))
	assert.NoError(t, ensureDirForSQLite("file::memory:?cache=shared"))
	assert.NoError(t, ensureDirForSQLite("planner.db"))
}

func TestWithPragmas(t *testing.T) {
	assert.Equal(t, "planner.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", withPragmas("planner.db"))
	assert.Equal(t, "file:p.db?_busy_timeout=100&_journal_mode=WAL&_foreign_keys=on", withPragmas("file:p.db?_busy_timeout=100"))
}

func TestNewDBCreatesFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "planner.db")
	db, err := NewDB(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	assert.FileExists(t, path)
	assert.True(t, db.Migrator().HasTable(&model.Task{}))
}
