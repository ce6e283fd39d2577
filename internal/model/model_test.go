package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateCalendar(t *testing.T) {
	d := Date{Year: 2024, Month: time.February, Day: 28}
	assert.Equal(t, Date{Year: 2024, Month: time.February, Day: 29}, d.AddDays(1))
	assert.Equal(t, Date{Year: 2024, Month: time.March, Day: 1}, d.AddDays(2))
	assert.Equal(t, Date{Year: 2023, Month: time.December, Day: 31}, Date{Year: 2024, Month: time.January, Day: 1}.AddDays(-1))

	assert.True(t, d.Before(d.AddDays(1)))
	assert.False(t, d.Before(d))
	assert.True(t, Date{}.IsZero())
	assert.Equal(t, "2024-02-28", d.String())
}

func TestDateOfUsesOwnLocation(t *testing.T) {
	plus3 := time.FixedZone("UTC+3", 3*60*60)
	instant := time.Date(2025, time.March, 14, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, Date{Year: 2025, Month: time.March, Day: 14}, DateOf(instant))
	assert.Equal(t, Date{Year: 2025, Month: time.March, Day: 15}, DateOf(instant.In(plus3)))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2025-05-20"))
	assert.Equal(t, Date{Year: 2025, Month: time.May, Day: 20}, d)

	require.NoError(t, d.Scan([]byte("2025-05-21 00:00:00+00:00")))
	assert.Equal(t, Date{Year: 2025, Month: time.May, Day: 21}, d)

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan("yesterday"))
	assert.Error(t, d.Scan(42))

	v, err := Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParseIcon(t *testing.T) {
	assert.Equal(t, ResourceIcon(7), ParseIcon("Resource:7"))
	assert.Equal(t, CustomIcon("content://media/1"), ParseIcon("Custom:content://media/1"))
	assert.Equal(t, DefaultIcon(), ParseIcon("Default"))
	assert.Equal(t, DefaultIcon(), ParseIcon("Resource:abc"))
	assert.Equal(t, DefaultIcon(), ParseIcon(""))
	assert.Equal(t, "Custom:file:///a.png", CustomIcon("file:///a.png").String())
}

func TestPriority(t *testing.T) {
	p, err := ParsePriority(" high ")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("extreme")
	assert.Error(t, err)

	var scanned Priority
	require.NoError(t, scanned.Scan("legacy"))
	assert.Equal(t, PriorityNone, scanned)

	v, err := Priority("").Value()
	require.NoError(t, err)
	assert.Equal(t, "NONE", v)
}

func TestTaskWindow(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	day := Date{Year: 2025, Month: time.March, Day: 14}
	task := Task{StartTime: day.At(9, 0, loc).UnixMilli(), EndTime: day.At(10, 30, loc).UnixMilli()}

	assert.Equal(t, 90*time.Minute, task.Duration())
	assert.Equal(t, "09:00", task.Start(loc).Format("15:04"))
	assert.Equal(t, "10:30", task.End(loc).Format("15:04"))
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ann", User{FirstName: " Ann ", Username: "ann"}.DisplayName("friend"))
	assert.Equal(t, "@ann", User{Username: "ann"}.DisplayName("friend"))
	assert.Equal(t, "friend", User{}.DisplayName("friend"))
}
