package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual(t *testing.T) {
	start := time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)
	m := NewManual(start)
	assert.Equal(t, start, m.Now())

	assert.Equal(t, start.Add(time.Minute), m.Advance(time.Minute))
	m.Set(start)
	assert.Equal(t, start, m.Now())
}

func TestSystemUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	assert.Equal(t, loc, System(loc).Now().Location())
	assert.Equal(t, time.Local, System(nil).Now().Location())
}
