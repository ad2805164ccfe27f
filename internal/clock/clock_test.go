package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMock_SleepAdvancesAndRecords(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMock(start)

	m.Sleep(3 * time.Second)
	m.Advance(time.Minute)
	m.Sleep(time.Second)

	assert.Equal(t, start.Add(time.Minute+4*time.Second), m.Now())
	assert.Equal(t, []time.Duration{3 * time.Second, time.Second}, m.Sleeps())
}

func TestReal_NowIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, New().Now().Location())
}
