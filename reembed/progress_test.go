package reembed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Increment(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 40, 10)

	tracker.Start()
	tracker.Increment(5)
	assert.Empty(t, buf.String(), "should not report under the interval")

	tracker.Increment(5)
	assert.Contains(t, buf.String(), "\rProgress: 10/40 (25.0%) - ")
	assert.Contains(t, buf.String(), "conversations/s")

	tracker.Increment(100)
	assert.Contains(t, buf.String(), "40/40 (100.0%)", "should cap at total")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 7, 100)

	tracker.Start()
	tracker.Update(3)
	time.Sleep(5 * time.Millisecond)
	tracker.Finish()

	out := buf.String()
	assert.Contains(t, out, "7/7 (100.0%)")
	assert.True(t, strings.HasSuffix(out, "\n"), "finish should end the line")
	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
	assert.Greater(t, tracker.Rate(), 0.0)
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 0, 0)

	tracker.Start()
	tracker.Finish()
	assert.Contains(t, buf.String(), "0/0 (0.0%)")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 1)

	tracker.Increment(5)
	tracker.Update(8)
	tracker.Finish()

	assert.Empty(t, buf.String())
	assert.Zero(t, tracker.Elapsed())
	assert.Zero(t, tracker.Rate())
}
