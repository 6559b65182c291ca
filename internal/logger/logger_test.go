package logger

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func reset() {
	SetLevel(LevelInfo)
	SetOutput(os.Stderr)
	SetTimestamps(false)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" DEBUG ", LevelDebug},
		{"info", LevelInfo},
		{"warning", LevelWarn},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"chatty", LevelInfo},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLevel(tc.in))
		})
	}
}

func TestThresholdFiltersLowerLevels(t *testing.T) {
	defer reset()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)

	Debugf("d")
	Infof("i")
	Warnf("w %d", 1)
	Errorf("e")

	assert.Equal(t, "[WARN] w 1\n[ERROR] e\n", buf.String())
}

func TestDebugfWhenDebugEnabled(t *testing.T) {
	defer reset()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelDebug)

	Debugf("test message %s", "arg")
	assert.Equal(t, "[DEBUG] test message arg\n", buf.String())
}

func TestSection(t *testing.T) {
	defer reset()
	var buf bytes.Buffer
	SetOutput(&buf)

	Section("hidden")
	assert.Empty(t, buf.String())

	SetLevel(LevelDebug)
	Section("Ingest")
	assert.Equal(t, "\n=== Ingest ===\n", buf.String())
}

func TestTimestamps(t *testing.T) {
	defer func() {
		reset()
		now = time.Now
	}()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetTimestamps(true)
	now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	Infof("hello")
	assert.Equal(t, "2024-05-01T12:00:00Z [INFO] hello\n", buf.String())
}

func TestConcurrentAccess(t *testing.T) {
	defer reset()
	var buf bytes.Buffer
	SetOutput(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			SetLevel(LevelDebug)
			Debugf("concurrent %d", i)
			GetLevel()
		}(i)
	}
	wg.Wait()
}
