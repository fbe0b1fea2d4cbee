package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log := New()
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewWithLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{name: "debug", level: "debug", want: zerolog.DebugLevel},
		{name: "upper case", level: "WARN", want: zerolog.WarnLevel},
		{name: "padded", level: "  error ", want: zerolog.ErrorLevel},
		{name: "empty falls back to info", level: "", want: zerolog.InfoLevel},
		{name: "unknown falls back to info", level: "loud", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewWithLevel(tt.level).GetLevel())
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	assert.NotZero(t, buf.Len(), "expected log output from retrieved logger")
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"user_id": "123",
		"action":  "test",
	})

	log.Info().Msg("test message")

	out := buf.String()
	assert.Contains(t, out, `"user_id":"123"`)
	assert.Contains(t, out, `"action":"test"`)
}

func TestForSyncJob(t *testing.T) {
	buf := &bytes.Buffer{}
	log := ForSyncJob(NewWithWriter(buf), "job-1", "acc-1", "user-1")

	log.Info().Msg("sync started")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"job_id":"job-1"`)
	assert.Contains(t, out, `"account_id":"acc-1"`)
	assert.Contains(t, out, `"user_id":"user-1"`)
}
