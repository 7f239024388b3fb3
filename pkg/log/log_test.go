package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dukex/devflow/pkg/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for input, expected := range tests {
		assert.Equal(t, expected, log.ParseLevel(input), input)
	}
}

func TestWithCorrelation(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))
	log.WithCorrelation(logger, "corr_evt-1").Info("hello")

	assert.Contains(t, buf.String(), "correlation_id=corr_evt-1")
}
