package models_test

import (
	"testing"
	"time"

	"github.com/dukex/devflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusProjection_Completed(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("BRT", -3*60*60))
	running := models.StatusProjection{
		ExecutionID: "exec-1",
		Status:      models.StatusRunning,
		Progress:    50,
		Totals:      models.Totals{Completed: 2, Total: 4},
	}

	completed := running.Completed(now)

	assert.Equal(t, models.StatusCompleted, completed.Status)
	assert.InDelta(t, 100.0, completed.Progress, 0.001)
	assert.Equal(t, models.Totals{Completed: 4, Total: 4}, completed.Totals)
	require.NotNil(t, completed.UpdatedAt)
	assert.Equal(t, time.UTC, completed.UpdatedAt.Location())
	assert.Equal(t, models.StatusRunning, running.Status, "receiver is not modified")
}

func TestStatusProjection_CompletedKeepsEmptyTotals(t *testing.T) {
	t.Parallel()

	completed := models.StatusProjection{Status: models.StatusRunning}.Completed(time.Now())

	assert.Equal(t, models.Totals{}, completed.Totals)
}
