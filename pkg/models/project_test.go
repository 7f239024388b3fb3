package models_test

import (
	"testing"

	"github.com/dukex/devflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestValidateProjectID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		projectID string
		valid     bool
	}{
		{"acme/web-app", true},
		{"customer_1/project-2", true},
		{"acme", false},
		{"acme/web/extra", false},
		{"/web", false},
		{"acme/", false},
		{"acme corp/web", false},
		{"", false},
	}

	for _, tt := range tests {
		err := models.ValidateProjectID(tt.projectID)
		if tt.valid {
			assert.NoError(t, err, tt.projectID)
		} else {
			assert.ErrorIs(t, err, models.ErrInvalidProjectID, tt.projectID)
		}
	}
}

func TestCustomerIDFromProjectID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "acme", models.CustomerIDFromProjectID("acme/web"))
	assert.Equal(t, "acme", models.CustomerIDFromProjectID("acme/web/extra"))
	assert.Empty(t, models.CustomerIDFromProjectID("acme"))
	assert.Empty(t, models.CustomerIDFromProjectID(""))
}

func TestExecutionStatus(t *testing.T) {
	t.Parallel()

	for _, status := range models.KnownStatuses {
		assert.True(t, status.IsValid())
	}

	assert.False(t, models.ExecutionStatus("runing").IsValid())
	assert.True(t, models.StatusCompleted.IsTerminal())
	assert.True(t, models.StatusError.IsTerminal())
	assert.False(t, models.StatusRunning.IsTerminal())
}
