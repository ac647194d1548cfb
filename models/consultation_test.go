package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsultationStatusTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    ConsultationStatus
		to      ConsultationStatus
		changed bool
		err     error
	}{
		{"pending to active", StatusPendingPayment, StatusActive, true, nil},
		{"pending to cancelled", StatusPendingPayment, StatusCancelled, true, nil},
		{"active to completed", StatusActive, StatusCompleted, true, nil},
		{"active to cancelled", StatusActive, StatusCancelled, true, nil},
		{"same state is a no-op", StatusActive, StatusActive, false, nil},
		{"terminal same state is a no-op", StatusCompleted, StatusCompleted, false, nil},
		{"pending straight to completed", StatusPendingPayment, StatusCompleted, false, ErrInvalidTransition},
		{"active back to pending", StatusActive, StatusPendingPayment, false, ErrInvalidTransition},
		{"completed cannot reopen", StatusCompleted, StatusActive, false, ErrInvalidTransition},
		{"cancelled cannot reopen", StatusCancelled, StatusActive, false, ErrInvalidTransition},
		{"cancelled cannot complete", StatusCancelled, StatusCompleted, false, ErrInvalidTransition},
		{"unknown status goes nowhere", ConsultationStatus("archived"), StatusActive, false, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, err := tt.from.Transition(tt.to)
			assert.Equal(t, tt.changed, changed)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConsultationStatusTerminal(t *testing.T) {
	assert.False(t, StatusPendingPayment.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
