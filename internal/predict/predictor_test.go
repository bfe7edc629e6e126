package predict

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperjump/healthassist/internal/models"
)

func TestCheckInputWidth(t *testing.T) {
	tests := []struct {
		name    string
		dims    []int64
		width   int
		wantErr bool
	}{
		{"batch and features match", []int64{1, 6}, 6, false},
		{"dynamic batch", []int64{-1, 8}, 8, false},
		{"dynamic feature axis", []int64{-1, -1}, 6, false},
		{"flat input", []int64{22}, 22, false},
		{"eight-wide graph under a six-field schema", []int64{-1, 8}, 6, true},
		{"no dimensions", nil, 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkInputWidth("float_input", tt.dims, tt.width)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, models.ErrSchemaMismatch), "got %v", err)
		})
	}
}
