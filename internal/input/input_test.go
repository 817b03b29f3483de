package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllSymptomsMergesAndDeduplicates(t *testing.T) {
	in := &ProcessedInput{
		Symptoms:       []string{"no_power", "led_off", "no_power", " "},
		VisualSymptoms: []string{"led_off", "bulged_capacitor"},
	}

	got := in.AllSymptoms()
	assert.Equal(t, []string{"bulged_capacitor", "led_off", "no_power"}, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      ProcessedInput
		wantErr error
	}{
		{
			name: "valid",
			in:   ProcessedInput{Symptoms: []string{"no_power"}, Category: "laptop"},
		},
		{
			name:    "no symptoms",
			in:      ProcessedInput{Category: "laptop"},
			wantErr: ErrEmptyInput,
		},
		{
			name: "visual only is valid",
			in:   ProcessedInput{VisualSymptoms: []string{"cracked_screen"}, Category: "phone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRequiresCategory(t *testing.T) {
	in := ProcessedInput{Symptoms: []string{"no_power"}}
	assert.Error(t, in.Validate())
}
