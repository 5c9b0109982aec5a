package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchConfigValidate(t *testing.T) {
	tests := []struct {
		name          string
		config        *WatchConfig
		expectedError string
	}{
		{
			name:   "defaults",
			config: NewWatchConfig(),
		},
		{
			name: "zero debounce",
			config: &WatchConfig{
				Compose:      NewComposeConfig(),
				DebounceTime: 0,
			},
		},
		{
			name: "negative debounce",
			config: &WatchConfig{
				Compose:      NewComposeConfig(),
				DebounceTime: -1,
			},
			expectedError: "debounce time cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewWatchConfigDefaults(t *testing.T) {
	config := NewWatchConfig()
	assert.Equal(t, 500, config.DebounceTime)
	require.NotNil(t, config.Compose)
	assert.Empty(t, config.Compose.Sets)
}
