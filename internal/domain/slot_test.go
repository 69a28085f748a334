package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotIndex(t *testing.T) {
	tests := []struct {
		name          string
		at            time.Time
		reportsPerDay int
		dayStartHour  int
		want          int
	}{
		{"hourly midnight start", clockAt(10, 45), 24, 0, 10},
		{"half-hourly midnight start", clockAt(10, 45), 48, 0, 21},
		{"hourly before day start wraps", clockAt(8, 30), 24, 9, 23},
		{"half-hourly before day start wraps", clockAt(8, 30), 48, 9, 47},
		{"exactly day start", clockAt(9, 0), 24, 9, 0},
		{"last minute of cycle", clockAt(23, 59), 24, 0, 23},
		{"single report per day", clockAt(17, 12), 1, 9, 0},
		{"non divisor count", clockAt(23, 59), 7, 0, 6},
		{"sub-minute slots", clockAt(23, 59), 2000, 0, 1998},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SlotIndex(tt.at, tt.reportsPerDay, tt.dayStartHour)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlotIndex_RejectsNonPositiveCount(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := SlotIndex(clockAt(10, 0), n, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestSlotIndex_AlwaysInRange(t *testing.T) {
	for _, perDay := range []int{1, 5, 24, 48, 96, 144} {
		for hour := 0; hour < 24; hour++ {
			for minute := 0; minute < 60; minute += 7 {
				got, err := SlotIndex(clockAt(hour, minute), perDay, 9)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, got, 0)
				assert.Less(t, got, perDay)
			}
		}
	}
}

func clockAt(hour, minute int) time.Time {
	return time.Date(2026, time.March, 1, hour, minute, 0, 0, time.UTC)
}
