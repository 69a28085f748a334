package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const minutesPerDay = 24 * 60

// ErrInvalidArgument reports a violated call contract, such as a non-positive
// reports-per-day count.
var ErrInvalidArgument = errors.New("invalid argument")

// SlotIndex maps t onto one of reportsPerDay equal-width slots of a 24-hour
// cycle that begins at dayStartHour:00. The hour is wrapped, so 08:30 with a
// 09:00 day start lands in the last slot of the cycle.
func SlotIndex(t time.Time, reportsPerDay, dayStartHour int) (int, error) {
	if reportsPerDay <= 0 {
		return 0, fmt.Errorf("%w: reports per day must be positive, got %d", ErrInvalidArgument, reportsPerDay)
	}

	shiftedHour := ((t.Hour()-dayStartHour)%24 + 24) % 24
	minuteOfDay := shiftedHour*60 + t.Minute()

	slotWidth := float64(minutesPerDay) / float64(reportsPerDay)
	index := int(math.Floor(float64(minuteOfDay) / slotWidth))
	return min(index, reportsPerDay-1), nil
}
