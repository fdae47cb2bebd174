package store

import (
	"fmt"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
)

const (
	minCycleLength  = 21
	maxCycleLength  = 45
	minPeriodLength = 1
	maxPeriodLength = 10
	minLutealPhase  = 6
	maxLutealPhase  = 20
)

// Validate checks every structural and cross-field constraint and reports
// all violations at once. It runs before any persistence, including for
// documents constructed internally, because invalid state must never reach
// the cache or the remote store.
func (d *PreferenceDocument) Validate() error {
	var violations []apperrors.FieldViolation

	add := func(field, format string, args ...any) {
		violations = append(violations, apperrors.FieldViolation{
			Field:  field,
			Reason: fmt.Sprintf(format, args...),
		})
	}

	if d.UserID == "" {
		add("userId", "must not be empty")
	}

	switch d.Unit.UnitSystem {
	case "metric", "imperial":
	default:
		add("unit.unitSystem", "must be metric or imperial, got %q", d.Unit.UnitSystem)
	}
	switch d.Unit.TemperatureUnit {
	case "celsius", "fahrenheit":
	default:
		add("unit.temperatureUnit", "must be celsius or fahrenheit, got %q", d.Unit.TemperatureUnit)
	}

	if h := d.Notification.ReminderHour; h < 0 || h > 23 {
		add("notification.reminderHour", "must be between 0 and 23, got %d", h)
	}
	if m := d.Notification.ReminderMinute; m < 0 || m > 59 {
		add("notification.reminderMinute", "must be between 0 and 59, got %d", m)
	}

	if v := d.Cycle.CycleLength; v < minCycleLength || v > maxCycleLength {
		add("cycle.cycleLength", "must be between %d and %d, got %d", minCycleLength, maxCycleLength, v)
	}
	if v := d.Cycle.PeriodLength; v < minPeriodLength || v > maxPeriodLength {
		add("cycle.periodLength", "must be between %d and %d, got %d", minPeriodLength, maxPeriodLength, v)
	}
	if v := d.Cycle.LutealPhaseLength; v < minLutealPhase || v > maxLutealPhase {
		add("cycle.lutealPhaseLength", "must be between %d and %d, got %d", minLutealPhase, maxLutealPhase, v)
	}
	if d.Cycle.LutealPhaseLength >= d.Cycle.CycleLength {
		add("cycle.lutealPhaseLength", "must be shorter than cycle length (%d >= %d)",
			d.Cycle.LutealPhaseLength, d.Cycle.CycleLength)
	}

	switch d.Display.Theme {
	case "system", "light", "dark":
	default:
		add("display.theme", "must be system, light or dark, got %q", d.Display.Theme)
	}
	if v := d.Display.FirstDayOfWeek; v < 0 || v > 6 {
		add("display.firstDayOfWeek", "must be between 0 and 6, got %d", v)
	}

	if v := d.Sync.PullIntervalMinutes; v < 5 {
		add("sync.pullIntervalMinutes", "must be at least 5, got %d", v)
	}

	if len(violations) > 0 {
		return apperrors.Validation(violations)
	}
	return nil
}
