package timer

import "math"

// Dial maps durations in minutes onto a circular picker. A reversed dial
// runs counter-clockwise, as used for breaks.
type Dial struct {
	Min      int
	Max      int
	Step     int
	Reversed bool
}

var (
	FocusDial = Dial{Min: 5, Max: 120, Step: 5}
	BreakDial = Dial{Min: 5, Max: 120, Step: 5, Reversed: true}
)

// ValueToAngle returns the dial angle in degrees, in [0, 360], for minutes.
func (d Dial) ValueToAngle(minutes int) float64 {
	normalized := float64(minutes-d.Min) / float64(d.Max-d.Min)
	if d.Reversed {
		return 360 - normalized*360
	}
	return normalized * 360
}

// AngleToValue snaps an angle to the nearest step and clamps it to
// [Min, Max]. A full turn maps to 360 rather than 0 so both ends of the
// range are reachable.
func (d Dial) AngleToValue(angle float64) int {
	normalizedAngle := math.Mod(angle, 360)
	if normalizedAngle < 0 {
		normalizedAngle += 360
	}
	if normalizedAngle == 0 && angle != 0 {
		normalizedAngle = 360
	}

	normalized := normalizedAngle / 360
	if d.Reversed {
		normalized = (360 - normalizedAngle) / 360
	}

	raw := normalized*float64(d.Max-d.Min) + float64(d.Min)
	minutes := int(math.Floor(raw/float64(d.Step)+0.5)) * d.Step
	return max(d.Min, min(d.Max, minutes))
}

// Snap returns the dial value nearest to minutes, as the picker would show it.
func (d Dial) Snap(minutes int) int {
	minutes = max(d.Min, min(d.Max, minutes))
	return d.AngleToValue(d.ValueToAngle(minutes))
}
