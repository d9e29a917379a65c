package condition

import "triggerpay/internal/model"

// CancelledStatus is the observed flight status that satisfies a
// FlightCancellation condition. The comparison is exact and case-sensitive.
const CancelledStatus = "cancelled"

// Evaluate reports whether obs satisfies c. Unknown condition kinds evaluate to
// false so one unsupported trigger cannot abort a monitoring cycle.
func Evaluate(c model.Condition, obs model.Observation) bool {
	switch typed := c.(type) {
	case model.FlightCancellation:
		return obs.Status == CancelledStatus
	case *model.FlightCancellation:
		return typed != nil && obs.Status == CancelledStatus
	default:
		return false
	}
}
