package journey

import (
	"encoding/json"
	"math"
	"strconv"
)

// Inbound event types with built-in routing.
const (
	EventFunnelStepChanged = "funnel_step_changed"
	EventManualTrigger     = "manual_trigger"
)

// Int64Value reads an integer id out of decoded event data. JSON numbers,
// Go integers and numeric strings are accepted.
func Int64Value(data map[string]any, key string) (int64, bool) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return 0, false
	}

	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}

		return int64(v), true
	case json.Number:
		n, err := v.Int64()

		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)

		return n, err == nil
	default:
		return 0, false
	}
}
