package condition

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotNumeric = errors.New("value is not numeric")
	ErrNotTime    = errors.New("value is not a time")
)

const day = 24 * time.Hour

func defaultOperators() map[string]Operator {
	return map[string]Operator{
		"eq":           equals,
		"neq":          not(equals),
		"gt":           compareNumbers(func(a, b float64) bool { return a > b }),
		"lt":           compareNumbers(func(a, b float64) bool { return a < b }),
		"gte":          compareNumbers(func(a, b float64) bool { return a >= b }),
		"lte":          compareNumbers(func(a, b float64) bool { return a <= b }),
		"contains":     contains,
		"not_contains": not(contains),
		"starts_with":  compareStrings(strings.HasPrefix),
		"ends_with":    compareStrings(strings.HasSuffix),
		"matches":      matches,
		"is_empty":     func(actual, _ any, _ time.Time) (bool, error) { return isEmpty(actual), nil },
		"is_not_empty": func(actual, _ any, _ time.Time) (bool, error) { return !isEmpty(actual), nil },
		"in_past":      inPast,
		"in_future":    inFuture,
		"days_ago":     daysAgo,
		"within_days":  withinDays,
		"in_list":      inList,
		"not_in_list":  not(inList),
	}
}

func not(operator Operator) Operator {
	return func(actual, expected any, now time.Time) (bool, error) {
		result, err := operator(actual, expected, now)
		if err != nil {
			return false, err
		}

		return !result, nil
	}
}

func equals(actual, expected any, _ time.Time) (bool, error) {
	if isNumber(actual) || isNumber(expected) {
		a, errA := toFloat(actual)
		b, errB := toFloat(expected)

		if errA == nil && errB == nil {
			return a == b, nil
		}
	}

	return toString(actual) == toString(expected), nil
}

func compareNumbers(compare func(a, b float64) bool) Operator {
	return func(actual, expected any, _ time.Time) (bool, error) {
		a, err := toFloat(actual)
		if err != nil {
			return false, err
		}

		b, err := toFloat(expected)
		if err != nil {
			return false, err
		}

		return compare(a, b), nil
	}
}

func compareStrings(compare func(s, affix string) bool) Operator {
	return func(actual, expected any, _ time.Time) (bool, error) {
		return compare(toString(actual), toString(expected)), nil
	}
}

func contains(actual, expected any, now time.Time) (bool, error) {
	if items, ok := toSlice(actual); ok {
		for _, item := range items {
			found, err := equals(item, expected, now)
			if err == nil && found {
				return true, nil
			}
		}

		return false, nil
	}

	return strings.Contains(toString(actual), toString(expected)), nil
}

func matches(actual, expected any, _ time.Time) (bool, error) {
	pattern, err := regexp.Compile(toString(expected))
	if err != nil {
		return false, fmt.Errorf("invalid pattern: %w", err)
	}

	return pattern.MatchString(toString(actual)), nil
}

func inPast(actual, _ any, now time.Time) (bool, error) {
	t, err := toTime(actual)
	if err != nil {
		return false, err
	}

	return t.Before(now), nil
}

func inFuture(actual, _ any, now time.Time) (bool, error) {
	t, err := toTime(actual)
	if err != nil {
		return false, err
	}

	return t.After(now), nil
}

// daysAgo holds when the field is at least n days in the past.
func daysAgo(actual, expected any, now time.Time) (bool, error) {
	t, err := toTime(actual)
	if err != nil {
		return false, err
	}

	n, err := toFloat(expected)
	if err != nil {
		return false, err
	}

	return !t.After(now.Add(-time.Duration(n * float64(day)))), nil
}

// withinDays holds when the field is no more than n days away from now.
func withinDays(actual, expected any, now time.Time) (bool, error) {
	t, err := toTime(actual)
	if err != nil {
		return false, err
	}

	n, err := toFloat(expected)
	if err != nil {
		return false, err
	}

	distance := now.Sub(t)
	if distance < 0 {
		distance = -distance
	}

	return distance <= time.Duration(n*float64(day)), nil
}

func inList(actual, expected any, now time.Time) (bool, error) {
	items, ok := toSlice(expected)
	if !ok {
		list := toString(expected)
		if list == "" {
			return false, nil
		}

		for _, item := range strings.Split(list, ",") {
			items = append(items, strings.TrimSpace(item))
		}
	}

	for _, item := range items {
		found, err := equals(actual, item, now)
		if err == nil && found {
			return true, nil
		}
	}

	return false, nil
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}

	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) == ""
	case *string:
		return v == nil || strings.TrimSpace(*v) == ""
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		if math.IsNaN(v) {
			return 0, ErrNotNumeric
		}

		return v, nil
	case *float64:
		if v == nil {
			return 0, ErrNotNumeric
		}

		return *v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, v)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, value)
	}
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", time.DateOnly}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, ErrNotTime
		}

		return *v, nil
	case string:
		for _, layout := range timeLayouts {
			t, err := time.Parse(layout, v)
			if err == nil {
				return t, nil
			}
		}

		return time.Time{}, fmt.Errorf("%w: %q", ErrNotTime, v)
	default:
		if isNumber(value) {
			seconds, err := toFloat(value)
			if err != nil {
				return time.Time{}, err
			}

			return time.Unix(int64(seconds), 0).UTC(), nil
		}

		return time.Time{}, fmt.Errorf("%w: %T", ErrNotTime, value)
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}

		return items, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	items := make([]any, rv.Len())
	for i := range rv.Len() {
		items[i] = rv.Index(i).Interface()
	}

	return items, true
}
