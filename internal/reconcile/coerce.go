package reconcile

import (
	"strings"
	"time"
)

// noneDisplay is the sentinel rendered for absent values in comparisons and
// audit messages.
const noneDisplay = "(none)"

const displayDateLayout = "02-Jan-2006"

var layoutReplacer = strings.NewReplacer(
	"dd", "02",
	"MM", "01",
	"yyyy", "2006",
	"yy", "06",
)

// goLayout converts the descriptor date format (dd/MM/yy or dd/MM/yyyy) into
// a Go time layout.
func goLayout(format string) string {
	return layoutReplacer.Replace(format)
}

// parseImportDate parses a raw date string into date-only epoch milliseconds.
func parseImportDate(value, format string) (int64, bool) {
	t, err := time.Parse(goLayout(format), strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.UnixMilli(), true
}

// truthy normalises a raw boolean-ish value.
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "1", "on":
			return true
		}
	case int64:
		return val != 0
	}
	return false
}

// coerce converts a raw value to its typed form: dates to date-only epoch
// milliseconds, booleans through the truthy normaliser, strings unchanged.
// Unparseable or absent values coerce to nil.
func coerce(v any, typ ValueType, dateFormat string) any {
	if v == nil {
		return nil
	}

	switch typ {
	case TypeDate:
		switch val := v.(type) {
		case int64:
			if val == 0 {
				return nil
			}
			return val
		case string:
			if strings.TrimSpace(val) == "" {
				return nil
			}
			if millis, ok := parseImportDate(val, dateFormat); ok {
				return millis
			}
			return nil
		}
		return nil
	case TypeBoolean:
		return truthy(v)
	default:
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return nil
	}
}

// isEmptyValue reports whether a coerced value counts as absent.
func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case int64:
		return val == 0
	case bool:
		return !val
	}
	return false
}

// displayValue renders a coerced value for comparison and audit messages.
func displayValue(v any, typ ValueType) string {
	if isEmptyValue(v) {
		return noneDisplay
	}

	switch typ {
	case TypeDate:
		if millis, ok := v.(int64); ok {
			return time.UnixMilli(millis).UTC().Format(displayDateLayout)
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok && b {
			return "true"
		}
	default:
		if s, ok := v.(string); ok {
			return s
		}
	}

	return noneDisplay
}
