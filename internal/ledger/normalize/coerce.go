package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	ledger "flowdistributor/internal/ledger/domain"
)

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"02/01/2006",
}

// firstDecimal returns the first candidate that coerces to a number.
func firstDecimal(data map[string]any, candidates []string) (decimal.Decimal, string, bool) {
	for _, field := range candidates {
		if value, ok := toDecimal(data[field]); ok {
			return value, field, true
		}
	}
	return decimal.Zero, "", false
}

func firstTime(data map[string]any, candidates []string, loc *time.Location) (time.Time, bool) {
	for _, field := range candidates {
		if value, ok := toTime(data[field], loc); ok {
			return value, true
		}
	}
	return time.Time{}, false
}

func firstString(data map[string]any, candidates []string) string {
	for _, field := range candidates {
		if value, ok := data[field].(string); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return v, true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(v), true
	case float32:
		return toDecimal(float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(v))
		if cleaned == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(cleaned)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func toTime(value any, loc *time.Location) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case string:
		return parseTimeString(strings.TrimSpace(v), loc)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(v)).In(loc), true
	case int64:
		if v <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(v).In(loc), true
	case int:
		return toTime(int64(v), loc)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return toTime(n, loc)
	case map[string]any:
		return timestampMap(v, loc)
	default:
		return time.Time{}, false
	}
}

func parseTimeString(value string, loc *time.Location) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// timestampMap reads exported Firestore timestamps ({_seconds, _nanoseconds}).
func timestampMap(value map[string]any, loc *time.Location) (time.Time, bool) {
	seconds, ok := toDecimal(value["_seconds"])
	if !ok {
		seconds, ok = toDecimal(value["seconds"])
	}
	if !ok || !seconds.IsPositive() {
		return time.Time{}, false
	}
	nanos, ok := toDecimal(value["_nanoseconds"])
	if !ok {
		nanos, _ = toDecimal(value["nanoseconds"])
	}
	return time.Unix(seconds.IntPart(), nanos.IntPart()).In(loc), true
}

func parseStatus(value string) ledger.Status {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pendiente", "pending", "por cobrar", "por pagar":
		return ledger.StatusPending
	case "cancelado", "cancelada", "cancelled", "canceled":
		return ledger.StatusCancelled
	default:
		return ledger.StatusCompleted
	}
}

func parseDirection(value string) (ledger.Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "ingreso", "abono", "income", "entrada":
		return ledger.DirectionIncome, true
	case "gasto", "cargo", "expense", "salida":
		return ledger.DirectionExpense, true
	default:
		return "", false
	}
}
