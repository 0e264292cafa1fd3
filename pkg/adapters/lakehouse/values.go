package lakehouse

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Drivers return aggregates in many shapes (int32, int64, float64, []byte,
// pgtype.Numeric, duckdb decimals, *big.Int). These helpers normalize them.

// ToInt64 converts a driver value to int64. nil converts to 0.
func ToInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case float32:
		return int64(x), nil
	case *big.Int:
		return x.Int64(), nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		f, ok, err := ToFloat64(v)
		if err != nil || !ok {
			return 0, fmt.Errorf("cannot convert %T to int64", v)
		}
		return int64(f), nil
	}
}

// ToFloat64 converts a driver value to float64. ok is false for nil.
func ToFloat64(v any) (float64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, true, nil
	case pgtype.Numeric:
		if !x.Valid {
			return 0, false, nil
		}
		f8, err := x.Float64Value()
		if err != nil {
			return 0, false, err
		}
		return f8.Float64, f8.Valid, nil
	case pgtype.Float8:
		return x.Float64, x.Valid, nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil, err
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil, err
	case interface{ Float64() float64 }: // duckdb.Decimal
		return x.Float64(), true, nil
	default:
		return 0, false, fmt.Errorf("cannot convert %T to float64", v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ToTime converts a driver value to a time. nil returns (nil, nil).
func ToTime(v any) (*time.Time, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t := x.UTC()
		return &t, nil
	case pgtype.Timestamp:
		if !x.Valid {
			return nil, nil
		}
		t := x.Time.UTC()
		return &t, nil
	case pgtype.Timestamptz:
		if !x.Valid {
			return nil, nil
		}
		t := x.Time.UTC()
		return &t, nil
	case pgtype.Date:
		if !x.Valid {
			return nil, nil
		}
		t := x.Time.UTC()
		return &t, nil
	case []byte:
		return ParseTime(string(x))
	case string:
		return ParseTime(x)
	default:
		return nil, fmt.Errorf("cannot convert %T to time", v)
	}
}

// ParseTime parses the textual timestamp formats the supported engines emit.
func ParseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized time value %q", s)
}

// ToString renders a driver value as text. nil renders as "".
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
