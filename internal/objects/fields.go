package objects

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/nodeledger/nodeledger/internal/exception"
)

// Field describes one versioned object field and how its value moves
// between the store, the wire primitive and memory.
type Field struct {
	Name string
	// Column is the store column when it differs from Name
	Column     string
	Introduced Version
	// Removed is the first version that no longer carries the field; zero
	// means never removed.
	Removed  Version
	ReadOnly bool

	// Coerce turns any accepted representation (column value, primitive
	// value, resource report value or typed value) into the typed value.
	Coerce   func(v interface{}) (interface{}, error)
	ToColumn func(v interface{}) (interface{}, error)
	// ToPrimitive receives the parent target version, or the mapped child
	// version for fields holding child objects.
	ToPrimitive func(v interface{}, version Version) (interface{}, error)
}

// ColumnName returns the store column of the field
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// PresentAt reports whether the field exists in version target
func (f Field) PresentAt(target Version) bool {
	if target.Less(f.Introduced) {
		return false
	}
	return f.Removed.IsZero() || target.Less(f.Removed)
}

func (f Field) coerce(v interface{}) (interface{}, error) {
	out, err := f.Coerce(v)
	if err != nil {
		return nil, exception.ValueConversion(f.Name, v, err)
	}
	return out, nil
}

func (f Field) toColumn(v interface{}) (interface{}, error) {
	if f.ToColumn == nil {
		return v, nil
	}
	out, err := f.ToColumn(v)
	if err != nil {
		return nil, exception.ValueConversion(f.Name, v, err)
	}
	return out, nil
}

func (f Field) toPrimitive(v interface{}, target Version) (interface{}, error) {
	if f.ToPrimitive == nil {
		return v, nil
	}
	return f.ToPrimitive(v, target)
}

func intField(name, introduced string) Field {
	return Field{
		Name:       name,
		Introduced: MustParseVersion(introduced),
		Coerce:     func(v interface{}) (interface{}, error) { return toInt64(v) },
	}
}

func stringField(name, introduced string) Field {
	return Field{
		Name:       name,
		Introduced: MustParseVersion(introduced),
		Coerce:     func(v interface{}) (interface{}, error) { return toString(v) },
	}
}

func boolField(name, introduced string) Field {
	return Field{
		Name:       name,
		Introduced: MustParseVersion(introduced),
		Coerce:     func(v interface{}) (interface{}, error) { return toBool(v) },
	}
}

func timeField(name, introduced string) Field {
	return Field{
		Name:       name,
		Introduced: MustParseVersion(introduced),
		Coerce:     func(v interface{}) (interface{}, error) { return toTime(v) },
		ToPrimitive: func(v interface{}, _ Version) (interface{}, error) {
			return v.(time.Time).UTC().Format(time.RFC3339Nano), nil
		},
	}
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", t)
		}
		return int64(t), nil
	case float32:
		return floatToInt64(float64(t))
	case float64:
		return floatToInt64(t)
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func toString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case int, int32, int64, uint, uint32, uint64, float32, float64, bool:
		return fmt.Sprint(t), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", fmt.Errorf("cannot convert %T to string", v)
}

func toBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(t))
	}
	n, err := toInt64(v)
	if err != nil {
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
	return n != 0, nil
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return t.UTC(), nil
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, err
		}
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to time", v)
}

// stats

func statsFromAny(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]string, len(t))
		for k, e := range t {
			s, err := toString(e)
			if err != nil {
				return nil, fmt.Errorf("stats[%s]: %w", k, err)
			}
			out[k] = s
		}
		return out, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return map[string]string{}, nil
		}
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(t), &raw); err != nil {
			return nil, err
		}
		return statsFromAny(raw)
	}
	return nil, fmt.Errorf("cannot convert %T to a string map", v)
}

func statsToText(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v.(map[string]string))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func statsToPrimitive(v interface{}, _ Version) (interface{}, error) {
	m := v.(map[string]string)
	out := make(map[string]interface{}, len(m))
	for k, s := range m {
		out[k] = s
	}
	return out, nil
}

// host_ip

func ipFromAny(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case netip.Addr:
		if !t.IsValid() {
			return nil, fmt.Errorf("invalid address")
		}
		return t, nil
	case net.IP:
		a, ok := netip.AddrFromSlice(t)
		if !ok {
			return nil, fmt.Errorf("invalid address %v", t)
		}
		return a.Unmap(), nil
	case string:
		return netip.ParseAddr(strings.TrimSpace(t))
	}
	return nil, fmt.Errorf("cannot convert %T to an IP address", v)
}

func ipToText(v interface{}) (interface{}, error) {
	return v.(netip.Addr).String(), nil
}

func ipToPrimitive(v interface{}, _ Version) (interface{}, error) {
	return v.(netip.Addr).String(), nil
}
