package sdtm

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
)

const intTolerance = 1e-9

var numericRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// NormalizeKey canonicalizes one join-key cell so that 1, 1.0 and "1 " compare
// equal. The result is nil for nulls and a string otherwise. It is total and
// idempotent.
func NormalizeKey(v any) any {
	if table.IsNull(v) {
		return nil
	}
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if !numericRe.MatchString(s) {
			return s
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return s
		}
		if out, ok := intString(f); ok {
			return out
		}
		return s
	case float64:
		return floatKey(x)
	case float32:
		return floatKey(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	}
	return strings.TrimSpace(table.String(v))
}

// NormalizeKeys applies NormalizeKey to a whole column.
func NormalizeKeys(col []any) []any {
	out := make([]any, len(col))
	for i, v := range col {
		out[i] = NormalizeKey(v)
	}
	return out
}

// NormalizeCode renders a dictionary code: integer-valued floats lose their
// ".0", strings are trimmed, nulls stay nil.
func NormalizeCode(v any) any {
	if table.IsNull(v) {
		return nil
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return floatKey(x)
	case float32:
		return floatKey(float64(x))
	}
	return strings.TrimSpace(table.String(v))
}

func floatKey(f float64) string {
	if math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if out, ok := intString(f); ok {
		return out
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func intString(f float64) (string, bool) {
	r := math.Round(f)
	if math.Abs(f-r) >= intTolerance {
		return "", false
	}
	if math.Abs(r) < 1<<63 {
		return strconv.FormatInt(int64(r), 10), true
	}
	return strconv.FormatFloat(r, 'f', 0, 64), true
}

// keyTuple builds a composite lookup key from already normalized parts. ok is
// false when any part is null.
func keyTuple(parts ...any) (string, bool) {
	var b strings.Builder
	for i, p := range parts {
		if p == nil {
			return "", false
		}
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(p.(string))
	}
	return b.String(), true
}
