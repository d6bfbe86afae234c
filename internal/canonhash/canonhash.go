// Package canonhash produces stable content digests over extracted field
// maps. Two semantically equal payloads hash identically regardless of key
// order, incidental whitespace, or float noise beyond ten decimal places.
package canonhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// floatPrecision is the rounding factor applied to floats before hashing.
const floatPrecision = 1e10

// Canonicalize returns a normalized copy of a JSON-like value:
//   - map keys are emitted sorted (encoding/json sorts them on marshal)
//   - nil values are dropped from maps (null means absent, not present-as-null)
//   - times render as ISO-8601 UTC strings
//   - floats round to 10 decimal places
//   - strings collapse internal whitespace
//   - list order is preserved
//
// The input is never mutated.
func Canonicalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if inner == nil {
				continue
			}
			c := Canonicalize(inner)
			if c == nil {
				continue
			}
			out[k] = c
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = Canonicalize(inner)
		}
		return out
	case string:
		return collapseWhitespace(val)
	case float64:
		return roundFloat(val)
	case float32:
		return roundFloat(float64(val))
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return val
	}
}

// Hash returns the hex-encoded SHA-256 of the canonical JSON rendering of v.
// The digest is always 64 characters.
func Hash(v any) (string, error) {
	data, err := json.Marshal(Canonicalize(v))
	if err != nil {
		return "", eris.Wrap(err, "canonhash: marshal canonical form")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// MustHash is Hash for values known to be JSON-marshalable, such as field
// maps that already round-tripped through JSON.
func MustHash(v any) string {
	h, err := Hash(v)
	if err != nil {
		panic(err)
	}
	return h
}

func roundFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Round(f*floatPrecision) / floatPrecision
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ")
}
