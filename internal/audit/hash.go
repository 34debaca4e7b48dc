// Package audit implements the hash chain of the security audit trail:
// deterministic canonical serialization, chain hashing, and chain
// verification. Everything here is pure; persistence lives in the
// repository layer.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/threattrace/threattrace/internal/model"
)

// TimeLayout is the fixed rendering of timestamps inside hashed payloads.
// Microsecond precision matches what TIMESTAMPTZ stores, so a persisted
// entry re-hashes to the same digest it was written with.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Truncate clips t to the precision that survives a database round trip.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ChainHash computes the event hash for e given its predecessor's hash:
// hex(SHA256(prevHash || "|" || canonical-JSON of every field except the
// event hash itself)).
func ChainHash(prevHash string, e *model.AuditEvent) string {
	payload := map[string]interface{}{
		"event_id":   e.EventID,
		"timestamp":  e.Timestamp,
		"action":     e.Action,
		"status":     e.Status,
		"severity":   e.Severity,
		"source":     e.Source,
		"target":     e.Target,
		"user_id":    e.UserID,
		"role":       e.Role,
		"ip":         e.IP,
		"user_agent": e.UserAgent,
		"details":    e.Details,
		"prev_hash":  e.PrevHash,
	}

	sum := sha256.Sum256([]byte(prevHash + "|" + Canonical(payload)))
	return hex.EncodeToString(sum[:])
}

// NormalizeDetails rewrites details into the exact shape a JSON column
// round trip produces: json.Number for numerics, map[string]interface{} and
// []interface{} for structured values, strings for everything else. Hashing
// the normalized form guarantees a re-read entry recomputes to the digest it
// was written with. Typed Go values such as int64 or map[string]string would
// otherwise hash differently before and after storage.
func NormalizeDetails(details map[string]interface{}) map[string]interface{} {
	if len(details) == 0 {
		return map[string]interface{}{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		// Unmarshalable values get coerced to strings up front, the same
		// stable-stringification rule writeCanonical applies.
		coerced := make(map[string]interface{}, len(details))
		for k, v := range details {
			coerced[k] = fmt.Sprint(v)
		}
		data, _ = json.Marshal(coerced)
	}
	normalized := map[string]interface{}{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&normalized); err != nil {
		return map[string]interface{}{}
	}
	return normalized
}

// Canonical renders v as deterministic JSON: object keys sorted, no
// insignificant whitespace, timestamps in TimeLayout, and non-JSON values
// coerced to strings. Identical logical content always yields identical
// output regardless of map iteration order.
func Canonical(v interface{}) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		writeJSONString(b, val)
	case *string:
		if val == nil {
			b.WriteString("null")
		} else {
			writeJSONString(b, *val)
		}
	case time.Time:
		writeJSONString(b, val.UTC().Format(TimeLayout))
	case *time.Time:
		if val == nil {
			b.WriteString("null")
		} else {
			writeJSONString(b, val.UTC().Format(TimeLayout))
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSONString(b, k)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSONString(b, item)
		}
		b.WriteByte(']')
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		raw, _ := json.Marshal(val)
		b.Write(raw)
	default:
		// Anything else is coerced to its string form, mirroring the
		// ledger's stable-stringification rule for exotic detail values.
		writeJSONString(b, fmt.Sprint(val))
	}
}

func writeJSONString(b *strings.Builder, s string) {
	raw, _ := json.Marshal(s)
	b.Write(raw)
}
