// Package audit implements a tamper-evident audit chain: a canonical encoder
// for deterministic hashing, a logger that links records through SHA-256
// chain hashes, and a verifier that recomputes every link from stored records.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf16"

	"opsledger/internal/domain"
)

// Encode serializes a structured value (string-keyed mappings, sequences,
// scalars) into a canonical byte form: two structurally equal values always
// encode to the same bytes, regardless of map construction order. Object keys
// are sorted lexicographically at every level, separators are "," and ":"
// with no whitespace, and non-ASCII and control characters are escaped as
// \uXXXX so the output is pure ASCII.
//
// Values the encoder cannot serialize deterministically (cycles, NaN/Inf,
// non-string map keys, funcs, channels, structs) are rejected with an error
// wrapping domain.ErrEncoding; nothing is silently coerced or dropped.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, map[uintptr]struct{}{}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any, active map[uintptr]struct{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		encodeString(buf, val)
		return nil
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int8:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int16:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
		return nil
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
		return nil
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
		return nil
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
		return nil
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
		return nil
	case float32:
		return encodeFloat(buf, float64(val))
	case float64:
		return encodeFloat(buf, val)
	case json.Number:
		return encodeNumber(buf, val)
	case map[string]any:
		return encodeMap(buf, reflect.ValueOf(val), active)
	case []any:
		return encodeSlice(buf, reflect.ValueOf(val), active)
	}
	return encodeReflect(buf, reflect.ValueOf(v), active)
}

// encodeReflect handles typed containers (map[string]T, []T, pointers) that
// the fast-path type switch does not cover.
func encodeReflect(buf *bytes.Buffer, rv reflect.Value, active map[uintptr]struct{}) error {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return encodeValue(buf, rv.Elem().Interface(), active)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return domain.NewDomainError("audit.Encode", domain.ErrEncoding,
				fmt.Sprintf("map key type %s is not string", rv.Type().Key()))
		}
		return encodeMap(buf, rv, active)
	case reflect.Slice, reflect.Array:
		return encodeSlice(buf, rv, active)
	case reflect.String:
		encodeString(buf, rv.String())
		return nil
	case reflect.Bool:
		return encodeValue(buf, rv.Bool(), active)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return encodeFloat(buf, rv.Float())
	}
	return domain.NewDomainError("audit.Encode", domain.ErrEncoding,
		fmt.Sprintf("unsupported type %T", rv.Interface()))
}

func encodeMap(buf *bytes.Buffer, rv reflect.Value, active map[uintptr]struct{}) error {
	if rv.IsNil() {
		buf.WriteString("null")
		return nil
	}
	ptr := rv.Pointer()
	if _, ok := active[ptr]; ok {
		return domain.NewDomainError("audit.Encode", domain.ErrEncoding, "cyclic reference")
	}
	active[ptr] = struct{}{}
	defer delete(active, ptr)

	keys := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keys = append(keys, iter.Key().String())
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		elem := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))
		if err := encodeValue(buf, elem.Interface(), active); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeSlice(buf *bytes.Buffer, rv reflect.Value, active map[uintptr]struct{}) error {
	if rv.Kind() == reflect.Slice {
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		ptr := rv.Pointer()
		if _, ok := active[ptr]; ok {
			return domain.NewDomainError("audit.Encode", domain.ErrEncoding, "cyclic reference")
		}
		active[ptr] = struct{}{}
		defer delete(active, ptr)
	}

	buf.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, rv.Index(i).Interface(), active); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// maxSafeInteger is the largest float64 magnitude at which every integer is
// still exactly representable (2^53).
const maxSafeInteger = 1 << 53

func encodeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return domain.NewDomainError("audit.Encode", domain.ErrEncoding,
			"non-finite float has no canonical form")
	}
	// Integral values in the safe range render as plain integers, never in
	// exponent notation, so a sequence number decoded from JSON as float64
	// re-encodes to the exact bytes the int64 produced at log time.
	if f == math.Trunc(f) && math.Abs(f) < maxSafeInteger {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// encodeNumber writes a json.Number's digit string verbatim, preserving the
// stored representation across decode/re-encode round trips.
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	if _, err := n.Int64(); err != nil {
		f, err := n.Float64()
		if err != nil {
			return domain.NewDomainError("audit.Encode", domain.ErrEncoding,
				fmt.Sprintf("malformed number %q", string(n)))
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return domain.NewDomainError("audit.Encode", domain.ErrEncoding,
				"non-finite float has no canonical form")
		}
	}
	buf.WriteString(string(n))
	return nil
}

const hexDigits = "0123456789abcdef"

func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				buf.WriteByte(byte(r))
			case r > 0xffff:
				// Escape astral-plane runes as a UTF-16 surrogate pair.
				hi, lo := utf16.EncodeRune(r)
				writeEscape(buf, uint16(hi))
				writeEscape(buf, uint16(lo))
			default:
				writeEscape(buf, uint16(r))
			}
		}
	}
	buf.WriteByte('"')
}

func writeEscape(buf *bytes.Buffer, r uint16) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[r>>12&0xf])
	buf.WriteByte(hexDigits[r>>8&0xf])
	buf.WriteByte(hexDigits[r>>4&0xf])
	buf.WriteByte(hexDigits[r&0xf])
}
