// Package canonicaljson serializes JSON-compatible values into the RFC 8785
// (JSON Canonicalization Scheme) form: object keys sorted by UTF-16 code
// units at every nesting level, no insignificant whitespace, minimal string
// escaping and ES6 number formatting. Structurally equal inputs always
// produce identical bytes, which is what makes signatures over the output
// verifiable by an independent implementation.
package canonicaljson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrNonFinite is returned when a NaN or infinite number is encountered.
// JCS has no representation for these, so they are a fatal input error.
var ErrNonFinite = errors.New("canonicaljson: cannot represent non-finite number")

// UnsupportedTypeError is returned for values that cannot be represented as
// JSON at all.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("canonicaljson: unsupported type: %s", e.Type)
}

// Marshal returns the canonical JCS encoding of v.
func Marshal(v any) ([]byte, error) {
	return Append(nil, v)
}

// Append appends the canonical JCS encoding of v to dst and returns the
// extended buffer.
func Append(dst []byte, v any) ([]byte, error) {
	return appendValue(dst, v)
}

func appendValue(dst []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(dst, "null"...), nil
	case bool:
		if val {
			return append(dst, "true"...), nil
		}
		return append(dst, "false"...), nil
	case string:
		return appendString(dst, val), nil
	case json.Number:
		return appendNumber(dst, val)
	case float64:
		return appendFloat(dst, val)
	case float32:
		return appendFloat(dst, float64(val))
	case int:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case int8:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case int16:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case int32:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(dst, val, 10), nil
	case uint:
		return strconv.AppendUint(dst, uint64(val), 10), nil
	case uint8:
		return strconv.AppendUint(dst, uint64(val), 10), nil
	case uint16:
		return strconv.AppendUint(dst, uint64(val), 10), nil
	case uint32:
		return strconv.AppendUint(dst, uint64(val), 10), nil
	case uint64:
		return strconv.AppendUint(dst, val, 10), nil
	case map[string]any:
		return appendObject(dst, val)
	case []any:
		return appendArray(dst, val)
	default:
		return appendOther(dst, v)
	}
}

// appendOther handles arbitrary values (structs, typed maps and slices) by
// routing them through encoding/json first, then canonicalizing the result.
// UseNumber keeps numeric literals intact so they are reformatted from their
// exact value rather than a lossy intermediate.
func appendOther(dst []byte, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		var ute *json.UnsupportedTypeError
		if errors.As(err, &ute) {
			return nil, &UnsupportedTypeError{Type: ute.Type}
		}
		var uve *json.UnsupportedValueError
		if errors.As(err, &uve) && (strings.Contains(uve.Str, "NaN") || strings.Contains(uve.Str, "Inf")) {
			return nil, ErrNonFinite
		}
		return nil, fmt.Errorf("canonicaljson: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("canonicaljson: %w", err)
	}
	return appendValue(dst, decoded)
}

func appendObject(dst []byte, obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessUTF16(keys[i], keys[j])
	})

	var err error
	dst = append(dst, '{')
	for i, k := range keys {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendString(dst, k)
		dst = append(dst, ':')
		dst, err = appendValue(dst, obj[k])
		if err != nil {
			return nil, err
		}
	}
	return append(dst, '}'), nil
}

func appendArray(dst []byte, arr []any) ([]byte, error) {
	var err error
	dst = append(dst, '[')
	for i, el := range arr {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst, err = appendValue(dst, el)
		if err != nil {
			return nil, err
		}
	}
	return append(dst, ']'), nil
}

const hexDigits = "0123456789abcdef"

// appendString writes s with the minimal escaping JCS mandates: the two
// characters that must be escaped, the five single-character escapes, and
// \u00xx for remaining control characters. Everything else is emitted as
// literal UTF-8.
func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for _, r := range s {
		switch r {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			if r < 0x20 {
				dst = append(dst, '\\', 'u', '0', '0', hexDigits[r>>4], hexDigits[r&0xf])
			} else {
				dst = utf8.AppendRune(dst, r)
			}
		}
	}
	return append(dst, '"')
}

// appendNumber renders a json.Number. Integer literals that fit int64 are
// emitted exactly, preserving precision beyond 2^53; everything else goes
// through IEEE 754 double formatting.
func appendNumber(dst []byte, n json.Number) ([]byte, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return strconv.AppendInt(dst, v, 10), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: invalid number literal %q: %w", s, err)
	}
	return appendFloat(dst, f)
}

// appendFloat formats f the way ES6's Number-to-string conversion does,
// which is what RFC 8785 requires: shortest round-trip representation,
// plain notation for magnitudes in [1e-6, 1e21), exponent notation outside
// that range with no zero-padded exponent digits.
func appendFloat(dst []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, ErrNonFinite
	}
	if f == 0 {
		// Covers negative zero as well.
		return append(dst, '0'), nil
	}

	abs := math.Abs(f)
	format := byte('e')
	if abs < 1e21 && abs >= 1e-6 {
		format = 'f'
	}
	s := strconv.FormatFloat(f, format, -1, 64)

	if i := strings.IndexByte(s, 'e'); i >= 0 {
		mantissa, exp := s[:i], s[i+1:]
		sign := "+"
		if exp[0] == '+' || exp[0] == '-' {
			if exp[0] == '-' {
				sign = "-"
			}
			exp = exp[1:]
		}
		exp = strings.TrimLeft(exp, "0")
		dst = append(dst, mantissa...)
		dst = append(dst, 'e')
		if sign == "-" {
			dst = append(dst, '-')
		} else {
			dst = append(dst, '+')
		}
		return append(dst, exp...), nil
	}
	return append(dst, s...), nil
}

// lessUTF16 orders keys by their UTF-16 code unit sequences as RFC 8785
// section 3.2.3 requires. This differs from plain string comparison only for
// strings mixing supplementary-plane characters with U+E000..U+FFFF.
func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}
