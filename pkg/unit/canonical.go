package unit

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize produces the JCS (RFC 8785) byte image of u with the proof
// field removed (I5). This is the signing payload.
func Canonicalize(u *Unit) ([]byte, error) {
	stripped := *u
	stripped.Proof = nil

	raw, err := json.Marshal(stripped)
	if err != nil {
		return nil, fmt.Errorf("unit: marshal for canonicalization: %w", err)
	}

	var v any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("unit: decode for canonicalization: %w", err)
	}

	var sb strings.Builder
	if err := writeCanonical(&sb, v); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func writeCanonical(sb *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case json.Number:
		return writeCanonicalNumber(sb, val)
	case string:
		writeCanonicalString(sb, val)
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeCanonical(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return utf16Less(keys[i], keys[j])
		})
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonicalString(sb, k)
			sb.WriteByte(':')
			if err := writeCanonical(sb, val[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	default:
		return fmt.Errorf("unit: unsupported canonicalization type %T", v)
	}
	return nil
}

// utf16Less orders two strings by their UTF-16 code unit sequence, per JCS
// §3.2.3. For the BMP-only strings SemanticWeft actually emits (ids, enum
// values, free-text content) this coincides with Go's native UTF-8 byte
// comparison for all but surrogate-pair (astral) characters, which sort
// lower under UTF-16 than their code point would suggest under UTF-8; we
// convert explicitly to avoid that divergence.
func utf16Less(a, b string) bool {
	au := utf16Units(a)
	bu := utf16Units(b)
	for i := 0; i < len(au) && i < len(bu); i++ {
		if au[i] != bu[i] {
			return au[i] < bu[i]
		}
	}
	return len(au) < len(bu)
}

func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r > 0xFFFF {
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		} else {
			units = append(units, uint16(r))
		}
	}
	return units
}

// writeCanonicalString escapes per JSON with minimal escaping, as JCS
// requires: only the characters JSON mandates escaping (", \, and control
// characters) are escaped; everything else, including non-ASCII, is emitted
// literally.
func writeCanonicalString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}

// writeCanonicalNumber serializes per the ECMAScript Number::toString
// algorithm JCS mandates: integral values below 1e15 are written as plain
// integers; other values with magnitude in [1e-6, 1e21) use the shortest
// round-tripping digits in fixed notation; everything else uses those
// digits in exponent form with no zero padding in the exponent (1e-7,
// 1.5e+21).
func writeCanonicalNumber(sb *strings.Builder, n json.Number) error {
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("unit: non-numeric value %q in canonicalization", n)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("unit: NaN/Infinity is not representable in JCS")
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		sb.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	sb.WriteString(mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0"))
	return nil
}
