// Package registry implements the tool schema registry: deterministic
// JSON canonicalisation, a Merkle digest over registered schemas, and
// drift categorisation between schema versions.
package registry

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize renders an arbitrary decoded JSON value (as produced by
// encoding/json's default decode into interface{}, map[string]interface{},
// []interface{}, string, float64, bool, nil) into its RFC 8785 JSON
// Canonicalization Scheme byte representation.
//
// NaN and infinities are rejected rather than silently coerced to null:
// a schema document containing either is malformed input and the caller
// should see that at ingestion time, not at hash time.
func Canonicalize(v interface{}) ([]byte, error) {
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// HashCanonical returns the SHA-256 digest of the canonical form of v.
func HashCanonical(v interface{}) ([32]byte, error) {
	canon, err := Canonicalize(v)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(canon), nil
}

func writeCanonical(b *strings.Builder, v interface{}) error {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
		return nil
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		return nil
	case string:
		writeCanonicalString(b, val)
		return nil
	case float64:
		return writeCanonicalNumber(b, val)
	case int:
		b.WriteString(strconv.Itoa(val))
		return nil
	case []interface{}:
		return writeCanonicalArray(b, val)
	case map[string]interface{}:
		return writeCanonicalObject(b, val)
	default:
		return fmt.Errorf("registry: cannot canonicalize value of type %T", v)
	}
}

func writeCanonicalNumber(b *strings.Builder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("registry: NaN and infinite numbers cannot be canonicalized")
	}
	if f == 0 { // also negative zero
		b.WriteString("0")
		return nil
	}
	// Shortest round-trippable digits in the ECMAScript layout: plain
	// decimal (whole values as integers) for magnitudes in [1e-6, 1e21),
	// exponent form with an unpadded exponent outside that range.
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	b.WriteString(mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0"))
	return nil
}

func writeCanonicalString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

func writeCanonicalArray(b *strings.Builder, arr []interface{}) error {
	b.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeCanonical(b, elem); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func writeCanonicalObject(b *strings.Builder, obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	// Sort by UTF-16 code-unit sequence, not by raw UTF-8 byte value.
	sort.Slice(keys, func(i, j int) bool {
		return utf16Less(keys[i], keys[j])
	})

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonicalString(b, k)
		b.WriteByte(':')
		if err := writeCanonical(b, obj[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

// utf16Less compares two strings by their UTF-16 code-unit sequences,
// as RFC 8785 requires for object key ordering. For the BMP-only
// schema text this registry expects, code point order already matches;
// surrogate pairs are handled explicitly so astral characters sort the
// same way a UTF-16 JSON implementation would see them.
func utf16Less(a, b string) bool {
	au := utf16Units(a)
	bu := utf16Units(b)
	n := len(au)
	if len(bu) < n {
		n = len(bu)
	}
	for i := 0; i < n; i++ {
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

// SchemaRecord is the quadruple (name, description, input schema,
// output schema) whose canonical JSON object is hashed to produce a
// tool's digest.
type SchemaRecord struct {
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	InputSchema  interface{} `json:"input_schema"`
	OutputSchema interface{} `json:"output_schema"`
}

// Digest computes the 32-byte SHA-256 digest of the schema's canonical
// JSON object form.
func (s SchemaRecord) Digest() ([32]byte, error) {
	obj := map[string]interface{}{
		"name":          s.Name,
		"description":   s.Description,
		"input_schema":  s.InputSchema,
		"output_schema": s.OutputSchema,
	}
	return HashCanonical(obj)
}
