package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// WriteStructFields inspects a struct and writes its fields to the strings.Builder.
// It joins lines with newlines but DOES NOT add a trailing newline, preventing artifacts in strings.Split.
// If the builder is not empty, it prepends a newline to separate this block from previous content.
//
// Byte slice fields honour a `fmt` struct tag:
//   - "ascii": hex followed by the printable rendering.
//   - "int":   hex followed by the big-endian unsigned value.
//   - "fpr20": one line per 20-byte fingerprint.
func WriteStructFields(sb *strings.Builder, prefix string, s any) {
	val := reflect.ValueOf(s)

	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}

	typ := val.Type()
	var lines []string

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		switch {
		case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8:
			lines = append(lines, formatByteSliceField(prefix, field, fieldType)...)
		case field.Type() == reflect.TypeOf([]bertlv.TLV{}):
			lines = append(lines, formatUnknownField(prefix, field)...)
		}
	}

	if len(lines) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(lines, "\n"))
	}
}

func formatByteSliceField(prefix string, field reflect.Value, fieldType reflect.StructField) []string {
	if field.IsNil() || field.Len() == 0 {
		return nil
	}

	data := field.Bytes()
	name := fieldType.Name
	if tag := fieldType.Tag.Get("tlv"); tag != "" {
		name = fmt.Sprintf("%s (%s)", name, tag)
	}

	format := fieldType.Tag.Get("fmt")
	if format == "fpr20" {
		var lines []string
		for i := 0; i+20 <= len(data); i += 20 {
			lines = append(lines, fmt.Sprintf("    - %s.%s[%d]: %X", prefix, name, i/20, data[i:i+20]))
		}
		return lines
	}

	return []string{fmt.Sprintf("    - %s.%s: %s", prefix, name, formatByteValue(data, format))}
}

func formatUnknownField(prefix string, field reflect.Value) []string {
	if field.IsNil() || field.Len() == 0 {
		return nil
	}

	var lines []string
	for _, t := range field.Interface().([]bertlv.TLV) {
		lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %s", prefix, t.Tag, strings.ToUpper(hex.EncodeToString(rawValue(t)))))
	}
	return lines
}

func formatByteValue(data []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, MakeSafeASCII(data))
	case "int":
		var integer int
		for _, b := range data {
			integer = (integer << 8) | int(b)
		}
		return fmt.Sprintf("%X (Dec: %d)", data, integer)
	default:
		return strings.ToUpper(hex.EncodeToString(data))
	}
}

// MakeSafeASCII replaces every non-printable byte with a dot.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
