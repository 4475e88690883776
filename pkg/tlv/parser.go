// Package tlv decodes BER-TLV (Basic Encoding Rules, Tag-Length-Value) card data.
//
// Two decoders live here. Decode builds a navigable DataObject tree and is what the
// protocol code relies on. Unmarshal maps a response onto a Go struct through `tlv`
// struct tags and is used to render reports.
package tlv

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// ErrTemplateNotFound is returned by UnmarshalTemplate when the wrapping template is absent.
var ErrTemplateNotFound = errors.New("tlv: template not found")

// Unmarshaler allows custom types to implement their own TLV parsing logic.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

// Unmarshal parses raw BER-TLV data and maps it into a target Go struct.
func Unmarshal(data []byte, target any) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalTemplate locates the top-level constructed template (e.g. "6E") and maps
// its children into target.
func UnmarshalTemplate(data []byte, template string, target any) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}

	for _, p := range packets {
		if strings.EqualFold(p.Tag, template) {
			return UnmarshalFromPackets(p.TLVs, target)
		}
	}
	return fmt.Errorf("%w: %s", ErrTemplateNotFound, template)
}

// UnmarshalFromPackets maps pre-decoded packets onto target, which must be a non-nil
// struct pointer. Fields tagged `tlv:"XX"` receive the matching packet; a slice of
// structs collects every occurrence. Packets matching no field land in the field
// tagged `tlv:",unknown"` when there is one.
func UnmarshalFromPackets(packets []bertlv.TLV, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	v = v.Elem()
	t := v.Type()

	consumed := make([]bool, len(packets))
	unknown := -1

	for i := 0; i < t.NumField(); i++ {
		fieldTag := t.Field(i).Tag.Get("tlv")
		if fieldTag == ",unknown" {
			unknown = i
			continue
		}
		if fieldTag == "" {
			continue
		}

		want := strings.Split(fieldTag, ",")[0]
		for idx, p := range packets {
			if !strings.EqualFold(p.Tag, want) {
				continue
			}
			if err := assign(p, v.Field(i)); err != nil {
				return fmt.Errorf("field %s (tag %s): %w", t.Field(i).Name, want, err)
			}
			consumed[idx] = true
		}
	}

	if unknown < 0 {
		return nil
	}

	var leftovers []bertlv.TLV
	for idx, p := range packets {
		if !consumed[idx] {
			leftovers = append(leftovers, p)
		}
	}
	if len(leftovers) > 0 {
		v.Field(unknown).Set(reflect.ValueOf(leftovers))
	}
	return nil
}

// assign stores one packet into field. Slices of non-byte elements grow by one entry.
func assign(p bertlv.TLV, field reflect.Value) error {
	if field.Kind() == reflect.Slice && !isByteSlice(field) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeValue(p, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decodeValue(p, field)
}

func decodeValue(p bertlv.TLV, field reflect.Value) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(rawValue(p))
		}
	}

	switch {
	case isByteSlice(field):
		field.SetBytes(rawValue(p))
	case field.Kind() == reflect.String:
		field.SetString(strings.ToUpper(hex.EncodeToString(p.Value)))
	case field.Kind() == reflect.Struct:
		return decodeNested(p, field.Addr())
	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return decodeNested(p, field)
	}
	return nil
}

func decodeNested(p bertlv.TLV, target reflect.Value) error {
	if len(p.TLVs) > 0 {
		return UnmarshalFromPackets(p.TLVs, target.Interface())
	}
	return Unmarshal(p.Value, target.Interface())
}

// rawValue returns the value bytes, re-encoding children of constructed packets.
func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}
