package tlv

import (
	"errors"
	"fmt"

	"github.com/gregLibert/openpgp-card/pkg/bits"
)

// BER-TLV DATA OBJECTS (ISO/IEC 7816-4, section 5.2.2):
//
// 1. Tag field (1 or more bytes):
//    - Bits 8-7: Class (00 universal, 01 application, 10 context-specific, 11 private).
//    - Bit 6:    0 = primitive (value is raw bytes), 1 = constructed (value is a list of data objects).
//    - Bits 5-1: Tag number. '11111' means the number continues in the following bytes,
//      7 bits per byte, bit 8 set on every byte except the last one.
//
// 2. Length field:
//    - '00' to '7F': the length itself (short form).
//    - '81' to '83': the low 7 bits count the following big-endian length bytes (long form).
//      '84' and up are rejected; no card data object comes near 16 MiB.
//
// 3. Value field: Length bytes.
//
// Cards pad templates with '00' or 'FF' bytes between data objects. Those bytes never
// start a valid tag here and are skipped before each tag.

var (
	// ErrMalformedTag is returned for a multi-byte tag whose first continuation byte is zero,
	// or a tag number longer than 4 bytes.
	ErrMalformedTag = errors.New("tlv: malformed tag")

	// ErrMalformedLength is returned for indefinite or oversized length fields.
	ErrMalformedLength = errors.New("tlv: malformed length")

	// ErrTruncated is returned when a tag, length or value runs past the end of its window.
	ErrTruncated = errors.New("tlv: truncated data object")
)

// TagClass is the class encoded in the two most significant bits of the first tag byte.
type TagClass byte

const (
	ClassUniversal       TagClass = 0
	ClassApplication     TagClass = 1
	ClassContextSpecific TagClass = 2
	ClassPrivate         TagClass = 3
)

func (c TagClass) String() string {
	switch c {
	case ClassUniversal:
		return "universal"
	case ClassApplication:
		return "application"
	case ClassContextSpecific:
		return "context-specific"
	case ClassPrivate:
		return "private"
	default:
		return fmt.Sprintf("TagClass(%d)", byte(c))
	}
}

// DataObject is one node of a decoded BER-TLV tree.
// Primitive nodes carry Value, constructed nodes carry Children; never both.
type DataObject struct {
	// Tag is the complete tag field read as a big-endian integer (e.g. 0xC4, 0x5F52, 0x7F66).
	Tag uint32
	// TagNumber is the tag number with class and constructed bits removed.
	TagNumber   uint32
	Class       TagClass
	Constructed bool

	Value    []byte
	Children []*DataObject

	// Synthetic is set on the root created to hold several top-level siblings.
	Synthetic bool
}

// Decode parses a complete buffer into a tree of data objects.
// A buffer holding exactly one top-level object returns that object. Any other count
// (including zero) is wrapped under a synthetic constructed root so callers always
// get a single entry point.
func Decode(buf []byte) (*DataObject, error) {
	var nodes []*DataObject

	off := skipPadding(buf, 0)
	for off < len(buf) {
		node, next, err := decodeAt(buf, off)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
		off = skipPadding(buf, next)
	}

	if len(nodes) == 1 {
		return nodes[0], nil
	}

	return &DataObject{Constructed: true, Children: nodes, Synthetic: true}, nil
}

// decodeAt decodes the data object starting at off. The window is the whole of buf:
// callers restrict it by re-slicing buf to the parent's value end.
// It returns the node and the offset right after its value.
func decodeAt(buf []byte, off int) (*DataObject, int, error) {
	if off >= len(buf) {
		return nil, off, fmt.Errorf("%w: tag at offset %d", ErrTruncated, off)
	}

	first := buf[off]
	pos := off + 1

	node := &DataObject{
		Class:       TagClass(bits.GetRange(first, 8, 7)),
		Constructed: bits.IsSet(first, 6),
		TagNumber:   uint32(bits.GetRange(first, 5, 1)),
	}

	if node.TagNumber == 0x1F {
		if pos >= len(buf) {
			return nil, off, fmt.Errorf("%w: tag number at offset %d", ErrTruncated, pos)
		}
		if buf[pos]&0x7F == 0 {
			return nil, off, fmt.Errorf("%w: first tag number byte is zero at offset %d", ErrMalformedTag, pos)
		}

		node.TagNumber = 0
		for {
			if pos >= len(buf) {
				return nil, off, fmt.Errorf("%w: tag number at offset %d", ErrTruncated, pos)
			}
			if pos-off >= 4 {
				return nil, off, fmt.Errorf("%w: tag longer than 4 bytes at offset %d", ErrMalformedTag, off)
			}
			b := buf[pos]
			pos++
			node.TagNumber = node.TagNumber<<7 | uint32(b&0x7F)
			if !bits.IsSet(b, 8) {
				break
			}
		}
	}

	for _, b := range buf[off:pos] {
		node.Tag = node.Tag<<8 | uint32(b)
	}

	length, pos, err := decodeLength(buf, pos)
	if err != nil {
		return nil, off, err
	}

	end := pos + length
	if end > len(buf) {
		return nil, off, fmt.Errorf("%w: tag %X declares %d bytes, %d left", ErrTruncated, node.Tag, length, len(buf)-pos)
	}

	if !node.Constructed {
		node.Value = buf[pos:end:end]
		return node, end, nil
	}

	window := buf[:end]
	child := skipPadding(window, pos)
	for child < end {
		c, next, err := decodeAt(window, child)
		if err != nil {
			return nil, off, err
		}
		node.Children = append(node.Children, c)
		child = skipPadding(window, next)
	}

	return node, end, nil
}

func decodeLength(buf []byte, pos int) (int, int, error) {
	if pos >= len(buf) {
		return 0, pos, fmt.Errorf("%w: length at offset %d", ErrTruncated, pos)
	}

	lb := buf[pos]
	pos++
	if !bits.IsSet(lb, 8) {
		return int(lb), pos, nil
	}

	n := int(lb & 0x7F)
	if n == 0 || n > 3 {
		return 0, pos, fmt.Errorf("%w: %d length bytes", ErrMalformedLength, n)
	}
	if pos+n > len(buf) {
		return 0, pos, fmt.Errorf("%w: length at offset %d", ErrTruncated, pos)
	}

	length := 0
	for _, b := range buf[pos : pos+n] {
		length = length<<8 | int(b)
	}
	return length, pos + n, nil
}

func skipPadding(buf []byte, off int) int {
	for off < len(buf) && (buf[off] == 0x00 || buf[off] == 0xFF) {
		off++
	}
	return off
}

// Lookup searches the tree depth-first in pre-order and returns the first node
// carrying tag. The synthetic root never matches.
func (d *DataObject) Lookup(tag uint32) (*DataObject, bool) {
	if d == nil {
		return nil, false
	}
	if !d.Synthetic && d.Tag == tag {
		return d, true
	}
	for _, c := range d.Children {
		if found, ok := c.Lookup(tag); ok {
			return found, true
		}
	}
	return nil, false
}

// LookupValue returns the value of the first primitive node carrying tag.
func (d *DataObject) LookupValue(tag uint32) ([]byte, bool) {
	node, ok := d.Lookup(tag)
	if !ok || node.Constructed {
		return nil, false
	}
	return node.Value, true
}

// String returns a one-line description such as "C4 (PW Status Bytes) private, 7 bytes".
func (d *DataObject) String() string {
	if d.Synthetic {
		return fmt.Sprintf("<root> %d objects", len(d.Children))
	}
	if d.Constructed {
		return fmt.Sprintf("%X (%s) %s, %d objects", d.Tag, TagName(d.Tag), d.Class, len(d.Children))
	}
	return fmt.Sprintf("%X (%s) %s, %d bytes", d.Tag, TagName(d.Tag), d.Class, len(d.Value))
}
