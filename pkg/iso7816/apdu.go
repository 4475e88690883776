package iso7816

import (
	"bytes"
	"errors"
	"fmt"
)

// APDU (Application Protocol Data Unit) structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU (C-APDU):
// A command consists of a mandatory Header (4 bytes) and an optional Body.
//
// 1. Header:
//   - CLA (Class): Security, Chaining, Logical Channel.
//   - INS (Instruction): The specific command to execute.
//   - P1, P2 (Parameters): Command modifiers.
//
// 2. Body:
//   - Lc (Length Command): Number of bytes in the data field.
//   - Data: The command payload.
//   - Le (Length Expected): Maximum number of bytes expected in the response.
//
// LENGTH MODES:
//   - Short Length: Lc/Le encoded on 1 byte (Max 255/256).
//   - Extended Length: Lc encoded as 00 + 2 bytes, Le as 2 bytes (or 00 + 2 bytes without Lc).
//
// A logical CommandAPDU is never sent as is. Encode turns it into one or more physical
// frames according to what the card announced in its historical bytes:
//
//   - No data: a single frame, Le present only when a response is expected
//     (3 bytes in extended mode, 1 byte otherwise).
//   - Extended length supported: a single frame with extended Lc and Le.
//   - Data fits in 255 bytes, or chaining supported: chunks of at most 255 bytes.
//     Every chunk but the last has the chaining bit (bit 5) of CLA set and no Le.
//     The last chunk carries the original CLA and the short Le.
//   - Otherwise the command cannot be sent to this card.
//
// RESPONSE APDU (R-APDU):
// An optional Body (response data) followed by the mandatory SW1-SW2 trailer.

// APDU Limits and Constants according to ISO 7816-3.
const (
	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode (1 byte).
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) encodable in Short Length mode.
	// In Short mode, 0x00 encodes 256.
	MaxShortLe = 256

	// MaxExtendedLc is the limit for Lc in Extended mode (16-bit unsigned).
	MaxExtendedLc = 65535

	// MaxExtendedLe is the maximum Ne encodable in Extended Length mode.
	// In Extended mode, 0x0000 encodes 65536.
	MaxExtendedLe = 65536
)

// ErrUnsupportedPayloadSize is returned when a payload cannot be framed for the card:
// more than 255 bytes without chaining or extended length, or more than 65535 bytes.
var ErrUnsupportedPayloadSize = errors.New("iso7816: unsupported payload size")

// CommandAPDU represents a logical command sent to the card.
// It is never modified by encoding or transmission.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	// Ne is the expected response length. 0 means no response data is expected.
	// Values at or above the mode maximum are encoded as "as much as possible" (00 / 00 00).
	Ne int
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// ExpectResponse reports whether the command carries an Le field.
func (c *CommandAPDU) ExpectResponse() bool {
	return c.Ne > 0
}

// Encode derives the physical frames for the card capabilities, in transmission order.
func (c *CommandAPDU) Encode(caps Capabilities) ([][]byte, error) {
	nc := len(c.Data)

	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrUnsupportedPayloadSize, nc, MaxExtendedLc)
	}

	switch {
	case nc == 0, caps.SupportsExtendedLength:
		frame, err := c.frame(c.Data, c.Ne, false, caps.SupportsExtendedLength)
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil

	case nc <= MaxShortLc || caps.SupportsChaining:
		var frames [][]byte
		for off := 0; off < nc; off += MaxShortLc {
			end := min(off+MaxShortLc, nc)
			last := end == nc

			ne := 0
			if last {
				ne = c.Ne
			}

			frame, err := c.frame(c.Data[off:end], ne, !last, false)
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)
		}
		return frames, nil

	default:
		return nil, fmt.Errorf("%w: %d bytes without chaining or extended length", ErrUnsupportedPayloadSize, nc)
	}
}

// frame writes one physical APDU.
func (c *CommandAPDU) frame(data []byte, ne int, chained, extended bool) ([]byte, error) {
	buf := new(bytes.Buffer)

	class, err := c.Class.Byte(chained)
	if err != nil {
		return nil, err
	}

	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	nc := len(data)
	if nc > 0 {
		if extended {
			buf.WriteByte(0x00)
			buf.WriteByte(byte(nc >> 8))
			buf.WriteByte(byte(nc))
		} else {
			buf.WriteByte(byte(nc))
		}
		buf.Write(data)
	}

	if ne > 0 {
		if extended {
			// Without Lc, a leading 00 distinguishes the extended Le from a short one.
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			if ne >= MaxExtendedLe {
				buf.Write([]byte{0x00, 0x00})
			} else {
				buf.WriteByte(byte(ne >> 8))
				buf.WriteByte(byte(ne))
			}
		} else if ne >= MaxShortLe {
			buf.WriteByte(0x00)
		} else {
			buf.WriteByte(byte(ne))
		}
	}

	return buf.Bytes(), nil
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU parses raw bytes received from the card into a ResponseAPDU.
// The input must contain at least 2 bytes (SW1, SW2).
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	indexSW1 := len(raw) - 2

	return &ResponseAPDU{
		Data:   raw[:indexSW1:indexSW1],
		Status: NewStatusWord(raw[indexSW1], raw[indexSW1+1]),
	}, nil
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
