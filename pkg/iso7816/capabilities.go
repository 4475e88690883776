package iso7816

import (
	"errors"
	"fmt"

	"github.com/gregLibert/openpgp-card/pkg/bits"
)

// HISTORICAL BYTES (ISO/IEC 7816-4, section 8.1.1):
//
// The historical bytes returned in the ATR (and by OpenPGP cards in DO '5F52') are laid out as:
//   - Byte 0: Category indicator. '00' means COMPACT-TLV objects followed by a 3-byte status indicator.
//   - Middle: COMPACT-TLV records. One header byte holds the tag (high nibble) and the
//     length (low nibble), followed by length bytes of value.
//   - Last 3 bytes: Status indicator (LCS + SW1 SW2).
//
// The "card capabilities" record has tag '7' (header '73') and 3 value bytes.
// The third byte carries:
//   - Bit 8: Command chaining.
//   - Bit 7: Extended Lc and Le fields.

// ErrCapabilitiesNotFound is returned when the historical bytes hold no card capabilities record.
var ErrCapabilitiesNotFound = errors.New("iso7816: card capabilities record not found")

const (
	compactTagCapabilities = 0x7
	historicalStatusLen    = 3
)

// Capabilities describes the APDU framing a card accepts.
// The zero value (no chaining, no extended length) is always safe to send.
type Capabilities struct {
	SupportsChaining       bool
	SupportsExtendedLength bool
}

func (c Capabilities) String() string {
	return fmt.Sprintf("chaining=%t extended-length=%t", c.SupportsChaining, c.SupportsExtendedLength)
}

// NegotiateCapabilities scans the COMPACT-TLV records of the historical bytes for the
// card capabilities record. When it is missing, the zero Capabilities is returned along
// with ErrCapabilitiesNotFound so the caller decides whether that is fatal.
func NegotiateCapabilities(historical []byte) (Capabilities, error) {
	if len(historical) <= 1+historicalStatusLen {
		return Capabilities{}, fmt.Errorf("%w: %d historical bytes", ErrCapabilitiesNotFound, len(historical))
	}

	records := historical[1 : len(historical)-historicalStatusLen]

	for pos := 0; pos < len(records); {
		header := records[pos]
		tag := bits.HighNibble(header)
		length := int(bits.LowNibble(header))
		pos++

		if pos+length > len(records) {
			break
		}
		value := records[pos : pos+length]
		pos += length

		if tag != compactTagCapabilities || length < 3 {
			continue
		}

		return Capabilities{
			SupportsChaining:       bits.IsSet(value[2], 8),
			SupportsExtendedLength: bits.IsSet(value[2], 7),
		}, nil
	}

	return Capabilities{}, ErrCapabilitiesNotFound
}
