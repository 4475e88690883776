package iso7816

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/openpgp-card/pkg/bits"
)

// CLA BYTE (ISO/IEC 7816-4, section 5.4.1):
//
//	b8 b7 b6 b5 b4 b3 b2 b1
//	 0  0  x  C  S  S  L  L   first interindustry: SM on b4-b3, logical channel 0..3
//	 0  1  S  C  L  L  L  L   further interindustry: SM on b6, logical channel 4 + LLLL
//	 1  .  .  .  .  .  .  .   proprietary
//
// C (b5) is the command chaining bit. The APDU encoder sets it on every frame of a chained
// command but the last, so the Class carried by a CommandAPDU normally has it clear.
// 'FF' is reserved for PPS and never a valid class.

// ErrProprietaryChaining is returned when a chained frame is requested for a proprietary class.
var ErrProprietaryChaining = errors.New("iso7816: proprietary class has no chaining bit")

// SecureMessaging is the SM indication of an interindustry class.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0
	SMProprietary  SecureMessaging = 1 // first interindustry only
	SMHeaderNoProc SecureMessaging = 2
	SMHeaderAuth   SecureMessaging = 3 // first interindustry only
)

func (sm SecureMessaging) String() string {
	switch sm {
	case SMNone:
		return "no SM"
	case SMProprietary:
		return "proprietary SM"
	case SMHeaderNoProc:
		return "ISO SM"
	case SMHeaderAuth:
		return "ISO SM, authenticated header"
	default:
		return fmt.Sprintf("SecureMessaging(%d)", int(sm))
	}
}

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// NewClass decodes cla.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA 0xFF: reserved for PPS")
	}

	c := Class{Raw: cla, IsProprietary: bits.IsSet(cla, 8)}
	if c.IsProprietary {
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)
	switch {
	case !bits.IsSet(cla, 7):
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	case bits.IsSet(cla, 6):
		c.SecureMessaging = SMHeaderNoProc
		c.Channel = 4 + bits.LowNibble(cla)
	default:
		c.Channel = 4 + bits.LowNibble(cla)
	}
	return c, nil
}

// MustClass is NewClass for constant CLA values; it panics on 0xFF.
func MustClass(cla byte) Class {
	c, err := NewClass(cla)
	if err != nil {
		panic(err)
	}
	return c
}

// Byte returns the CLA byte of one frame, with the chaining bit set or cleared.
// A proprietary class is sent unchanged and cannot be chained.
func (c Class) Byte(chained bool) (byte, error) {
	if c.IsProprietary {
		if chained {
			return 0, fmt.Errorf("%w: CLA %02X", ErrProprietaryChaining, c.Raw)
		}
		return c.Raw, nil
	}
	if chained {
		return bits.Set(c.Raw, 5), nil
	}
	return bits.Clear(c.Raw, 5), nil
}

// String returns a short description such as "CLA 10 (channel 0, no SM, chained)".
func (c Class) String() string {
	if c.IsProprietary {
		return fmt.Sprintf("CLA %02X (proprietary)", c.Raw)
	}

	parts := []string{fmt.Sprintf("channel %d", c.Channel), c.SecureMessaging.String()}
	if c.IsChained {
		parts = append(parts, "chained")
	}
	return fmt.Sprintf("CLA %02X (%s)", c.Raw, strings.Join(parts, ", "))
}
