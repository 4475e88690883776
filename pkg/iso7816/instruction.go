package iso7816

import (
	"fmt"

	"github.com/gregLibert/openpgp-card/pkg/bits"
)

// Instruction Byte (INS) Logic according to ISO/IEC 7816-4.
//
// The INS byte identifies the command to be performed by the card.
//
// 1. Data Encoding (Bit 1):
//    When using the interindustry class, the least significant bit (Bit 1) often indicates
//    the format of the data field.
//    - 0: Standard or no specific formatting.
//    - 1: BER-TLV encoded data structure.
//    Example: PUT DATA (0xDA) vs PUT DATA (BER-TLV) (0xDB).
//
// 2. Reserved Ranges:
//    INS values where the upper nibble is '6' or '9' (0x6X or 0x9X) are invalid.
//    These values are reserved for Status Words (SW1) or transport layer control
//    procedures (ISO/IEC 7816-3).

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Instruction codes used by the OpenPGP card application (ISO/IEC 7816-4 values).
const (
	INS_VERIFY                       InsCode = 0x20
	INS_MANAGE_SECURITY_ENVIRONMENT  InsCode = 0x22
	INS_CHANGE_REFERENCE_DATA        InsCode = 0x24
	INS_PERFORM_SECURITY_OPERATION   InsCode = 0x2A
	INS_RESET_RETRY_COUNTER          InsCode = 0x2C
	INS_ACTIVATE_FILE                InsCode = 0x44
	INS_GENERATE_ASYMMETRIC_KEY_PAIR InsCode = 0x47
	INS_GET_CHALLENGE                InsCode = 0x84
	INS_INTERNAL_AUTHENTICATE        InsCode = 0x88
	INS_SELECT                       InsCode = 0xA4
	INS_GET_RESPONSE                 InsCode = 0xC0
	INS_GET_DATA                     InsCode = 0xCA
	INS_GET_NEXT_DATA                InsCode = 0xCC
	INS_PUT_DATA                     InsCode = 0xDA
	INS_PUT_DATA_BER                 InsCode = 0xDB
	INS_TERMINATE_DF                 InsCode = 0xE6
)

var insNames = map[InsCode]string{
	INS_VERIFY:                       "INS_VERIFY",
	INS_MANAGE_SECURITY_ENVIRONMENT:  "INS_MANAGE_SECURITY_ENVIRONMENT",
	INS_CHANGE_REFERENCE_DATA:        "INS_CHANGE_REFERENCE_DATA",
	INS_PERFORM_SECURITY_OPERATION:   "INS_PERFORM_SECURITY_OPERATION",
	INS_RESET_RETRY_COUNTER:          "INS_RESET_RETRY_COUNTER",
	INS_ACTIVATE_FILE:                "INS_ACTIVATE_FILE",
	INS_GENERATE_ASYMMETRIC_KEY_PAIR: "INS_GENERATE_ASYMMETRIC_KEY_PAIR",
	INS_GET_CHALLENGE:                "INS_GET_CHALLENGE",
	INS_INTERNAL_AUTHENTICATE:        "INS_INTERNAL_AUTHENTICATE",
	INS_SELECT:                       "INS_SELECT",
	INS_GET_RESPONSE:                 "INS_GET_RESPONSE",
	INS_GET_DATA:                     "INS_GET_DATA",
	INS_GET_NEXT_DATA:                "INS_GET_NEXT_DATA",
	INS_PUT_DATA:                     "INS_PUT_DATA",
	INS_PUT_DATA_BER:                 "INS_PUT_DATA_BER",
	INS_TERMINATE_DF:                 "INS_TERMINATE_DF",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(%02X)", byte(i))
}

// Instruction represents the parsed ISO 7816-4 Instruction byte (INS).
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction creates an Instruction object with validation.
// It rejects '6X' and '9X' values as they are invalid according to ISO 7816-3.
func NewInstruction(ins InsCode) (Instruction, error) {
	highNibble := bits.HighNibble(byte(ins))
	if highNibble == 0x6 || highNibble == 0x9 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1), // Bit 1 indicates BER-TLV preference
	}, nil
}

// MustInstruction is NewInstruction for the constants above; it panics on reserved values.
func MustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw.String(), format)
}
