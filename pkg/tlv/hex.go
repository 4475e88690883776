package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex constructs a byte slice from a series of hex strings.
// Whitespace is ignored so fixtures can be laid out like "6E 0A" "C4 07 ...".
// It panics on invalid input and is meant for tests and constant tables.
func Hex(parts ...string) []byte {
	clean := strings.Join(strings.Fields(strings.Join(parts, " ")), "")

	data, err := hex.DecodeString(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid input '%s': %v", clean, err))
	}
	return data
}
