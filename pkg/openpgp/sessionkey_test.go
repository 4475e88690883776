package openpgp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/openpgp-card/pkg/tlv"
)

func TestParseSessionKey(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantAlgo string
		wantKey  []byte
		wantErr  error
	}{
		{
			name:     "AES256",
			input:    tlv.Hex("09", "0102030405060708", "00 24"),
			wantAlgo: "AES256",
			wantKey:  tlv.Hex("0102030405060708"),
		},
		{
			name:     "checksum wraps at 65536",
			input:    append(append([]byte{0x07}, bytesOf(0xFF, 258)...), tlv.Hex("00 FE")...),
			wantAlgo: "AES128",
			wantKey:  bytesOf(0xFF, 258),
		},
		{
			name:     "unknown algorithm",
			input:    tlv.Hex("64", "01", "00 01"),
			wantAlgo: "algorithm 100",
			wantKey:  tlv.Hex("01"),
		},
		{name: "bad checksum", input: tlv.Hex("09", "0102030405060708", "00 25"), wantErr: ErrChecksumMismatch},
		{name: "too short", input: tlv.Hex("09 00 00"), wantErr: ErrMalformedData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSessionKey(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAlgo, got.AlgorithmName())
			assert.Equal(t, tt.wantKey, got.Key)
		})
	}
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
