package openpgp

import (
	"testing"

	"github.com/moov-io/bertlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/openpgp-card/pkg/iso7816"
)

func TestParseKeyID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    KeyID
		wantErr bool
	}{
		{name: "plain", input: "11223344DEADBEEF", want: testKeyID},
		{name: "lowercase with prefix", input: "0x11223344deadbeef", want: testKeyID},
		{name: "spaced", input: "1122 3344 DEAD BEEF", want: testKeyID},
		{name: "short key ID", input: "DEADBEEF", wantErr: true},
		{name: "not hex", input: "11223344DEADBEEG", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKeyID(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedData)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyID_Strings(t *testing.T) {
	assert.Equal(t, "11223344DEADBEEF", testKeyID.String())
	assert.Equal(t, "DEADBEEF", testKeyID.Short())
}

func TestApplicationData(t *testing.T) {
	card := newSimCard(testKeyID, "123456")
	card.tries = 2

	ard, err := ParseApplicationData(card.applicationRelatedData())
	require.NoError(t, err)

	id, err := ard.KeyID()
	require.NoError(t, err)
	assert.Equal(t, testKeyID, id)

	fpr, err := ard.DecryptionFingerprint()
	require.NoError(t, err)
	assert.Equal(t, card.fingerprints[20:40], fpr)

	tries, err := ard.PINTriesRemaining()
	require.NoError(t, err)
	assert.Equal(t, 2, tries)
}

func TestApplicationData_Malformed(t *testing.T) {
	encode := func(children ...bertlv.TLV) []byte {
		raw, err := bertlv.Encode([]bertlv.TLV{{Tag: "6E", TLVs: []bertlv.TLV{{Tag: "73", TLVs: children}}}})
		require.NoError(t, err)
		return raw
	}

	t.Run("no fingerprints", func(t *testing.T) {
		ard, err := ParseApplicationData(encode(bertlv.TLV{Tag: "C4", Value: []byte{0, 0x7F, 0x7F, 0x7F, 3, 0, 3}}))
		require.NoError(t, err)

		_, err = ard.KeyID()
		assert.ErrorIs(t, err, ErrMalformedData)
		_, err = ard.DecryptionFingerprint()
		assert.ErrorIs(t, err, ErrMalformedData)
	})

	t.Run("truncated fingerprints", func(t *testing.T) {
		ard, err := ParseApplicationData(encode(bertlv.TLV{Tag: "C5", Value: make([]byte, 39)}))
		require.NoError(t, err)

		_, err = ard.KeyID()
		assert.ErrorIs(t, err, ErrMalformedData)
	})

	t.Run("short PW status", func(t *testing.T) {
		ard, err := ParseApplicationData(encode(bertlv.TLV{Tag: "C4", Value: []byte{0, 0x7F, 0x7F, 0x7F}}))
		require.NoError(t, err)

		_, err = ard.PINTriesRemaining()
		assert.ErrorIs(t, err, ErrMalformedData)
	})

	t.Run("no PW status", func(t *testing.T) {
		ard, err := ParseApplicationData(encode(bertlv.TLV{Tag: "C5", Value: make([]byte, 60)}))
		require.NoError(t, err)

		_, err = ard.PINTriesRemaining()
		assert.ErrorIs(t, err, ErrMalformedData)
	})

	t.Run("not BER-TLV", func(t *testing.T) {
		_, err := ParseApplicationData([]byte{0x6E, 0x05, 0x73})
		assert.Error(t, err)
	})
}

func TestApplicationData_Report(t *testing.T) {
	card := newSimCard(testKeyID, "123456")

	ard, err := ParseApplicationData(card.applicationRelatedData())
	require.NoError(t, err)

	report, err := ard.Report(iso7816.Capabilities{SupportsChaining: true})
	require.NoError(t, err)

	assert.Contains(t, report, "=== OPENPGP CARD REPORT ===")
	assert.Contains(t, report, "[=] Capabilities: chaining=true extended-length=false")
	assert.Contains(t, report, "[=] PW1 tries remaining: 3")
	assert.Contains(t, report, "[=] Decryption key ID: 11223344DEADBEEF")
}
