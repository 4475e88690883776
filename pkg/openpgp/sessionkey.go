package openpgp

import (
	"fmt"
)

// SessionKey is a decrypted OpenPGP session key (RFC 4880, section 5.1):
// one symmetric algorithm octet, the key, then a two-octet checksum.
type SessionKey struct {
	Algorithm byte
	Key       []byte
}

var symmetricAlgorithms = map[byte]string{
	1:  "IDEA",
	2:  "TripleDES",
	3:  "CAST5",
	4:  "Blowfish",
	7:  "AES128",
	8:  "AES192",
	9:  "AES256",
	10: "Twofish",
	11: "Camellia128",
	12: "Camellia192",
	13: "Camellia256",
}

// AlgorithmName returns the symmetric algorithm name.
func (k *SessionKey) AlgorithmName() string {
	if name, ok := symmetricAlgorithms[k.Algorithm]; ok {
		return name
	}
	return fmt.Sprintf("algorithm %d", k.Algorithm)
}

// ParseSessionKey splits decrypted card output and checks the key checksum
// (sum of the key octets modulo 65536).
func ParseSessionKey(decrypted []byte) (*SessionKey, error) {
	if len(decrypted) < 4 {
		return nil, fmt.Errorf("%w: session key has %d bytes", ErrMalformedData, len(decrypted))
	}

	n := len(decrypted)
	key := decrypted[1 : n-2]
	want := uint16(decrypted[n-2])<<8 | uint16(decrypted[n-1])

	var sum uint16
	for _, b := range key {
		sum += uint16(b)
	}
	if sum != want {
		return nil, fmt.Errorf("%w: got %04X, want %04X", ErrChecksumMismatch, sum, want)
	}

	return &SessionKey{Algorithm: decrypted[0], Key: append([]byte(nil), key...)}, nil
}
