package openpgp

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/openpgp-card/pkg/iso7816"
	"github.com/gregLibert/openpgp-card/pkg/tlv"
)

// APPLICATION RELATED DATA (DO '6E'):
//
//	6E
//	├── 4F    Application identifier (full AID, with version and serial number)
//	├── 5F52  Historical bytes
//	├── 7F66  Extended length information
//	└── 73    Discretionary data objects
//	    ├── C0..C3  Extended capabilities, algorithm attributes
//	    ├── C4      PW status bytes. Byte 4 is the PW1 retry counter.
//	    ├── C5      Fingerprints: signature (0..20), decryption (20..40), authentication (40..60)
//	    ├── C6      CA fingerprints
//	    └── CD      Key generation timestamps
//
// The key ID of an OpenPGP v4 key is the last 8 bytes of its fingerprint, so bytes
// 32..40 of C5 identify the decryption key.

const (
	keyIDOffset          = 32
	keyIDLen             = 8
	pwStatusTriesOffset  = 4
	decryptionFprOffset  = 20
	fingerprintLen       = 20
	shortKeyIDLen        = 4
	pwStatusMinimumBytes = pwStatusTriesOffset + 1
)

// KeyID is an 8-byte OpenPGP key ID.
type KeyID [keyIDLen]byte

// ParseKeyID reads a key ID from hex. Spaces and a leading "0x" are accepted.
func ParseKeyID(s string) (KeyID, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.ReplaceAll(s, " ", ""), "0x"), "0X")

	var id KeyID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: key ID %q: %w", ErrMalformedData, s, err)
	}
	if len(raw) != keyIDLen {
		return id, fmt.Errorf("%w: key ID must be %d bytes, got %d", ErrMalformedData, keyIDLen, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the key ID as uppercase hex.
func (k KeyID) String() string {
	return strings.ToUpper(hex.EncodeToString(k[:]))
}

// Short returns the last 4 bytes as uppercase hex. It keys the PIN cache and user messages.
func (k KeyID) Short() string {
	return strings.ToUpper(hex.EncodeToString(k[keyIDLen-shortKeyIDLen:]))
}

// ApplicationData is the decoded Application Related Data of a card.
type ApplicationData struct {
	Root *tlv.DataObject
	Raw  []byte
}

// ParseApplicationData decodes the response to GET DATA '6E'.
func ParseApplicationData(raw []byte) (*ApplicationData, error) {
	root, err := tlv.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode application related data: %w", err)
	}
	return &ApplicationData{Root: root, Raw: raw}, nil
}

// ReadApplicationData fetches and decodes the Application Related Data of the selected applet.
func (s *Session) ReadApplicationData() (*ApplicationData, error) {
	raw, err := s.Transmit(getDataCommand(tagApplicationRelatedData))
	if err != nil {
		return nil, fmt.Errorf("get application related data: %w", err)
	}
	return ParseApplicationData(raw)
}

// KeyID returns the decryption key ID: bytes 32..40 of the Fingerprints data object.
func (a *ApplicationData) KeyID() (KeyID, error) {
	var id KeyID

	fpr, ok := a.Root.LookupValue(tlv.TagFingerprints)
	if !ok {
		return id, fmt.Errorf("%w: no fingerprints (C5)", ErrMalformedData)
	}
	if len(fpr) < keyIDOffset+keyIDLen {
		return id, fmt.Errorf("%w: fingerprints (C5) has %d bytes", ErrMalformedData, len(fpr))
	}

	copy(id[:], fpr[keyIDOffset:keyIDOffset+keyIDLen])
	return id, nil
}

// DecryptionFingerprint returns the 20-byte fingerprint of the decryption key.
func (a *ApplicationData) DecryptionFingerprint() ([]byte, error) {
	fpr, ok := a.Root.LookupValue(tlv.TagFingerprints)
	if !ok || len(fpr) < decryptionFprOffset+fingerprintLen {
		return nil, fmt.Errorf("%w: no decryption fingerprint", ErrMalformedData)
	}
	return fpr[decryptionFprOffset : decryptionFprOffset+fingerprintLen], nil
}

// PINTriesRemaining returns the PW1 retry counter (PW status bytes, byte 4).
func (a *ApplicationData) PINTriesRemaining() (int, error) {
	status, ok := a.Root.LookupValue(tlv.TagPWStatusBytes)
	if !ok {
		return 0, fmt.Errorf("%w: no PW status bytes (C4)", ErrMalformedData)
	}
	if len(status) < pwStatusMinimumBytes {
		return 0, fmt.Errorf("%w: PW status bytes (C4) has %d bytes", ErrMalformedData, len(status))
	}
	return int(status[pwStatusTriesOffset]), nil
}

// ApplicationRelatedData maps DO '6E' for reports.
type ApplicationRelatedData struct {
	AID                []byte            `tlv:"4F"`
	HistoricalBytes    []byte            `tlv:"5F52"`
	ExtendedLengthInfo []byte            `tlv:"7F66"`
	Discretionary      DiscretionaryData `tlv:"73"`
	Unknown            []bertlv.TLV      `tlv:",unknown"`
}

// DiscretionaryData maps DO '73'.
type DiscretionaryData struct {
	ExtendedCapabilities []byte       `tlv:"C0"`
	AlgorithmSignature   []byte       `tlv:"C1"`
	AlgorithmDecryption  []byte       `tlv:"C2"`
	AlgorithmAuth        []byte       `tlv:"C3"`
	PWStatus             []byte       `tlv:"C4"`
	Fingerprints         []byte       `tlv:"C5" fmt:"fpr20"`
	CAFingerprints       []byte       `tlv:"C6" fmt:"fpr20"`
	GenerationTimestamps []byte       `tlv:"CD"`
	Unknown              []bertlv.TLV `tlv:",unknown"`
}

// Report renders the Application Related Data, the negotiated capabilities and the key ID.
func (a *ApplicationData) Report(caps iso7816.Capabilities) (string, error) {
	var ard ApplicationRelatedData
	if err := tlv.UnmarshalTemplate(a.Raw, "6E", &ard); err != nil {
		return "", fmt.Errorf("map application related data: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("=== OPENPGP CARD REPORT ===")
	tlv.WriteStructFields(&sb, "ARD", &ard)
	tlv.WriteStructFields(&sb, "ARD.73", &ard.Discretionary)

	sb.WriteString(fmt.Sprintf("\n[=] Capabilities: %s", caps))
	if tries, err := a.PINTriesRemaining(); err == nil {
		sb.WriteString(fmt.Sprintf("\n[=] PW1 tries remaining: %d", tries))
	}
	if id, err := a.KeyID(); err == nil {
		sb.WriteString(fmt.Sprintf("\n[=] Decryption key ID: %s", id))
	}
	sb.WriteString("\n")

	return sb.String(), nil
}
