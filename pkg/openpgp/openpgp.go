// Package openpgp drives the OpenPGP card application (ISO/IEC 7816-4 applet, AID D2 76 00 01 24 01)
// to decrypt a session key on the card.
//
// The pieces build on each other:
//   - Session owns the PC/SC context and card handle and walks the lifecycle
//     Disconnected → ContextEstablished → Connected → AppletSelected.
//   - Locator probes readers one after the other and keeps the session connected to
//     the card whose decryption key matches a key ID.
//   - PINVerifier runs VERIFY for PW1 (P2 '82'), consulting a PIN cache and the card's
//     retry counter so a cached PIN can never be the one that blocks the card.
//   - Decrypter chains the three and sends PSO:DECIPHER, always cleaning up the session.
package openpgp

import (
	"errors"

	"github.com/gregLibert/openpgp-card/pkg/iso7816"
)

// AID is the registered application identifier prefix of the OpenPGP card application.
var AID = []byte{0xD2, 0x76, 0x00, 0x01, 0x24, 0x01}

var (
	// ErrNoContext is returned by operations that need an established transport context.
	ErrNoContext = errors.New("openpgp: transport context not established")

	// ErrNotConnected is returned by operations that need a connected card.
	ErrNotConnected = errors.New("openpgp: not connected to a card")

	// ErrConnectorUnavailable is returned when the PC/SC connector does not come up in time.
	ErrConnectorUnavailable = errors.New("openpgp: smart card connector unavailable")

	// ErrNoMatchingReader is returned when no reader holds a card with the requested key.
	ErrNoMatchingReader = errors.New("openpgp: no reader found for key")

	// ErrDeviceBlocked is returned when PW1 has no tries left.
	ErrDeviceBlocked = errors.New("openpgp: device is blocked")

	// ErrDecryptionFailed is returned when the card refuses or fails PSO:DECIPHER.
	ErrDecryptionFailed = errors.New("openpgp: decryption failed")

	// ErrPINEntryCancelled is returned by prompters when the user abandons PIN entry.
	ErrPINEntryCancelled = errors.New("openpgp: PIN entry cancelled")

	// ErrTooManyPINAttempts is returned when the verification loop reaches its bound.
	ErrTooManyPINAttempts = errors.New("openpgp: too many PIN attempts")

	// ErrChecksumMismatch is returned when a decrypted session key fails its checksum.
	ErrChecksumMismatch = errors.New("openpgp: session key checksum mismatch")

	// ErrMalformedData is returned for card data objects or inputs with an unexpected layout.
	ErrMalformedData = errors.New("openpgp: malformed data")
)

// Data object tags read with GET DATA.
const (
	tagHistoricalBytes        uint16 = 0x5F52
	tagApplicationRelatedData uint16 = 0x006E
)

var cla = iso7816.MustClass(0x00)

func selectAppletCommand() *iso7816.CommandAPDU {
	return iso7816.SelectByAID(cla, AID)
}

func getDataCommand(tag uint16) *iso7816.CommandAPDU {
	return iso7816.GetData(cla, tag)
}

// verifyPW1Command verifies PW1 for PSO:DECIPHER (P2 '82'). Go strings are UTF-8 already.
func verifyPW1Command(pin string) *iso7816.CommandAPDU {
	return iso7816.NewCommandAPDU(cla, iso7816.MustInstruction(iso7816.INS_VERIFY), 0x00, 0x82, []byte(pin), 0)
}

// decipherCommand is PSO:DECIPHER (P1-P2 '80 86'). data starts with the padding indicator.
func decipherCommand(data []byte) *iso7816.CommandAPDU {
	return iso7816.NewCommandAPDU(cla, iso7816.MustInstruction(iso7816.INS_PERFORM_SECURITY_OPERATION),
		0x80, 0x86, data, iso7816.MaxExtendedLe)
}
