package openpgp

import (
	"context"
	"fmt"
	"log/slog"
)

// Decrypter performs PSO:DECIPHER of an encrypted session key on the matching card.
type Decrypter struct {
	session *Session
	locator *Locator
	pin     *PINVerifier
	logger  *slog.Logger
}

// NewDecrypter wires a Locator and a PINVerifier around session.
func NewDecrypter(session *Session, cache PINCache, prompter PINPrompter, maxPINAttempts int, logger *slog.Logger) *Decrypter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decrypter{
		session: session,
		locator: NewLocator(session, logger),
		pin:     NewPINVerifier(session, cache, prompter, maxPINAttempts, logger),
		logger:  logger,
	}
}

// DecipherSessionKey decrypts esk, the encrypted session key MPI (2-byte bit count followed
// by the key material), with the card holding keyID.
//
// The session is always disconnected and its context released before returning,
// whatever the outcome.
func (d *Decrypter) DecipherSessionKey(ctx context.Context, esk []byte, keyID KeyID) (_ []byte, err error) {
	if len(esk) <= 2 {
		return nil, fmt.Errorf("%w: %w: encrypted session key has %d bytes", ErrDecryptionFailed, ErrMalformedData, len(esk))
	}

	if err := d.session.EstablishContext(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if cerr := d.session.Close(); cerr != nil {
			d.logger.Warn("session cleanup failed", "err", cerr)
		}
	}()

	reader, err := d.locator.FindReaderForKey(ctx, keyID)
	if err != nil {
		return nil, err
	}

	if err := d.pin.Verify(ctx, keyID); err != nil {
		return nil, fmt.Errorf("verify PIN on %s: %w", ShortReaderName(reader), err)
	}

	// Padding indicator byte '00' replaces the MPI length prefix.
	data := make([]byte, 0, len(esk)-1)
	data = append(data, 0x00)
	data = append(data, esk[2:]...)

	out, err := d.session.Transmit(decipherCommand(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}

	d.logger.Debug("session key deciphered", "reader", reader, "key", keyID.Short())
	return out, nil
}
