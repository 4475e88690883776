package openpgp

import (
	"context"
	"fmt"
	"log/slog"
)

// Locator finds the reader holding the card for a given key.
// Readers are probed strictly one after the other: the session holds a single exclusive connection.
type Locator struct {
	session *Session
	logger  *slog.Logger
}

// NewLocator creates a Locator working on session. A nil logger means slog.Default().
func NewLocator(session *Session, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{session: session, logger: logger}
}

// FindReaderForKey connects to each reader in turn and returns the first one whose card
// decryption key ID equals keyID. The session stays connected to that reader.
// When none matches, ErrNoMatchingReader is returned and the session is disconnected.
// Failures on individual readers are logged and skipped.
func (l *Locator) FindReaderForKey(ctx context.Context, keyID KeyID) (string, error) {
	readers, err := l.readers()
	if err != nil {
		return "", err
	}

	for _, reader := range readers {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id, err := l.probe(reader)
		if err != nil {
			l.logger.Warn("skipping reader", "reader", reader, "err", err)
			continue
		}

		if id == keyID {
			l.logger.Info("found card for key", "reader", reader, "key", keyID.Short())
			return reader, nil
		}

		l.logger.Debug("key mismatch", "reader", reader, "card_key", id.String(), "key", keyID.String())
		l.disconnect(reader)
	}

	return "", fmt.Errorf("%w %s", ErrNoMatchingReader, keyID.Short())
}

// ReaderReport is the outcome of probing one reader.
type ReaderReport struct {
	Reader string
	KeyID  KeyID
	Err    error
}

// Scan probes every reader and reports its decryption key ID or the reason it was skipped.
// The session is left disconnected.
func (l *Locator) Scan(ctx context.Context) ([]ReaderReport, error) {
	readers, err := l.readers()
	if err != nil {
		return nil, err
	}

	reports := make([]ReaderReport, 0, len(readers))
	for _, reader := range readers {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		id, err := l.probe(reader)
		reports = append(reports, ReaderReport{Reader: reader, KeyID: id, Err: err})
		if err == nil {
			l.disconnect(reader)
		}
	}
	return reports, nil
}

func (l *Locator) readers() ([]string, error) {
	// Each probe needs its own connection.
	if err := l.session.Disconnect(); err != nil {
		l.logger.Warn("failed to disconnect before scan", "reader", l.session.Reader(), "err", err)
	}

	readers, err := l.session.ListReaders()
	if err != nil {
		return nil, err
	}
	l.logger.Debug("listed readers", "count", len(readers))
	return readers, nil
}

// probe connects, selects the applet and reads the key ID. On failure after connecting
// the reader is disconnected again.
func (l *Locator) probe(reader string) (KeyID, error) {
	if err := l.session.Connect(reader); err != nil {
		return KeyID{}, err
	}

	id, err := l.readKeyID()
	if err != nil {
		l.disconnect(reader)
		return KeyID{}, err
	}
	return id, nil
}

func (l *Locator) readKeyID() (KeyID, error) {
	if err := l.session.SelectApplet(); err != nil {
		return KeyID{}, err
	}

	ard, err := l.session.ReadApplicationData()
	if err != nil {
		return KeyID{}, err
	}
	return ard.KeyID()
}

func (l *Locator) disconnect(reader string) {
	if err := l.session.Disconnect(); err != nil {
		l.logger.Warn("failed to disconnect reader", "reader", reader, "err", err)
	}
}
