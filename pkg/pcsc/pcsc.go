// Package pcsc is the card transport used by the OpenPGP session: a thin, mockable
// layer over the PC/SC API (github.com/ebfe/scard).
//
// PC/SC work happens in three steps:
//   - A Context is established with the resource manager (pcscd, winscard).
//   - The context lists readers and connects to the card inserted in one of them.
//   - The Card exchanges raw APDUs until it is disconnected, then the context is released.
package pcsc

import (
	"errors"
	"fmt"

	"github.com/ebfe/scard"
)

// Connector establishes transport contexts.
type Connector interface {
	EstablishContext() (Context, error)
}

// Context is an established connection to the PC/SC resource manager.
type Context interface {
	IsValid() (bool, error)
	// ListReaders returns the reader names. No reader at all is not an error.
	ListReaders() ([]string, error)
	Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error)
	Release() error
}

// Card is a connected card handle.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	ActiveProtocol() scard.Protocol
	Disconnect(d scard.Disposition) error
}

// Error is a transport failure carrying the numeric PC/SC return code.
type Error struct {
	Op   string
	Code uint32
}

func (e *Error) Error() string {
	return fmt.Sprintf("pcsc: %s: %s (0x%08X)", e.Op, scard.Error(e.Code).Error(), e.Code)
}

// Unwrap exposes the scard.Error so callers can match codes such as scard.ErrRemovedCard.
func (e *Error) Unwrap() error {
	return scard.Error(e.Code)
}

// Code returns the PC/SC return code carried by err, if any.
func Code(err error) (uint32, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	var se scard.Error
	if errors.As(err, &se) {
		return uint32(se), true
	}
	return 0, false
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se scard.Error
	if errors.As(err, &se) {
		return &Error{Op: op, Code: uint32(se)}
	}
	return fmt.Errorf("pcsc: %s: %w", op, err)
}
