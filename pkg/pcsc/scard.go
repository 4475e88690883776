package pcsc

import (
	"errors"

	"github.com/ebfe/scard"
)

// SCard is the Connector backed by the system PC/SC library.
type SCard struct{}

// EstablishContext opens a context with the PC/SC resource manager.
func (SCard) EstablishContext() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, wrap("establish context", err)
	}
	return &scardContext{ctx: ctx}, nil
}

type scardContext struct {
	ctx *scard.Context
}

func (c *scardContext) IsValid() (bool, error) {
	ok, err := c.ctx.IsValid()
	return ok, wrap("check context", err)
}

func (c *scardContext) ListReaders() ([]string, error) {
	readers, err := c.ctx.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("list readers", err)
	}
	return readers, nil
}

func (c *scardContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error) {
	card, err := c.ctx.Connect(reader, mode, proto)
	if err != nil {
		return nil, wrap("connect "+reader, err)
	}
	return &scardCard{card: card}, nil
}

func (c *scardContext) Release() error {
	return wrap("release context", c.ctx.Release())
}

type scardCard struct {
	card *scard.Card
}

func (c *scardCard) Transmit(cmd []byte) ([]byte, error) {
	resp, err := c.card.Transmit(cmd)
	if err != nil {
		return nil, wrap("transmit", err)
	}
	return resp, nil
}

func (c *scardCard) ActiveProtocol() scard.Protocol {
	return c.card.ActiveProtocol()
}

func (c *scardCard) Disconnect(d scard.Disposition) error {
	return wrap("disconnect", c.card.Disconnect(d))
}
