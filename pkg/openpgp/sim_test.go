package openpgp

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/ebfe/scard"
	"github.com/moov-io/bertlv"

	"github.com/gregLibert/openpgp-card/pkg/pcsc"
	"github.com/gregLibert/openpgp-card/pkg/tlv"
)

// simConnector is an in-memory PC/SC stack with OpenPGP cards behind named readers.
type simConnector struct {
	mu sync.Mutex

	readers []string
	cards   map[string]*simCard

	establishErr error
	block        chan struct{} // when set, EstablishContext waits for it to be closed

	established int
	released    int
	connected   []string
}

func newSimConnector() *simConnector {
	return &simConnector{cards: map[string]*simCard{}}
}

func (c *simConnector) addReader(name string, card *simCard) {
	c.readers = append(c.readers, name)
	if card != nil {
		c.cards[name] = card
	}
}

func (c *simConnector) EstablishContext() (pcsc.Context, error) {
	if c.block != nil {
		<-c.block
	}
	if c.establishErr != nil {
		return nil, c.establishErr
	}
	c.mu.Lock()
	c.established++
	c.mu.Unlock()
	return &simContext{conn: c}, nil
}

func (c *simConnector) releasedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

type simContext struct {
	conn     *simConnector
	released bool
}

func (x *simContext) IsValid() (bool, error) { return !x.released, nil }

func (x *simContext) ListReaders() ([]string, error) {
	return append([]string(nil), x.conn.readers...), nil
}

func (x *simContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (pcsc.Card, error) {
	if mode != scard.ShareExclusive || proto != scard.ProtocolT1 {
		return nil, &pcsc.Error{Op: "connect", Code: uint32(scard.ErrInvalidParameter)}
	}
	card, ok := x.conn.cards[reader]
	if !ok {
		return nil, &pcsc.Error{Op: "connect " + reader, Code: uint32(scard.ErrNoSmartcard)}
	}
	x.conn.connected = append(x.conn.connected, reader)
	card.selected = false
	card.verified = false
	return card, nil
}

func (x *simContext) Release() error {
	x.conn.mu.Lock()
	defer x.conn.mu.Unlock()
	x.released = true
	x.conn.released++
	return nil
}

// simCard answers the OpenPGP commands used here.
type simCard struct {
	historical   []byte
	fingerprints []byte
	pin          string
	tries        int
	noApplet     bool
	useCounterSW bool   // answer wrong PINs with 63CX instead of 6982
	chunk        int    // split responses into chunks answered with 61XX
	plaintext    []byte // PSO:DECIPHER result
	decipherSW   uint16 // when set, PSO:DECIPHER fails with it

	selected bool
	verified bool
	chainBuf []byte
	pending  []byte

	sent         [][]byte
	verifyPINs   []string
	deciphered   [][]byte
	disconnected int
	transmitErr  error
}

func newSimCard(keyID KeyID, pin string) *simCard {
	fpr := make([]byte, 60)
	for i := range fpr {
		fpr[i] = byte(0xA0 + i%16)
	}
	copy(fpr[32:40], keyID[:])

	return &simCard{
		historical:   tlv.Hex("00 73 00 00 80 05 90 00"),
		fingerprints: fpr,
		pin:          pin,
		tries:        3,
		plaintext:    tlv.Hex("09", "0102030405060708", "00 24"),
	}
}

func (c *simCard) ActiveProtocol() scard.Protocol { return scard.ProtocolT1 }

func (c *simCard) Disconnect(d scard.Disposition) error {
	c.disconnected++
	c.selected = false
	c.verified = false
	return nil
}

func (c *simCard) applicationRelatedData() []byte {
	raw, err := bertlv.Encode([]bertlv.TLV{
		{Tag: "6E", TLVs: []bertlv.TLV{
			{Tag: "4F", Value: tlv.Hex("D2760001240103040006123456780000")},
			{Tag: "5F52", Value: c.historical},
			{Tag: "73", TLVs: []bertlv.TLV{
				{Tag: "C0", Value: tlv.Hex("7D 00 0B FE 08 00 00 FF 00 00")},
				{Tag: "C4", Value: []byte{0x00, 0x7F, 0x7F, 0x7F, byte(c.tries), 0x00, 0x03}},
				{Tag: "C5", Value: c.fingerprints},
			}},
		}},
	})
	if err != nil {
		panic(err)
	}
	return raw
}

func sw(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }

func (c *simCard) respond(data []byte) []byte {
	if c.chunk > 0 && len(data) > c.chunk {
		c.pending = data[c.chunk:]
		return append(append([]byte(nil), data[:c.chunk]...), 0x61, byte(min(len(c.pending), 0xFF)))
	}
	return append(append([]byte(nil), data...), 0x90, 0x00)
}

func (c *simCard) Transmit(cmd []byte) ([]byte, error) {
	c.sent = append(c.sent, append([]byte(nil), cmd...))
	if c.transmitErr != nil {
		return nil, c.transmitErr
	}
	if len(cmd) < 4 {
		return sw(0x6700), nil
	}

	claByte, ins, p1, p2 := cmd[0], cmd[1], cmd[2], cmd[3]
	var data []byte
	if len(cmd) > 5 {
		lc := int(cmd[4])
		if len(cmd) < 5+lc {
			return sw(0x6700), nil
		}
		data = cmd[5 : 5+lc]
	}

	if claByte&0x10 != 0 {
		c.chainBuf = append(c.chainBuf, data...)
		return sw(0x9000), nil
	}
	if c.chainBuf != nil {
		data = append(c.chainBuf, data...)
		c.chainBuf = nil
	}

	switch {
	case ins == 0xA4 && p1 == 0x04:
		if c.noApplet || !bytes.Equal(data, AID) {
			return sw(0x6A82), nil
		}
		c.selected = true
		return sw(0x9000), nil

	case ins == 0xC0:
		out := c.pending
		c.pending = nil
		return c.respond(out), nil

	case !c.selected:
		return sw(0x6985), nil

	case ins == 0xCA && p1 == 0x5F && p2 == 0x52:
		if c.historical == nil {
			return sw(0x6A88), nil
		}
		return c.respond(c.historical), nil

	case ins == 0xCA && p1 == 0x00 && p2 == 0x6E:
		return c.respond(c.applicationRelatedData()), nil

	case ins == 0x20 && p2 == 0x82:
		c.verifyPINs = append(c.verifyPINs, string(data))
		if c.tries == 0 {
			return sw(0x6983), nil
		}
		if string(data) == c.pin {
			c.tries = 3
			c.verified = true
			return sw(0x9000), nil
		}
		c.tries--
		if c.tries == 0 {
			return sw(0x6983), nil
		}
		if c.useCounterSW {
			return sw(0x63C0 | uint16(c.tries)), nil
		}
		return sw(0x6982), nil

	case ins == 0x2A && p1 == 0x80 && p2 == 0x86:
		if !c.verified {
			return sw(0x6982), nil
		}
		if c.decipherSW != 0 {
			return sw(c.decipherSW), nil
		}
		if len(data) == 0 || data[0] != 0x00 {
			return sw(0x6A80), nil
		}
		c.deciphered = append(c.deciphered, append([]byte(nil), data...))
		return c.respond(c.plaintext), nil

	default:
		return sw(0x6D00), nil
	}
}

var errSimTransport = errors.New("sim: reader unplugged")

// recordingCache is a PINCache keeping a log of calls.
type recordingCache struct {
	entries map[[2]string]string
	calls   []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[[2]string]string{}}
}

func (r *recordingCache) Get(key, reader string) (string, bool) {
	r.calls = append(r.calls, "get")
	pin, ok := r.entries[[2]string{key, reader}]
	return pin, ok
}

func (r *recordingCache) Put(key, reader, pin string) {
	r.calls = append(r.calls, "put")
	r.entries[[2]string{key, reader}] = pin
}

func (r *recordingCache) Delete(key, reader string) {
	r.calls = append(r.calls, "delete")
	delete(r.entries, [2]string{key, reader})
}

// scriptedPrompter answers PIN prompts from a list.
type scriptedPrompter struct {
	answers  []PINResponse
	err      error
	requests []PINRequest
}

func (p *scriptedPrompter) PromptPIN(_ context.Context, req PINRequest) (PINResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return PINResponse{}, p.err
	}
	if len(p.answers) == 0 {
		return PINResponse{}, ErrPINEntryCancelled
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}
