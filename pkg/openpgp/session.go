package openpgp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ebfe/scard"

	"github.com/gregLibert/openpgp-card/pkg/iso7816"
	"github.com/gregLibert/openpgp-card/pkg/pcsc"
)

// DefaultConnectorTimeout bounds EstablishContext.
const DefaultConnectorTimeout = 2 * time.Second

// State is the lifecycle position of a Session.
type State int

const (
	Disconnected State = iota
	ContextEstablished
	Connected
	AppletSelected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ContextEstablished:
		return "context established"
	case Connected:
		return "connected"
	case AppletSelected:
		return "applet selected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session owns one transport context and at most one connected card.
// It is not safe for concurrent use; card operations are strictly sequential.
type Session struct {
	connector pcsc.Connector
	logger    *slog.Logger
	timeout   time.Duration
	onTrace   func(iso7816.Trace)

	ctx      pcsc.Context
	card     pcsc.Card
	client   *iso7816.Client
	reader   string
	protocol scard.Protocol

	appletSelected bool
	historical     []byte
	caps           iso7816.Capabilities
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConnectorTimeout overrides DefaultConnectorTimeout.
func WithConnectorTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTraceHook registers a function receiving the trace of every exchange.
func WithTraceHook(fn func(iso7816.Trace)) Option {
	return func(s *Session) {
		s.onTrace = fn
	}
}

// NewSession creates a disconnected session.
func NewSession(connector pcsc.Connector, opts ...Option) *Session {
	s := &Session{
		connector: connector,
		logger:    slog.Default(),
		timeout:   DefaultConnectorTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	switch {
	case s.card != nil && s.appletSelected:
		return AppletSelected
	case s.card != nil:
		return Connected
	case s.ctx != nil:
		return ContextEstablished
	default:
		return Disconnected
	}
}

// Reader returns the connected reader name, or "" when disconnected.
func (s *Session) Reader() string { return s.reader }

// Protocol returns the negotiated wire protocol of the connected card.
func (s *Session) Protocol() scard.Protocol { return s.protocol }

// Capabilities returns the framing capabilities read at applet selection.
func (s *Session) Capabilities() iso7816.Capabilities { return s.caps }

// HistoricalBytes returns the historical bytes read at applet selection.
func (s *Session) HistoricalBytes() []byte { return s.historical }

type contextResult struct {
	ctx pcsc.Context
	err error
}

// EstablishContext opens the transport context unless a valid one is already held.
// The connector gets the configured timeout to answer; a context arriving after that is released.
func (s *Session) EstablishContext(ctx context.Context) error {
	if s.ctx != nil {
		if ok, err := s.ctx.IsValid(); err == nil && ok {
			return nil
		}
		s.logger.Debug("dropping invalid transport context")
		reader := s.reader
		if err := s.Disconnect(); err != nil {
			s.logger.Warn("failed to disconnect card of invalid context", "reader", reader, "err", err)
		}
		s.ctx = nil
	}

	done := make(chan contextResult, 1)
	go func() {
		c, err := s.connector.EstablishContext()
		done <- contextResult{ctx: c, err: err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("%w: %w", ErrConnectorUnavailable, r.err)
		}
		s.ctx = r.ctx
		return nil
	case <-timer.C:
		go releaseLate(done, s.logger)
		return fmt.Errorf("%w: no answer within %s", ErrConnectorUnavailable, s.timeout)
	case <-ctx.Done():
		go releaseLate(done, s.logger)
		return ctx.Err()
	}
}

func releaseLate(done <-chan contextResult, logger *slog.Logger) {
	r := <-done
	if r.err != nil || r.ctx == nil {
		return
	}
	if err := r.ctx.Release(); err != nil {
		logger.Warn("failed to release late transport context", "err", err)
	}
}

// ListReaders returns the reader names known to the transport.
func (s *Session) ListReaders() ([]string, error) {
	if s.ctx == nil {
		return nil, ErrNoContext
	}
	readers, err := s.ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	return readers, nil
}

// Connect opens an exclusive T=1 connection to reader. It is a no-op while connected.
func (s *Session) Connect(reader string) error {
	if s.ctx == nil {
		return ErrNoContext
	}
	if s.card != nil {
		if reader != s.reader {
			s.logger.Debug("already connected, ignoring connect", "reader", s.reader, "requested", reader)
		}
		return nil
	}

	card, err := s.ctx.Connect(reader, scard.ShareExclusive, scard.ProtocolT1)
	if err != nil {
		return fmt.Errorf("connect %q: %w", reader, err)
	}

	s.card = card
	s.reader = reader
	s.protocol = card.ActiveProtocol()
	s.caps = iso7816.Capabilities{}
	s.client = iso7816.NewClient(card, s.caps)
	return nil
}

// SelectApplet selects the OpenPGP application and negotiates the card capabilities.
// It is a no-op when the applet is already selected on this connection.
func (s *Session) SelectApplet() error {
	if s.card == nil {
		return ErrNotConnected
	}
	if s.appletSelected {
		return nil
	}

	if _, err := s.Transmit(selectAppletCommand()); err != nil {
		return fmt.Errorf("select OpenPGP applet: %w", err)
	}

	var caps iso7816.Capabilities

	hist, err := s.Transmit(getDataCommand(tagHistoricalBytes))
	switch _, isStatus := iso7816.AsStatus(err); {
	case err == nil:
		if caps, err = iso7816.NegotiateCapabilities(hist); err != nil {
			s.logger.Warn("no card capabilities, falling back to short APDUs", "reader", s.reader, "err", err)
		}
	case isStatus:
		s.logger.Warn("card has no historical bytes data object, falling back to short APDUs", "reader", s.reader, "err", err)
	default:
		return fmt.Errorf("read historical bytes: %w", err)
	}

	s.historical = hist
	s.caps = caps
	s.client.Capabilities = caps
	s.appletSelected = true

	s.logger.Debug("applet selected", "reader", s.reader, "capabilities", caps.String())
	return nil
}

// Transmit sends a logical command and returns the response data.
// Status words other than '90 00' come back as *iso7816.StatusError.
func (s *Session) Transmit(cmd *iso7816.CommandAPDU) ([]byte, error) {
	if s.client == nil {
		return nil, ErrNotConnected
	}

	trace, err := s.client.Send(cmd)
	if s.onTrace != nil && len(trace) > 0 {
		s.onTrace(trace)
	}
	if err != nil {
		return nil, err
	}

	if last := trace.Last(); last != nil {
		s.logger.Debug("apdu exchange",
			"ins", cmd.Instruction.Raw.String(),
			"frames", len(trace),
			"sw", fmt.Sprintf("%04X", uint16(last.Response.Status)))
	}

	return trace.Result()
}

// Disconnect leaves the card in place and resets the connection state.
// It is a no-op when not connected. State is reset even if the transport fails.
func (s *Session) Disconnect() error {
	if s.card == nil {
		return nil
	}

	err := s.card.Disconnect(scard.LeaveCard)
	s.resetCard()
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// ReleaseContext disconnects if needed and releases the transport context.
// It is a no-op when no context is held.
func (s *Session) ReleaseContext() error {
	discErr := s.Disconnect()

	if s.ctx == nil {
		return discErr
	}

	err := s.ctx.Release()
	s.ctx = nil
	if err != nil {
		err = fmt.Errorf("release context: %w", err)
	}
	return errors.Join(discErr, err)
}

// Close is ReleaseContext; it makes Session usable with defer-style cleanup.
func (s *Session) Close() error {
	return s.ReleaseContext()
}

func (s *Session) resetCard() {
	s.card = nil
	s.client = nil
	s.reader = ""
	s.protocol = scard.ProtocolUndefined
	s.appletSelected = false
	s.historical = nil
	s.caps = iso7816.Capabilities{}
}
