package openpgp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gregLibert/openpgp-card/pkg/iso7816"
)

// DefaultMaxPINAttempts bounds the verification loop. The card counter (3 on most cards)
// normally ends it first.
const DefaultMaxPINAttempts = 10

// PINCache stores PINs per (key, reader). Entries may vanish at any time.
type PINCache interface {
	Get(key, reader string) (string, bool)
	Put(key, reader, pin string)
	Delete(key, reader string)
}

// PINRequest describes the PIN being asked for.
type PINRequest struct {
	KeyID          KeyID
	Reader         string
	TriesRemaining int
}

// PINResponse is what the user entered.
type PINResponse struct {
	PIN      string
	Remember bool
}

// PINPrompter asks the user for a PIN. Abandoning the prompt returns ErrPINEntryCancelled.
type PINPrompter interface {
	PromptPIN(ctx context.Context, req PINRequest) (PINResponse, error)
}

// PINVerifier verifies PW1 on the connected card.
type PINVerifier struct {
	session     *Session
	cache       PINCache
	prompter    PINPrompter
	maxAttempts int
	logger      *slog.Logger
}

// NewPINVerifier creates a verifier. A nil cache disables caching, a nil logger means
// slog.Default() and a non-positive maxAttempts means DefaultMaxPINAttempts.
func NewPINVerifier(session *Session, cache PINCache, prompter PINPrompter, maxAttempts int, logger *slog.Logger) *PINVerifier {
	if cache == nil {
		cache = noCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxPINAttempts
	}
	return &PINVerifier{
		session:     session,
		cache:       cache,
		prompter:    prompter,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Verify runs VERIFY until the card accepts a PIN.
//
// Before every attempt the retry counter is read from the card. A cached PIN is only used
// while more than one try remains; otherwise the user is prompted. A wrong PIN drops the
// cached entry it came from and starts over. A blocked PIN ends with ErrDeviceBlocked.
func (v *PINVerifier) Verify(ctx context.Context, keyID KeyID) error {
	key := keyID.Short()
	reader := v.session.Reader()

	for attempt := 1; attempt <= v.maxAttempts; attempt++ {
		cachedPIN, cached := v.cache.Get(key, reader)

		ard, err := v.session.ReadApplicationData()
		if err != nil {
			return err
		}
		tries, err := ard.PINTriesRemaining()
		if err != nil {
			return err
		}
		if tries == 0 {
			return fmt.Errorf("%w: no PIN tries left on %s", ErrDeviceBlocked, reader)
		}

		pin := cachedPIN
		useCache := cached && tries > 1
		remember := false

		if !useCache {
			resp, err := v.prompter.PromptPIN(ctx, PINRequest{KeyID: keyID, Reader: reader, TriesRemaining: tries})
			if err != nil {
				return err
			}
			pin, remember = resp.PIN, resp.Remember
		}

		_, err = v.session.Transmit(verifyPW1Command(pin))
		if err == nil {
			if remember {
				v.cache.Put(key, reader, pin)
			}
			v.logger.Debug("PIN verified", "reader", reader, "cached", useCache)
			return nil
		}

		sw, ok := iso7816.AsStatus(err)
		switch {
		case !ok:
			return err
		case sw == iso7816.SW_ERR_AUTH_METHOD_BLOCKED:
			return fmt.Errorf("%w: %w", ErrDeviceBlocked, err)
		case sw == iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT, sw.IsCounter():
			if useCache {
				v.cache.Delete(key, reader)
			}
			v.logger.Info("wrong PIN", "reader", reader, "attempt", attempt, "cached", useCache)
		default:
			return err
		}
	}

	return fmt.Errorf("%w: gave up after %d", ErrTooManyPINAttempts, v.maxAttempts)
}

type noCache struct{}

func (noCache) Get(string, string) (string, bool) { return "", false }
func (noCache) Put(string, string, string)        {}
func (noCache) Delete(string, string)             {}
