package pcsc

import (
	"errors"
	"testing"

	"github.com/ebfe/scard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, wrap("transmit", nil))
	})

	t.Run("scard codes become *Error", func(t *testing.T) {
		err := wrap("transmit", scard.ErrRemovedCard)

		var pe *Error
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "transmit", pe.Op)
		assert.Equal(t, uint32(scard.ErrRemovedCard), pe.Code)
		assert.ErrorIs(t, err, scard.ErrRemovedCard)
		assert.Contains(t, err.Error(), "pcsc: transmit:")
		assert.Contains(t, err.Error(), "0x80100069")
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		err := wrap("connect", boom)

		assert.ErrorIs(t, err, boom)
		_, ok := Code(err)
		assert.False(t, ok)
	})
}

func TestCode(t *testing.T) {
	code, ok := Code(&Error{Op: "connect", Code: 0x8010000B})
	assert.True(t, ok)
	assert.Equal(t, uint32(0x8010000B), code)

	code, ok = Code(scard.ErrNoSmartcard)
	assert.True(t, ok)
	assert.Equal(t, uint32(scard.ErrNoSmartcard), code)
}
