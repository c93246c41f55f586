package swaperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Run("typed error", func(t *testing.T) {
		err := New(KindReverted, "swap transaction reverted")
		assert.Equal(t, KindReverted, KindOf(err))
	})

	t.Run("wrapped typed error", func(t *testing.T) {
		inner := New(KindApproval, "approval transaction reverted")
		err := fmt.Errorf("executing swap: %w", inner)
		assert.Equal(t, KindApproval, KindOf(err))
	})

	t.Run("untyped error defaults to transport", func(t *testing.T) {
		assert.Equal(t, KindTransport, KindOf(errors.New("connection refused")))
	})
}

func TestErrorChaining(t *testing.T) {
	cause := errors.New("nonce too low")
	hash := common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001")

	err := Wrap(KindTransport, cause, "failed to submit swap").WithTx(hash)

	require.NotNil(t, err.TxHash)
	assert.Equal(t, hash, *err.TxHash)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "TRANSPORT")
	assert.Contains(t, err.Error(), "nonce too low")
	assert.Equal(t, "failed to submit swap", err.Message())
}

func TestIsKind(t *testing.T) {
	err := New(KindInsufficientFunds, "need 100, have 1")
	assert.True(t, IsKind(err, KindInsufficientFunds))
	assert.False(t, IsKind(err, KindValidation))
}
