package idempotency

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("handle order: %w", &Error{Kind: KindConflict, Key: "k1"})

	require.ErrorIs(t, err, ErrConflict)
	require.NotErrorIs(t, err, ErrBodyMismatch)
	require.Equal(t, KindConflict, KindOf(err))
	require.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}

func TestErrorMessages(t *testing.T) {
	require.Equal(t, "missing required idempotency header: Idempotency-Key",
		(&Error{Kind: KindKeyMissing, Key: "Idempotency-Key"}).Error())
	require.Equal(t, `idempotency key "k1" was already used with a different request body`,
		(&Error{Kind: KindBodyMismatch, Key: "k1"}).Error())
	require.Equal(t, `request with idempotency key "k1" is already being processed`,
		(&Error{Kind: KindConflict, Key: "k1"}).Error())
}

func TestStoreUnavailableWrapsCause(t *testing.T) {
	err := storeUnavailable("idempotency get", errStoreDown)

	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.ErrorIs(t, err, errStoreDown)
	require.Contains(t, err.Error(), "idempotency get")
	require.Equal(t, "store_unavailable", KindOf(err).String())
}
