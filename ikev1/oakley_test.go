package ikev1

import (
	"context"
	"errors"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/libreswan/pluto/internal/errdefs"
)

func TestTranslateAuthByPSKAndRSASig(t *testing.T) {
	t.Parallel()

	v, err := TranslateAuthBy(AuthPresharedKey)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(v, AuthByPSK))

	v, err = TranslateAuthBy(AuthRSASig)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(v, AuthByRSASig))
}

func TestTranslateAuthByRejectsLegacyMethods(t *testing.T) {
	t.Parallel()

	_, err := TranslateAuthBy(AuthDSSSig)
	assert.Assert(t, err != nil)
	assert.Check(t, errdefs.IsInvalidParameter(err))
}

func TestOakleyAuthPSKMatch(t *testing.T) {
	t.Parallel()

	hash := []byte{1, 2, 3, 4}
	err := OakleyAuth(context.Background(), AuthInputs{
		Method:       AuthPresharedKey,
		ComputedHash: hash,
		ReceivedHash: append([]byte(nil), hash...),
	})
	assert.NilError(t, err)
}

func TestOakleyAuthPSKMismatchIsInvalidHashInformation(t *testing.T) {
	t.Parallel()

	err := OakleyAuth(context.Background(), AuthInputs{
		Method:       AuthPresharedKey,
		ComputedHash: []byte{1, 2, 3, 4},
		ReceivedHash: []byte{9, 9, 9, 9},
	})
	assert.Assert(t, err != nil)
	assert.Check(t, errdefs.IsForbidden(err))
}

func TestOakleyAuthRSASigVerifyFailureIsInvalidKeyInformation(t *testing.T) {
	t.Parallel()

	err := OakleyAuth(context.Background(), AuthInputs{
		Method:       AuthRSASig,
		ComputedHash: []byte{1, 2, 3, 4},
		Signature:    []byte{5, 6, 7, 8},
		VerifySignature: func(hash, sig []byte) error {
			return errors.New("signature does not verify")
		},
	})
	assert.Assert(t, err != nil)
	assert.Check(t, errdefs.IsForbidden(err))
}

func TestOakleyAuthRSASigSuccess(t *testing.T) {
	t.Parallel()

	err := OakleyAuth(context.Background(), AuthInputs{
		Method:          AuthRSASig,
		ComputedHash:    []byte{1, 2, 3, 4},
		Signature:       []byte{5, 6, 7, 8},
		VerifySignature: func(hash, sig []byte) error { return nil },
	})
	assert.NilError(t, err)
}
