package ikev1

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/libreswan/pluto/internal/errdefs"
	"github.com/libreswan/pluto/internal/logging"
)

// AuthMethod mirrors the OAKLEY_* authentication method negotiated in
// Phase 1, per ikev1_peer_id.c's oakley_auth/xauth_calcbaseauth switch.
type AuthMethod int

const (
	AuthPresharedKey AuthMethod = iota
	AuthRSASig
	AuthDSSSig
	AuthRSAEnc
	AuthRSARevisedMode
	AuthECDSAP256
	AuthECDSAP384
	AuthECDSAP521
)

func (m AuthMethod) String() string {
	switch m {
	case AuthPresharedKey:
		return "preshared-key"
	case AuthRSASig:
		return "rsa-sig"
	case AuthDSSSig:
		return "dss-sig"
	case AuthRSAEnc:
		return "rsa-enc"
	case AuthRSARevisedMode:
		return "rsa-revised-mode"
	case AuthECDSAP256:
		return "ecdsa-p256"
	case AuthECDSAP384:
		return "ecdsa-p384"
	case AuthECDSAP521:
		return "ecdsa-p521"
	default:
		return fmt.Sprintf("AuthMethod(%d)", int(m))
	}
}

// AuthByMask is the authby policy bitmask the connection refinement
// collaborator matches candidate connections against, per spec.md §4.5
// step 2.
type AuthByMask int

const (
	AuthByPSK AuthByMask = 1 << iota
	AuthByRSASig
)

// TranslateAuthBy translates the negotiated OAKLEY auth method into an
// authby mask. Only PSK and RSA-SIG are implemented; every other
// OAKLEY method is legacy and unsupported, per spec.md §4.5 step 2
// ("all other legacy methods refuse").
func TranslateAuthBy(method AuthMethod) (AuthByMask, error) {
	switch method {
	case AuthPresharedKey:
		return AuthByPSK, nil
	case AuthRSASig:
		return AuthByRSASig, nil
	default:
		return 0, errdefs.InvalidParameter(
			fmt.Errorf("ikev1: oakley auth method %s is not supported", method))
	}
}

// AuthInputs carries everything OakleyAuth needs to verify the
// Authenticator payload, without reaching into the wire codec or a
// crypto library — both are named out-of-scope collaborators in
// spec.md §1. The caller (which does own the wire layer) is
// responsible for computing ComputedHash via main_mode_hash under the
// peer's flipped role before calling OakleyAuth.
type AuthInputs struct {
	Method AuthMethod

	// ComputedHash is this end's independently computed hash of the ID
	// payload, under the peer's SA role (roles are flipped: we are
	// authenticating the other end).
	ComputedHash []byte

	// ReceivedHash is the bytes of the received HASH payload, compared
	// byte-exact against ComputedHash for AuthPresharedKey.
	ReceivedHash []byte

	// Signature is the bytes of the received SIG payload, verified
	// against ComputedHash for AuthRSASig.
	Signature []byte

	// VerifySignature validates a detached signature over a SHA-1
	// digest using the peer's public key (authsig_and_log_using_pubkey
	// /authsig_using_RSA_pubkey). Required when Method == AuthRSASig.
	VerifySignature func(hash, signature []byte) error
}

// OakleyAuth is the subsequent authenticator check: for PSK it compares
// the received HASH payload byte-exact against the independently
// computed hash; for RSA-SIG it verifies the received signature over
// that hash using the peer's public key. Any other method is a
// programming error — refinement already rejected it via
// TranslateAuthBy. Mismatch yields a typed, classifiable failure
// distinguishing a bad HASH from a bad signature, per spec.md §4.5's
// `INVALID_HASH_INFORMATION`/`INVALID_KEY_INFORMATION`.
func OakleyAuth(ctx context.Context, in AuthInputs) error {
	switch in.Method {
	case AuthPresharedKey:
		if !bytes.Equal(in.ReceivedHash, in.ComputedHash) {
			logging.ForState(ctx, 0).Warn("received Hash Payload does not match computed value")
			return errdefs.Forbidden(errors.New("invalid hash information"))
		}
		return nil

	case AuthRSASig:
		if in.VerifySignature == nil {
			return errdefs.InvalidParameter(errors.New("ikev1: AuthRSASig requires VerifySignature"))
		}
		if err := in.VerifySignature(in.ComputedHash, in.Signature); err != nil {
			logging.ForState(ctx, 0).WithError(err).Warn("received Sig Payload data did not match computed value")
			return errdefs.Forbidden(errors.Wrap(err, "invalid key information"))
		}
		return nil

	default:
		panic(fmt.Sprintf("ikev1: OakleyAuth called with unsupported method %s", in.Method))
	}
}
