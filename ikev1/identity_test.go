package ikev1

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestIdentityEqual(t *testing.T) {
	t.Parallel()

	a := Identity{Kind: IdentityFQDN, Value: "peer.example.com"}
	b := Identity{Kind: IdentityFQDN, Value: "peer.example.com"}
	c := Identity{Kind: IdentityFQDN, Value: "other.example.com"}

	assert.Check(t, a.Equal(b))
	assert.Check(t, !a.Equal(c))
}

func TestIdentityFromCertNeverEqual(t *testing.T) {
	t.Parallel()

	a := Identity{Kind: IdentityFromCert}
	b := Identity{Kind: IdentityFromCert}

	assert.Check(t, !a.Equal(b), "FROMCERT is a placeholder, never a comparable value")
}

func TestIdentityStringIncludesKind(t *testing.T) {
	t.Parallel()

	id := Identity{Kind: IdentityUserFQDN, Value: "peer@example.com"}
	assert.Check(t, is.Contains(id.String(), "peer@example.com"))
	assert.Check(t, is.Contains(id.String(), "user_fqdn"))
}
