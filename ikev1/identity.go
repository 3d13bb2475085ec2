// Package ikev1 implements the IKEv1 peer-identification state machine
// described in spec.md §4.5: given an inbound ID payload and an
// optional verified certificate chain, decide whether to keep, narrow,
// or switch the connection a state is bound to.
package ikev1

import "fmt"

// IdentityKind is the discriminant of the peer identity tagged union,
// per spec.md §3: "{FQDN, USER_FQDN, IPV4_ADDR, IPV6_ADDR, DER_ASN1_DN,
// KEY_ID, NULL, FROMCERT, NONE}", recast as a proper Go sum type per
// the REDESIGN FLAG rejecting pointer-casting id kinds.
type IdentityKind int

const (
	IdentityNone IdentityKind = iota
	IdentityFQDN
	IdentityUserFQDN
	IdentityIPv4Addr
	IdentityIPv6Addr
	IdentityDERASN1DN
	IdentityKeyID
	IdentityNull
	// IdentityFromCert is the placeholder kind meaning "take identity
	// from the verified certificate subject", per spec.md §3.
	IdentityFromCert
)

func (k IdentityKind) String() string {
	switch k {
	case IdentityNone:
		return "none"
	case IdentityFQDN:
		return "fqdn"
	case IdentityUserFQDN:
		return "user_fqdn"
	case IdentityIPv4Addr:
		return "ipv4_addr"
	case IdentityIPv6Addr:
		return "ipv6_addr"
	case IdentityDERASN1DN:
		return "der_asn1_dn"
	case IdentityKeyID:
		return "key_id"
	case IdentityNull:
		return "null"
	case IdentityFromCert:
		return "fromcert"
	default:
		return fmt.Sprintf("IdentityKind(%d)", int(k))
	}
}

// Identity is a decoded peer identity: a discriminant plus its textual
// value (FQDN/email/DN text, an IP's string form, or a hex key id).
// Value is empty for None, Null and FromCert.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// Equal is libreswan's same_id: identical kind and value. Two FromCert
// identities are never equal to each other or anything else — FromCert
// is a placeholder, not a value to compare.
func (id Identity) Equal(other Identity) bool {
	if id.Kind == IdentityFromCert || other.Kind == IdentityFromCert {
		return false
	}
	return id.Kind == other.Kind && id.Value == other.Value
}

func (id Identity) String() string {
	if id.Value == "" {
		return id.Kind.String()
	}
	return fmt.Sprintf("%s:%s", id.Kind, id.Value)
}
