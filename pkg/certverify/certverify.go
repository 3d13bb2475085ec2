// Package certverify gives the "cryptographic/TLS library that verifies
// X.509 chains and produces a trust result" collaborator named only at
// its interface in spec.md §1 a concrete, minimal shape: parsing a PEM
// certificate chain and matching its end-entity certificate's
// subjectAltName entries against a peer-declared identity, the way
// ikev1_peer_id.c's match_end_cert_id does.
package certverify

import (
	"crypto/x509"
	"fmt"

	"github.com/cloudflare/cfssl/helpers"
	"github.com/pkg/errors"
)

// SANKind is the kind of subjectAltName entry being matched, mirroring
// the subset of the peer-identity tagged union (spec.md §3) that can
// plausibly appear in a certificate.
type SANKind int

const (
	SANDNSName SANKind = iota
	SANEmail
	SANIPAddress
	// SANSubjectDN matches against the end certificate's own subject
	// distinguished name, used for the DER_ASN1_DN identity kind.
	SANSubjectDN
)

func (k SANKind) String() string {
	switch k {
	case SANDNSName:
		return "dns-name"
	case SANEmail:
		return "email"
	case SANIPAddress:
		return "ip-address"
	case SANSubjectDN:
		return "subject-dn"
	default:
		return fmt.Sprintf("SANKind(%d)", int(k))
	}
}

// VerifiedChain is a parsed certificate chain whose trust has already
// been established upstream (by the out-of-scope collaborator); this
// package only extracts identity material from it. The end-entity
// certificate is always Chain[0], matching the C comment "end cert is
// at the front".
type VerifiedChain struct {
	Chain []*x509.Certificate
}

// ParsePEMChain parses a PEM-encoded certificate chain via cfssl's
// helpers, the library this module's go.mod carries for X.509 parsing.
// The first certificate in pemBytes becomes the end-entity certificate.
func ParsePEMChain(pemBytes []byte) (VerifiedChain, error) {
	certs, err := helpers.ParseCertificatesPEM(pemBytes)
	if err != nil {
		return VerifiedChain{}, errors.Wrap(err, "certverify: parsing PEM certificate chain")
	}
	if len(certs) == 0 {
		return VerifiedChain{}, errors.New("certverify: PEM input contained no certificates")
	}
	return VerifiedChain{Chain: certs}, nil
}

// End returns the end-entity certificate, or nil if the chain is empty.
func (c VerifiedChain) End() *x509.Certificate {
	if len(c.Chain) == 0 {
		return nil
	}
	return c.Chain[0]
}

// MatchResult is a subjectAltName entry found to match.
type MatchResult struct {
	Kind  SANKind
	Value string
}

// MatchEndCertID searches the end-entity certificate for a
// subjectAltName entry of the given kind equal to value, per
// ikev1_peer_id.c's match_end_cert_id. SANSubjectDN always "matches",
// returning the certificate's own subject as the candidate identity,
// since a DER_ASN1_DN identity is verified by equality with the
// subject itself rather than a SAN extension.
func (c VerifiedChain) MatchEndCertID(kind SANKind, value string) (MatchResult, error) {
	end := c.End()
	if end == nil {
		return MatchResult{}, errors.New("certverify: no end-entity certificate to match against")
	}

	switch kind {
	case SANDNSName:
		for _, n := range end.DNSNames {
			if n == value {
				return MatchResult{Kind: SANDNSName, Value: n}, nil
			}
		}
	case SANEmail:
		for _, n := range end.EmailAddresses {
			if n == value {
				return MatchResult{Kind: SANEmail, Value: n}, nil
			}
		}
	case SANIPAddress:
		for _, ip := range end.IPAddresses {
			if ip.String() == value {
				return MatchResult{Kind: SANIPAddress, Value: ip.String()}, nil
			}
		}
	case SANSubjectDN:
		return MatchResult{Kind: SANSubjectDN, Value: end.Subject.String()}, nil
	default:
		return MatchResult{}, fmt.Errorf("certverify: unknown SAN kind %d", int(kind))
	}

	return MatchResult{}, fmt.Errorf("certverify: certificate %q has no %s matching %q",
		end.Subject.CommonName, kind, value)
}
