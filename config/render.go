package config

import (
	"fmt"
	"sort"
	"strings"
)

// Render is the SPEC_FULL.md-supplemented debug dump of a parsed
// connection back to `key=value` lines, symmetrical to the assembler
// (§4.3) but never round-tripped through Lookup/decode again: it exists
// so tests can assert what was assembled without reaching into a
// Connection's private layout, the way a "show connection" diagnostic
// command would render it for an operator.
func Render(c *Connection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "conn %s\n", c.Name)

	renderEndpoint(&b, "left", &c.This)
	renderEndpoint(&b, "right", &c.That)

	fields := map[string]string{
		"auto":          enumName(EnumAuto, c.Auto),
		"type":          enumName(EnumType, c.Type),
		"authby":        enumName(EnumAuthBy, c.AuthBy),
		"keyexchange":   c.KeyExchange,
		"esp":           c.ESPAlg,
		"connalias":     c.ConnAlias,
		"vti":           c.VTI,
		"vti-interface": c.VTIInterface,
	}
	renderStrings(&b, fields)

	if c.Compress {
		fmt.Fprintf(&b, "  compress=yes\n")
	}
	if c.Rekey {
		fmt.Fprintf(&b, "  rekey=yes\n")
	}
	if c.DNSMatchID {
		fmt.Fprintf(&b, "  dns-match-id=yes\n")
	}
	if c.Metric != 0 {
		fmt.Fprintf(&b, "  metric=%d\n", c.Metric)
	}
	if c.IKELifetime != 0 {
		fmt.Fprintf(&b, "  ikelifetime=%dms\n", c.IKELifetime)
	}
	if c.SALifetime != 0 {
		fmt.Fprintf(&b, "  keylife=%dms\n", c.SALifetime)
	}

	return b.String()
}

func renderEndpoint(b *strings.Builder, side string, ep *Endpoint) {
	if ep.Host != "" {
		// The endpoint address keyword is the bare "left"/"right" name
		// itself (Keywords' host descriptor has an empty Name so the
		// leftright prefix match consumes the whole token), not
		// "lefthost"/"righthost".
		fmt.Fprintf(b, "  %s=%s\n", side, ep.Host)
	}
	for _, sn := range ep.Subnets {
		fmt.Fprintf(b, "  %ssubnet=%s\n", side, sn.String())
	}
	if ep.ID != "" {
		fmt.Fprintf(b, "  %sid=%s\n", side, ep.ID)
	}
	if ep.Cert != "" {
		fmt.Fprintf(b, "  %scert=%s\n", side, ep.Cert)
	}
	if ep.Updown != "" {
		fmt.Fprintf(b, "  %supdown=%s\n", side, ep.Updown)
	}
	if ep.SourceIP.IsValid() {
		fmt.Fprintf(b, "  %ssourceip=%s\n", side, ep.SourceIP)
	}
	if ep.NextHop.IsValid() {
		fmt.Fprintf(b, "  %snexthop=%s\n", side, ep.NextHop)
	}
}

func renderStrings(b *strings.Builder, fields map[string]string) {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if fields[k] == "" {
			continue
		}
		fmt.Fprintf(b, "  %s=%s\n", k, fields[k])
	}
}

// enumName reverse-looks-up value in enum, returning the first name
// that maps to it (a zero value that the enum names, such as "tunnel",
// is rendered too), or "" if no name maps to it.
func enumName(enum SparseEnum, value int) string {
	for _, e := range enum {
		if e.Value == value {
			return e.Name
		}
	}
	return ""
}
