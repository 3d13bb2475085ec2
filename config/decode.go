package config

import (
	"net/netip"
	"strconv"
	"strings"
)

// SubnetPolicy selects how DecodeSubnet treats host-part bits set beyond
// the mask, per spec.md §4.2, grounded on
// lib/libswan/initsubnet.c's initsubnet(): 'zero' silently clears them
// ('0' clash argument there), 'strict' rejects the subnet ('x' clash
// argument there).
type SubnetPolicy int

const (
	SubnetPolicyZero SubnetPolicy = iota
	SubnetPolicyStrict
)

var boolWords = map[string]bool{
	"yes": true, "true": true, "on": true, "1": true,
	"no": false, "false": false, "off": false, "0": false,
}

// DecodeBool implements spec.md §4.2's bool decoder.
func DecodeBool(keyword, raw string) (bool, error) {
	v, ok := boolWords[strings.ToLower(raw)]
	if !ok {
		return false, &ParseError{Keyword: keyword, Value: raw}
	}
	return v, nil
}

// DecodeInvertBool decodes raw as a bool then complements it, per the
// invert-bool value type.
func DecodeInvertBool(keyword, raw string) (bool, error) {
	v, err := DecodeBool(keyword, raw)
	if err != nil {
		return false, err
	}
	return !v, nil
}

// DecodeNumber implements the number decoder.
func DecodeNumber(keyword, raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ParseError{Keyword: keyword, Value: raw}
	}
	return n, nil
}

// DecodeTime implements the time decoder: an integer with an optional
// unit suffix s|ms|m|h|d, normalized to milliseconds.
func DecodeTime(keyword, raw string) (int64, error) {
	mult := int64(1000) // bare numbers are seconds
	numPart := raw
	switch {
	case strings.HasSuffix(raw, "ms"):
		mult = 1
		numPart = strings.TrimSuffix(raw, "ms")
	case strings.HasSuffix(raw, "s"):
		mult = 1000
		numPart = strings.TrimSuffix(raw, "s")
	case strings.HasSuffix(raw, "m"):
		mult = 60 * 1000
		numPart = strings.TrimSuffix(raw, "m")
	case strings.HasSuffix(raw, "h"):
		mult = 60 * 60 * 1000
		numPart = strings.TrimSuffix(raw, "h")
	case strings.HasSuffix(raw, "d"):
		mult = 24 * 60 * 60 * 1000
		numPart = strings.TrimSuffix(raw, "d")
	}
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, &ParseError{Keyword: keyword, Value: raw}
	}
	return n * mult, nil
}

// DecodePercent implements the percent decoder: strips a trailing '%'.
func DecodePercent(keyword, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(raw, "%"))
	if err != nil {
		return 0, &ParseError{Keyword: keyword, Value: raw}
	}
	return n, nil
}

// DecodeEnum implements the enum decoder: a case-insensitive lookup in
// the descriptor's sparse enumeration. A miss is fatal.
func DecodeEnum(keyword string, enum SparseEnum, raw string) (int, error) {
	v, ok := enum.Lookup(raw)
	if !ok {
		return 0, &ParseError{Keyword: keyword, Value: raw}
	}
	return v, nil
}

// DecodeLooseEnum implements the loose-enum decoder: as DecodeEnum, but
// on a miss it returns LooseEnumStringFallback and usedString=true so the
// caller stores raw rather than a numeric code, per spec.md §4.2 and the
// Open Question about the 255 sentinel.
func DecodeLooseEnum(enum SparseEnum, raw string) (value int, usedString bool) {
	v, ok := enum.Lookup(raw)
	if !ok {
		return LooseEnumStringFallback, true
	}
	return v, false
}

// DecodeMultiEnumList implements the multi-enum-list decoder: a comma/
// colon/space/tab-separated set of pieces, each resolved via enum and
// OR'ed together. If scalar is true, more than one successfully-decoded
// piece is fatal.
func DecodeMultiEnumList(keyword string, enum SparseEnum, raw string, scalar bool) (int, error) {
	pieces := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ':' || r == ' ' || r == '\t'
	})
	var result int
	count := 0
	for _, p := range pieces {
		v, ok := enum.Lookup(p)
		if !ok {
			return 0, &ParseError{Keyword: keyword, Value: p}
		}
		result |= v
		count++
	}
	if scalar && count > 1 {
		return 0, &ParseError{Keyword: keyword, Value: raw, msg: "scalar keyword given multiple values"}
	}
	return result, nil
}

// DecodeSubnet implements the subnet decoder, delegating address parsing
// to net/netip and then applying the zero/strict host-bits policy
// exactly as lib/libswan/initsubnet.c does.
func DecodeSubnet(keyword, raw string, policy SubnetPolicy) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(raw)
	if err != nil {
		return netip.Prefix{}, &ParseError{Keyword: keyword, Value: raw}
	}
	masked := p.Masked()
	if masked.Addr() != p.Addr() {
		if policy == SubnetPolicyStrict {
			return netip.Prefix{}, &ParseError{Keyword: keyword, Value: raw, msg: "improper subnet, host-part bits on"}
		}
		return masked, nil
	}
	return p, nil
}

// DecodeIPAddr implements the ipaddr decoder.
func DecodeIPAddr(keyword, raw string) (netip.Addr, error) {
	a, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, &ParseError{Keyword: keyword, Value: raw}
	}
	return a, nil
}

// DecodeRange implements the range decoder: "start-end".
func DecodeRange(keyword, raw string) (start, end netip.Addr, err error) {
	lo, hi, ok := strings.Cut(raw, "-")
	if !ok {
		return netip.Addr{}, netip.Addr{}, &ParseError{Keyword: keyword, Value: raw}
	}
	start, err1 := netip.ParseAddr(lo)
	end, err2 := netip.ParseAddr(hi)
	if err1 != nil || err2 != nil {
		return netip.Addr{}, netip.Addr{}, &ParseError{Keyword: keyword, Value: raw}
	}
	return start, end, nil
}
