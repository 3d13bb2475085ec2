package config

import "strings"

// ModifierDict maps a modifier name to the bit it sets in a TModifierSet
// slot. Names are looked up case-insensitively.
type ModifierDict map[string]uint64

func (d ModifierDict) lookup(name string) (uint64, bool) {
	if bit, ok := d[name]; ok {
		return bit, true
	}
	lower := strings.ToLower(name)
	for k, v := range d {
		if strings.EqualFold(k, lower) {
			return v, true
		}
	}
	return 0, false
}

// DecodeModifierSet decodes a comma-separated modifier list such as
// "all,no-crypt" against dict, per spec.md §4.2: each term optionally
// prefixed "no-" sets or clears its bit; the result is the final bitset.
func DecodeModifierSet(dict ModifierDict, raw string) (uint64, error) {
	var result uint64
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		clear := false
		name := term
		if strings.HasPrefix(strings.ToLower(term), "no-") {
			clear = true
			name = term[3:]
		}
		bit, ok := dict.lookup(name)
		if !ok {
			return 0, &ParseError{Keyword: "modifier-set", Value: term, msg: "unknown modifier"}
		}
		if clear {
			result &^= bit
		} else {
			result |= bit
		}
	}
	return result, nil
}
