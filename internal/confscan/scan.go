// Package confscan is a minimal ipsec.conf-shaped line scanner. It is
// not a production grammar: spec.md names the lexer/tokenizer as an
// external collaborator out of scope for the core, so this exists only
// to drive the config package end to end from a text fixture in tests
// and from cmd/pluto.
package confscan

import (
	"bufio"
	"strings"
)

// SectionKind distinguishes the "config setup" section from a conn
// block.
type SectionKind int

const (
	SectionConfig SectionKind = iota
	SectionConn
)

// Statement is one assembler-ready line: either the header of a new
// section, or a key=value pair belonging to the most recently opened
// section.
type Statement struct {
	File        string
	Line        int
	NewSection  bool
	Section     SectionKind
	SectionName string
	Key         string
	Value       string
}

// Scan splits src into Statements. Lines are classified by
// indentation: an unindented, non-blank, non-comment line opens a new
// section ("config setup" or "conn <name>"); an indented line is a
// "key=value" (or bare "key", value "") pair scoped to the open section.
// Comments start with '#' and run to end of line.
func Scan(file, src string) []Statement {
	var stmts []Statement
	sc := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		indented := len(raw) > 0 && (raw[0] == ' ' || raw[0] == '\t')
		if !indented {
			kind, name := classifySection(trimmed)
			stmts = append(stmts, Statement{
				File: file, Line: lineNo,
				NewSection: true, Section: kind, SectionName: name,
			})
			continue
		}
		key, value, _ := strings.Cut(trimmed, "=")
		stmts = append(stmts, Statement{
			File: file, Line: lineNo,
			Key: strings.TrimSpace(key), Value: strings.TrimSpace(value),
		})
	}
	return stmts
}

func classifySection(header string) (SectionKind, string) {
	fields := strings.Fields(header)
	if len(fields) >= 1 && strings.EqualFold(fields[0], "conn") {
		name := ""
		if len(fields) > 1 {
			name = fields[1]
		}
		return SectionConn, name
	}
	return SectionConfig, ""
}
