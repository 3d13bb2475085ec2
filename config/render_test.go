package config

import (
	"context"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/libreswan/pluto/internal/confscan"
)

func TestRenderRoundTripsKeyValues(t *testing.T) {
	t.Parallel()

	stmts := confscan.Scan("test.conf", `
conn foo
  left=1.2.3.4
  leftsubnet=10.0.0.0/24
  right=%any
  type=tunnel
  authby=rsasig
`)
	p := NewParser(SubnetPolicyZero)
	cfg, err := p.Assemble(context.Background(), stmts)
	assert.NilError(t, err)

	out := Render(cfg.Connections["foo"])
	assert.Check(t, is.Contains(out, "left=1.2.3.4"))
	assert.Check(t, is.Contains(out, "leftsubnet=10.0.0.0/24"))
	assert.Check(t, is.Contains(out, "right=%any"))
	assert.Check(t, is.Contains(out, "type=tunnel"))
	assert.Check(t, is.Contains(out, "authby=rsasig"))
	assert.Check(t, strings.HasPrefix(out, "conn foo\n"))
}
