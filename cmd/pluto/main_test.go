package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipsec.conf")
	assert.NilError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAssemblesConnections(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
conn foo
  left=1.2.3.4
  right=%any
  type=tunnel
  authby=rsasig
`)

	parsed, err := loadConfig(context.Background(), &options{configFile: path})
	assert.NilError(t, err)

	foo, ok := parsed.Connections["foo"]
	assert.Assert(t, ok)
	assert.Check(t, is.Equal(foo.This.Host, "1.2.3.4"))
}

func TestLoadConfigStrictSubnetsRejectsHostBits(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
conn foo
  left=1.2.3.4
  leftsubnet=10.0.0.5/24
  right=%any
`)

	_, err := loadConfig(context.Background(), &options{configFile: path, strictSubnets: true})
	assert.ErrorContains(t, err, "improper subnet")
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := loadConfig(context.Background(), &options{configFile: filepath.Join(t.TempDir(), "missing.conf")})
	assert.ErrorContains(t, err, "no such file")
}
