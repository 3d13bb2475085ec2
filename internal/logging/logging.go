// Package logging attaches the structured fields the rest of the module
// expects to find on every log line: the state's serial number and the
// owning connection's name, in the manner of containerd/log's WithField
// chaining.
package logging

import (
	"context"
	"strconv"

	"github.com/containerd/log"
)

// ForState returns a logger scoped to a state's serial number, formatted
// the way the daemon renders serials elsewhere ("#N").
func ForState(ctx context.Context, serial uint64) *log.Entry {
	return log.G(ctx).WithField("state", serialString(serial))
}

// ForConnection returns a logger scoped to a connection name.
func ForConnection(ctx context.Context, name string) *log.Entry {
	return log.G(ctx).WithField("connection", name)
}

func serialString(serial uint64) string {
	if serial == 0 {
		return "#nobody"
	}
	return "#" + strconv.FormatUint(serial, 10)
}
