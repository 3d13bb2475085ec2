// Package errdefs classifies the typed error categories raised by the
// config, state, and ikev1 packages so callers can tell a malformed input
// from a logic bug without string-matching messages.
package errdefs

import "github.com/containerd/errdefs"

// InvalidParameter wraps err as a classified invalid-parameter error.
// Used for parse errors: an unknown enum value, a type mismatch for a
// slot, or a subnet rejected under the strict host-bits policy.
func InvalidParameter(err error) error {
	return errdefs.NewInvalidArgument(err)
}

// NotFound wraps err as a classified not-found error. Used when a
// referenced `also` section is missing from the connection table; an
// unknown keyword is reported as InvalidParameter instead.
func NotFound(err error) error {
	return errdefs.NewNotFound(err)
}

// Forbidden wraps err as a classified forbidden error. Used when a
// keyword is used outside its validity scope (a config-only keyword
// inside a conn block, or vice versa).
func Forbidden(err error) error {
	return errdefs.NewPermissionDenied(err)
}

// Conflict wraps err as a classified conflict error. No package in this
// module calls it; a scalar slot written twice is not reported as a
// conflict.
func Conflict(err error) error {
	return errdefs.NewAlreadyExists(err)
}

// IsInvalidParameter reports whether err was produced by InvalidParameter.
func IsInvalidParameter(err error) bool { return errdefs.IsInvalidArgument(err) }

// IsNotFound reports whether err was produced by NotFound.
func IsNotFound(err error) bool { return errdefs.IsNotFound(err) }

// IsForbidden reports whether err was produced by Forbidden.
func IsForbidden(err error) bool { return errdefs.IsPermissionDenied(err) }

// IsConflict reports whether err was produced by Conflict.
func IsConflict(err error) bool { return errdefs.IsAlreadyExists(err) }
