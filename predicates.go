// predicates.go — classification helpers over doublestack's error surface.
//
// Interop-first: everything goes through errors.As/Is so wrapped and joined
// errors classify correctly. No policy beyond yes/no answers.
package doublestack

import "errors"

// IsSettingError reports whether err is (or wraps) a Settings validation
// rejection.
func IsSettingError(err error) bool {
	if err == nil {
		return false
	}
	var se *SettingError
	return errors.As(err, &se)
}

// IsTraced reports whether err has a causal chain bound in the side table.
// Note this checks the error's own identity, not its wrap chain: binding is
// by identity, and a wrapper is a different identity than its cause.
func IsTraced(err error) bool {
	return lookupBinding(err) != nil
}

// PanicValue extracts the original panic value when err is (or wraps) a
// *PanicError produced by a shim normalizing a non-error panic.
func PanicValue(err error) (any, bool) {
	if err == nil {
		return nil, false
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe.Value, true
	}
	return nil, false
}
