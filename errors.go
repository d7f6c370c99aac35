// errors.go — the error surface of doublestack.
//
// Scope (tiny, policy-free):
//   - SettingError: synchronous validation failure from the Settings store.
//     Always recoverable; the previous value is retained on rejection.
//   - PanicError: wrapper for non-error panic values crossing a shim, so the
//     captured chain stays retrievable by error identity.
//   - errorFromPanic: normalization applied by every shim's recover path.
//
// Interop: both types are plain errors that cooperate with errors.Is/As; no
// logging or formatting policy lives here.
package doublestack

import "fmt"

// SettingError reports a rejected write to a Settings field. It plays the role
// a TypeError plays in dynamic platforms: raised synchronously, recoverable by
// retrying with a valid value.
type SettingError struct {
	Setting string // field name, snake_case ("chain_depth_limit", ...)
	Value   any    // the rejected value, as given
	Reason  string // short human-readable cause
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("invalid %s: %s (got %v)", e.Setting, e.Reason, e.Value)
}

// PanicError wraps a panic value that was not itself an error. Shims re-raise
// panics unchanged when the value is an error; anything else is wrapped so the
// chain side table has an identity to key on.
type PanicError struct {
	Value any // the original panic value, unmodified
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// errorFromPanic normalizes a recovered panic value to an error. Errors pass
// through untouched; everything else is wrapped in *PanicError.
func errorFromPanic(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &PanicError{Value: v}
}

// Interface conformance guards (keep in the file that defines the types).
var (
	_ error = (*SettingError)(nil)
	_ error = (*PanicError)(nil)
)
