// settings.go — the validated configuration store for doublestack.
//
// Three tunables, each with a typed getter/setter pair and a dynamic Set path
// used by config-file loading:
//   - chain depth limit: how many linked snapshots a chain may keep.
//   - separator token:   the line printed between chain segments.
//   - renderer:          the function that turns a flattened chain into text.
//
// Every write revalidates; a rejected write returns *SettingError and leaves
// the previous value untouched. The store is read-mostly, so an RWMutex is
// plenty; writes are rare and need no cross-field atomicity.
package doublestack

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// RendererFunc produces the final trace text. msg is the error's own
// description (its Error() string), separator is the configured token, and
// entries is the flattened chain: frames in order, with boundary markers
// between segments. Returning "" is a supported configuration meaning "render
// nothing", not a failure.
type RendererFunc func(msg, separator string, entries []Entry) string

// Defaults for a fresh Settings store.
const (
	DefaultChainDepthLimit = 10
	DefaultSeparatorToken  = "----------------------------------------"
)

// Setting names accepted by the dynamic Set path (and by config files).
const (
	settingChainDepthLimit = "chain_depth_limit"
	settingSeparatorToken  = "separator_token"
	settingRenderer        = "renderer"
)

// Settings holds the three tunables. The zero value is not usable; construct
// with NewSettings (or share the package-wide Default store).
type Settings struct {
	mu        sync.RWMutex
	limit     int
	separator string
	renderer  RendererFunc
}

// NewSettings returns a store with the default limit, separator, and renderer.
func NewSettings() *Settings {
	return &Settings{
		limit:     DefaultChainDepthLimit,
		separator: DefaultSeparatorToken,
		renderer:  DefaultRenderer,
	}
}

// std is the process-wide store used by loops constructed with a nil Settings
// and by Stacktrace when it meets an error no shim ever bound.
var std = NewSettings()

// Default returns the process-wide Settings store.
func Default() *Settings { return std }

// ChainDepthLimit returns the current chain depth limit.
func (s *Settings) ChainDepthLimit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limit
}

// SetChainDepthLimit replaces the chain depth limit. Negative values are
// rejected with *SettingError; zero is valid and means "record no linkage at
// all" (root-only traces).
func (s *Settings) SetChainDepthLimit(n int) error {
	if n < 0 {
		return &SettingError{Setting: settingChainDepthLimit, Value: n, Reason: "must be a non-negative integer"}
	}
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
	return nil
}

// SeparatorToken returns the current chain-boundary token.
func (s *Settings) SeparatorToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.separator
}

// SetSeparatorToken replaces the boundary token. The empty string is rejected
// with *SettingError: a trace with invisible boundaries is worse than useless.
func (s *Settings) SetSeparatorToken(tok string) error {
	if tok == "" {
		return &SettingError{Setting: settingSeparatorToken, Value: tok, Reason: "must be a non-empty string"}
	}
	s.mu.Lock()
	s.separator = tok
	s.mu.Unlock()
	return nil
}

// Renderer returns the current renderer function.
func (s *Settings) Renderer() RendererFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderer
}

// SetRenderer replaces the renderer. nil is rejected with *SettingError.
func (s *Settings) SetRenderer(fn RendererFunc) error {
	if fn == nil {
		return &SettingError{Setting: settingRenderer, Value: nil, Reason: "must be a callable renderer"}
	}
	s.mu.Lock()
	s.renderer = fn
	s.mu.Unlock()
	return nil
}

// Set writes a setting by name with loosely-typed input. This is the path
// config files and flag plumbing use, so it applies the coercions a dynamic
// surface would:
//   - chain_depth_limit: integer kinds accepted as-is; floats are floored;
//     NaN, infinities, negatives, and non-numbers are rejected.
//   - separator_token: nil and "" rejected; any other value is coerced with
//     fmt.Sprint.
//   - renderer: must be a RendererFunc (or compatible func); nil rejected.
//
// Unknown names are rejected with *SettingError.
func (s *Settings) Set(name string, value any) error {
	switch strings.ToLower(name) {
	case settingChainDepthLimit:
		n, err := coerceLimit(value)
		if err != nil {
			return err
		}
		return s.SetChainDepthLimit(n)

	case settingSeparatorToken:
		if value == nil {
			return &SettingError{Setting: settingSeparatorToken, Value: nil, Reason: "must be a non-empty string"}
		}
		return s.SetSeparatorToken(fmt.Sprint(value))

	case settingRenderer:
		switch fn := value.(type) {
		case RendererFunc:
			return s.SetRenderer(fn)
		case func(string, string, []Entry) string:
			return s.SetRenderer(fn)
		default:
			return &SettingError{Setting: settingRenderer, Value: value, Reason: "must be a callable renderer"}
		}

	default:
		return &SettingError{Setting: name, Value: value, Reason: "unknown setting"}
	}
}

// coerceLimit applies the numeric coercion rules of the dynamic Set path:
// floor floats, reject NaN/Inf, reject negatives, reject non-numbers.
func coerceLimit(value any) (int, error) {
	reject := func(reason string) (int, error) {
		return 0, &SettingError{Setting: settingChainDepthLimit, Value: value, Reason: reason}
	}
	switch n := value.(type) {
	case int:
		if n < 0 {
			return reject("must be a non-negative integer")
		}
		return n, nil
	case int64:
		if n < 0 {
			return reject("must be a non-negative integer")
		}
		return int(n), nil
	case uint:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return reject("must be a finite number")
		}
		if n < 0 {
			return reject("must be a non-negative integer")
		}
		return int(math.Floor(n)), nil
	case float32:
		return coerceLimit(float64(n))
	default:
		return reject("must be a number")
	}
}
