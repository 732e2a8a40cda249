package templatex

import (
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"
)

// CacheTTL is how long a rendered template is reused without recomputation.
const CacheTTL = 60 * time.Second

// PlaceholderPattern matches %name% tokens. It is non-greedy and non-nested;
// a lone % with no closing partner never matches.
var PlaceholderPattern = regexp.MustCompile(`%([^%]+)%`)

// Producer lazily computes a placeholder value at render time.
type Producer func() (string, error)

type bindingKind uint8

const (
	literalBinding bindingKind = iota
	lazyBinding
)

// Binding is the value bound to a placeholder: either a literal string or a
// Producer invoked on every (re-)render.
type Binding struct {
	kind    bindingKind
	literal string
	produce Producer
}

// Literal binds the string form of v.
func Literal(v any) Binding {
	if s, ok := v.(string); ok {
		return Binding{kind: literalBinding, literal: s}
	}
	return Binding{kind: literalBinding, literal: fmt.Sprint(v)}
}

// Lazy binds a producer.
func Lazy(fn Producer) Binding {
	return Binding{kind: lazyBinding, produce: fn}
}

// IsLazy reports whether the binding is a producer.
func (b Binding) IsLazy() bool {
	return b.kind == lazyBinding
}

// Value resolves the binding.
func (b Binding) Value() (string, error) {
	if b.kind == lazyBinding {
		if b.produce == nil {
			return "", nil
		}
		return b.produce()
	}
	return b.literal, nil
}

// State describes whether a Template's rendered cache may be returned as is.
type State uint8

const (
	// StateEmpty: never rendered (or the last render produced nothing).
	StateEmpty State = iota
	// StateValid: cached output is fresh.
	StateValid
	// StateStale: cached output exists but is at least CacheTTL old.
	StateStale
	// StateForcedDirty: a lazy binding changed; the next render recomputes.
	StateForcedDirty
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateValid:
		return "valid"
	case StateStale:
		return "stale"
	case StateForcedDirty:
		return "forced-dirty"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Filter post-processes rendered output before it is cached.
type Filter func(string) (string, error)

// Option configures a Template.
type Option func(*Template)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Template) {
		if now != nil {
			t.now = now
		}
	}
}

// WithFilter installs an output filter such as HTML minification.
func WithFilter(f Filter) Option {
	return func(t *Template) {
		t.filter = f
	}
}

// Template performs %name% substitution over an immutable source text and
// caches the result for CacheTTL.
//
// Setting a literal binding does not invalidate the cache: a template rendered
// within the TTL keeps serving the old literal until it expires or a lazy
// binding is set or a binding is unset. Render is safe for concurrent use; a
// per-template mutex covers the check, the render and the store.
type Template struct {
	mu         sync.Mutex
	source     string
	bindings   map[string]Binding
	rendered   string
	renderedAt time.Time
	state      State
	now        func() time.Time
	filter     Filter
}

// New constructs a Template over source.
func New(source string, opts ...Option) *Template {
	t := &Template{
		source:   source,
		bindings: make(map[string]Binding),
		state:    StateEmpty,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FromFile reads the template source from path.
func FromFile(path string, opts ...Option) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return New(string(data), opts...), nil
}

// Source returns the unprocessed template text.
func (t *Template) Source() string {
	return t.source
}

// Set binds a literal value.
func (t *Template) Set(name string, value any) {
	t.Bind(name, Literal(value))
}

// SetLazy binds a producer and forces the next render to recompute.
func (t *Template) SetLazy(name string, fn Producer) {
	t.Bind(name, Lazy(fn))
}

// Bind upserts a binding.
func (t *Template) Bind(name string, b Binding) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bindings[name] = b
	if b.IsLazy() {
		t.forceDirty()
	}
}

// Unset removes a binding and forces the next render to recompute.
func (t *Template) Unset(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bindings, name)
	t.forceDirty()
}

// Invalidate forces the next render to recompute.
func (t *Template) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forceDirty()
}

func (t *Template) forceDirty() {
	t.state = StateForcedDirty
}

// State reports the current cache state.
func (t *Template) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentState()
}

func (t *Template) currentState() State {
	switch t.state {
	case StateValid:
		if t.rendered == "" {
			return StateEmpty
		}
		if t.now().Sub(t.renderedAt) >= CacheTTL {
			return StateStale
		}
		return StateValid
	default:
		return t.state
	}
}

// Render returns the substituted text, reusing the cached output while it is
// valid. A producer error aborts the render and leaves the cache untouched.
func (t *Template) Render() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.currentState() == StateValid {
		return t.rendered, nil
	}

	out, err := t.substitute()
	if err != nil {
		return "", err
	}
	if t.filter != nil {
		if out, err = t.filter(out); err != nil {
			return "", fmt.Errorf("filter template output: %w", err)
		}
	}

	t.rendered = out
	t.renderedAt = t.now()
	t.state = StateValid
	return out, nil
}

func (t *Template) substitute() (string, error) {
	var firstErr error
	out := PlaceholderPattern.ReplaceAllStringFunc(t.source, func(token string) string {
		if firstErr != nil {
			return ""
		}
		name := token[1 : len(token)-1]
		binding, ok := t.bindings[name]
		if !ok {
			return ""
		}
		value, err := binding.Value()
		if err != nil {
			firstErr = fmt.Errorf("placeholder %q: %w", name, err)
			return ""
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
