package expression

// Scope resolves the root identifiers of an expression.
type Scope interface {
	Lookup(name string) (any, bool)
}

// MapScope is a Scope backed by a plain map.
type MapScope map[string]any

// Lookup implements Scope.
func (m MapScope) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Overlay returns a scope where extra shadows base.
func Overlay(base Scope, extra map[string]any) Scope {
	if len(extra) == 0 {
		return base
	}
	return overlay{base: base, extra: extra}
}

type overlay struct {
	base  Scope
	extra map[string]any
}

func (o overlay) Lookup(name string) (any, bool) {
	if v, ok := o.extra[name]; ok {
		return v, true
	}
	if o.base == nil {
		return nil, false
	}
	return o.base.Lookup(name)
}
