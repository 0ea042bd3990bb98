package workflow

// Properties is an ordered property bag whose entries are either static
// values or references to sweep variables. References are read when the bag
// is resolved, so one bag serves every sweep point.
type Properties struct {
	keys []string
	refs map[string]propertyRef
}

type propertyRef struct {
	value any
	v     Variable
}

func (r propertyRef) get() any {
	if r.v != nil {
		return r.v.Value()
	}
	return r.value
}

// NewProperties creates an empty bag.
func NewProperties() *Properties {
	return &Properties{refs: make(map[string]propertyRef)}
}

func (p *Properties) put(key string, r propertyRef) {
	if p.refs == nil {
		p.refs = make(map[string]propertyRef)
	}
	if _, ok := p.refs[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.refs[key] = r
}

// Set stores a static value under key.
func (p *Properties) Set(key string, value any) *Properties {
	p.put(key, propertyRef{value: value})
	return p
}

// SetVariable makes key follow v.
func (p *Properties) SetVariable(key string, v Variable) *Properties {
	p.put(key, propertyRef{v: v})
	return p
}

// Get returns the current value of key.
func (p *Properties) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	r, ok := p.refs[key]
	if !ok {
		return nil, false
	}
	return r.get(), true
}

// Variable returns the variable key refers to, if any.
func (p *Properties) Variable(key string) (Variable, bool) {
	if p == nil {
		return nil, false
	}
	r, ok := p.refs[key]
	return r.v, ok && r.v != nil
}

// Keys returns the keys in insertion order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

// Len returns the number of entries.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Resolve snapshots every entry at the variables' current values.
func (p *Properties) Resolve() map[string]any {
	out := make(map[string]any, p.Len())
	if p == nil {
		return out
	}
	for _, k := range p.keys {
		out[k] = p.refs[k].get()
	}
	return out
}
