package value

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

// M is shorthand for building a Member.
func M(key string, v Value) Member { return Member{Key: key, Value: v} }

// Object is an ordered mapping from text keys to values.
//
// Duplicate keys keep the position of their first occurrence and the value of
// the last one, which matches what encoding/json does with repeated keys.
type Object struct {
	keys  []string
	index map[string]Value
}

// NewObject builds an object from members in order.
func NewObject(members ...Member) *Object {
	o := &Object{
		keys:  make([]string, 0, len(members)),
		index: make(map[string]Value, len(members)),
	}
	for _, m := range members {
		o.put(m.Key, m.Value)
	}
	return o
}

// put is only used while an object is being built.
func (o *Object) put(key string, v Value) {
	if _, ok := o.index[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.index[key] = v
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.index[key]
	return v, ok
}

func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Keys returns the member keys in order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	cp := make([]string, len(o.keys))
	copy(cp, o.keys)
	return cp
}

// Members returns the members in order.
func (o *Object) Members() []Member {
	if o == nil {
		return nil
	}
	out := make([]Member, len(o.keys))
	for i, k := range o.keys {
		out[i] = Member{Key: k, Value: o.index[k]}
	}
	return out
}

// With returns a copy of o with key set to v. The receiver is not modified.
func (o *Object) With(key string, v Value) *Object {
	cp := NewObject(o.Members()...)
	cp.put(key, v)
	return cp
}

func (o *Object) equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	for _, k := range o.Keys() {
		ov, ok := other.Get(k)
		if !ok {
			return false
		}
		v, _ := o.Get(k)
		if !Equal(v, ov) {
			return false
		}
	}
	return true
}
