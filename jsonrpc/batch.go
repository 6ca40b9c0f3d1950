package jsonrpc

import "mini-jsonrpc/value"

// Call is the untyped view of an Element, used to put calls with different
// result types into one batch.
type Call interface {
	ID() ID
	Version() string
	Method() string
	Body() value.Value
	IsNotification() bool
	// Check decodes the response for this call and keeps only the error.
	Check(response value.Value) error
}

var _ Call = (*Element[value.Value])(nil)

// Factory stamps out elements that share a version and an id sequence.
type Factory struct {
	version string
	ids     IDGenerator
}

// NewFactory returns a factory. An empty version means Version, a nil
// generator means a fresh NumberIDGenerator.
func NewFactory(version string, ids IDGenerator) *Factory {
	if version == "" {
		version = Version
	}
	if ids == nil {
		ids = &NumberIDGenerator{}
	}
	return &Factory{version: version, ids: ids}
}

func (f *Factory) Version() string { return f.version }

// Make builds an element for req. Notifications do not consume an id.
func Make[R any](f *Factory, req Request[R]) *Element[R] {
	var id ID
	if !isNotification(req) {
		id = f.ids.Next()
	}
	return NewElement(req, f.version, id)
}

// Batch is an ordered group of calls sent as one payload.
type Batch struct {
	calls []Call
}

func NewBatch(calls ...Call) *Batch {
	cp := make([]Call, len(calls))
	copy(cp, calls)
	return &Batch{calls: cp}
}

func (b *Batch) Len() int { return len(b.calls) }

func (b *Batch) Calls() []Call {
	cp := make([]Call, len(b.calls))
	copy(cp, b.calls)
	return cp
}

// Body is the single request object for one call and an array otherwise.
func (b *Batch) Body() value.Value {
	if len(b.calls) == 1 {
		return b.calls[0].Body()
	}
	items := make([]value.Value, len(b.calls))
	for i, c := range b.calls {
		items[i] = c.Body()
	}
	return value.Array(items...)
}

// ExpectsResponse is false when every call in the batch is a notification.
func (b *Batch) ExpectsResponse() bool {
	for _, c := range b.calls {
		if !c.IsNotification() {
			return true
		}
	}
	return false
}

// Check decodes response for every call that expects one and returns the
// failures keyed by position. A nil map means every call succeeded.
func (b *Batch) Check(response value.Value) map[int]error {
	var failed map[int]error
	for i, c := range b.calls {
		if c.IsNotification() {
			continue
		}
		if err := c.Check(response); err != nil {
			if failed == nil {
				failed = make(map[int]error)
			}
			failed[i] = err
		}
	}
	return failed
}
