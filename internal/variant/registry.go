package variant

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Tag is the dense identifier of a registered variant.
type Tag uint32

// Operation is the behaviour of one variant. It receives the payload bytes
// of a single record, exactly the variant's declared size, and must treat
// them as read-only.
type Operation[O any] func(payload []byte) (O, error)

// Entry is one registered variant.
type Entry[O any] struct {
	Tag    Tag
	Label  string
	Op     Operation[O]
	Layout Layout
}

// Layouts is the read-only view of a sealed variant set that record storage
// needs. *Registry implements it.
type Layouts interface {
	Sealed() bool
	Capacity() int
	PayloadSize(tag Tag) (int, error)
}

// Option configures a Registry.
type Option func(*config)

type config struct {
	maxPayload int
}

// WithMaxPayload sets the inline payload cap in bytes.
//
// Default: DefaultMaxPayload (two cache lines).
func WithMaxPayload(n int) Option {
	return func(c *config) {
		c.maxPayload = n
	}
}

// Registry is the closed mapping from tag to operation and payload layout.
//
// Registration is not synchronized: populate and Seal from one goroutine
// during setup. After Seal the Registry is immutable.
type Registry[O any] struct {
	entries    []Entry[O]
	byLabel    map[string]Tag
	maxPayload int
	sealed     bool
	capacity   int
}

// NewRegistry creates an empty, open Registry.
func NewRegistry[O any](opts ...Option) *Registry[O] {
	cfg := config{maxPayload: DefaultMaxPayload}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry[O]{
		byLabel:    make(map[string]Tag),
		maxPayload: cfg.maxPayload,
	}
}

// NormalizeLabel trims surrounding space and applies Unicode NFC, so that
// visually identical labels compare equal.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// Register adds a variant and returns its tag.
//
// All checks run before any mutation, so a failed Register leaves the
// Registry exactly as it was.
func (r *Registry[O]) Register(label string, op Operation[O], layout Layout) (Tag, error) {
	if r.sealed {
		return 0, &Error{Code: CodeRegistryClosed, Message: "registry is sealed", Label: label}
	}
	label = NormalizeLabel(label)
	if label == "" {
		return 0, &Error{Code: CodeInvalidLabel, Message: "label must be non-empty"}
	}
	if op == nil {
		return 0, &Error{Code: CodeInvalidOperation, Message: "operation must be non-nil", Label: label}
	}
	if tag, dup := r.byLabel[label]; dup {
		return 0, &Error{Code: CodeDuplicateLabel, Message: "label already registered", Label: label, Tag: tag, HasTag: true}
	}
	if err := layout.Validate(); err != nil {
		return 0, fmt.Errorf("register %q: %w", label, err)
	}
	if layout.Size > r.maxPayload {
		return 0, &Error{
			Code:    CodeOversizedPayload,
			Message: fmt.Sprintf("payload of %d bytes exceeds cap of %d", layout.Size, r.maxPayload),
			Label:   label,
		}
	}

	tag := Tag(len(r.entries))
	r.entries = append(r.entries, Entry[O]{
		Tag:    tag,
		Label:  label,
		Op:     op,
		Layout: layout,
	})
	r.byLabel[label] = tag
	return tag, nil
}

// MustRegister is Register for setup code that cannot recover.
func (r *Registry[O]) MustRegister(label string, op Operation[O], layout Layout) Tag {
	tag, err := r.Register(label, op, layout)
	if err != nil {
		panic(err)
	}
	return tag
}

// Seal closes registration and fixes Capacity to the largest payload size
// rounded up to the largest alignment. Sealing twice is a no-op.
func (r *Registry[O]) Seal() error {
	if r.sealed {
		return nil
	}
	maxSize, maxAlign := 0, 1
	for _, e := range r.entries {
		if e.Layout.Size > maxSize {
			maxSize = e.Layout.Size
		}
		if e.Layout.Align > maxAlign {
			maxAlign = e.Layout.Align
		}
	}
	r.capacity = AlignSize(maxSize, maxAlign)
	r.sealed = true
	return nil
}

// Sealed reports whether Seal has been called.
func (r *Registry[O]) Sealed() bool {
	return r.sealed
}

// Capacity is the inline payload capacity of every Record drawn from this
// Registry. It is 0 until the Registry is sealed.
func (r *Registry[O]) Capacity() int {
	return r.capacity
}

// MaxPayload returns the configured inline payload cap.
func (r *Registry[O]) MaxPayload() int {
	return r.maxPayload
}

// Len returns the number of registered variants.
func (r *Registry[O]) Len() int {
	return len(r.entries)
}

// Lookup returns the entry for tag.
func (r *Registry[O]) Lookup(tag Tag) (Entry[O], error) {
	if int(tag) >= len(r.entries) {
		return Entry[O]{}, unknownTag(tag, "tag was never registered")
	}
	return r.entries[tag], nil
}

// PayloadSize returns the declared payload size of tag.
func (r *Registry[O]) PayloadSize(tag Tag) (int, error) {
	if int(tag) >= len(r.entries) {
		return 0, unknownTag(tag, "tag was never registered")
	}
	return r.entries[tag].Layout.Size, nil
}

// TagOf returns the tag registered under label.
func (r *Registry[O]) TagOf(label string) (Tag, error) {
	label = NormalizeLabel(label)
	tag, ok := r.byLabel[label]
	if !ok {
		return 0, &Error{Code: CodeUnknownTag, Message: "no variant with this label", Label: label}
	}
	return tag, nil
}

// Entries returns a copy of the registered entries in tag order.
func (r *Registry[O]) Entries() []Entry[O] {
	out := make([]Entry[O], len(r.entries))
	copy(out, r.entries)
	return out
}
