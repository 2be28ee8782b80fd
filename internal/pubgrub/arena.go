package pubgrub

// ID is an arena handle: a stable, cheap-to-copy reference to a value
// stored in an Arena, replacing the Rust crate's arena index + lifetime
// with a plain integer.
type ID int

// Arena is an append-only store of values of type T, addressed by ID. Values
// are never removed, so IDs remain valid for the arena's whole lifetime —
// the same property the vendored Rust `arena.rs` relies on to let
// incompatibilities cheaply reference their causes.
type Arena[T any] struct {
	items []T
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Alloc appends v and returns its ID.
func (a *Arena[T]) Alloc(v T) ID {
	a.items = append(a.items, v)

	return ID(len(a.items) - 1)
}

// Get dereferences id.
func (a *Arena[T]) Get(id ID) T {
	return a.items[id]
}
