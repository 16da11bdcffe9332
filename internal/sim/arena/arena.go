// Package arena is a generational slot map. Removed slots are reused with a bumped
// generation so stale indices never resolve.
package arena

type Index struct {
	slot uint32
	gen  uint32
}

// Valid is false for the zero Index.
func (i Index) Valid() bool { return i.gen != 0 }

type entry[T any] struct {
	gen      uint32
	occupied bool
	value    T
}

type Arena[T any] struct {
	entries []entry[T]
	free    []uint32
	live    int
}

func New[T any]() *Arena[T] { return &Arena[T]{} }

func (a *Arena[T]) Insert(v T) Index {
	a.live++
	if n := len(a.free); n > 0 {
		slot := a.free[n-1]
		a.free = a.free[:n-1]
		e := &a.entries[slot]
		e.gen++
		e.occupied = true
		e.value = v
		return Index{slot: slot, gen: e.gen}
	}
	a.entries = append(a.entries, entry[T]{gen: 1, occupied: true, value: v})
	return Index{slot: uint32(len(a.entries) - 1), gen: 1}
}

func (a *Arena[T]) lookup(i Index) *entry[T] {
	if !i.Valid() || int(i.slot) >= len(a.entries) {
		return nil
	}
	e := &a.entries[i.slot]
	if !e.occupied || e.gen != i.gen {
		return nil
	}
	return e
}

func (a *Arena[T]) Get(i Index) (T, bool) {
	if e := a.lookup(i); e != nil {
		return e.value, true
	}
	var zero T
	return zero, false
}

func (a *Arena[T]) Remove(i Index) (T, bool) {
	e := a.lookup(i)
	if e == nil {
		var zero T
		return zero, false
	}
	v := e.value
	var zero T
	e.value = zero
	e.occupied = false
	a.free = append(a.free, i.slot)
	a.live--
	return v, true
}

func (a *Arena[T]) Len() int { return a.live }

// Each visits live values in slot order.
func (a *Arena[T]) Each(fn func(Index, T)) {
	for s := range a.entries {
		e := &a.entries[s]
		if e.occupied {
			fn(Index{slot: uint32(s), gen: e.gen}, e.value)
		}
	}
}
