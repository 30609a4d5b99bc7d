// Package hypertable implements the reducer map (spec §4.5):
// an open-addressing hash table below which, under MinHTCapacity, a plain
// linear array is used instead; keys are pointer-identity (uintptr)
// reducer handles, values are views paired with their reduction function.
// Deletion uses graveyard tombstones; insertion uses Robin-Hood-style
// displacement so that probe-sequence-length comparisons prove absence
// without scanning to an empty slot.
package hypertable

import (
	"github.com/cilkgo/cilk/internal/debugrt"
)

const (
	// MinCapacity is a lower capacity bound used by the boundary tests;
	// a hashed table never shrinks below MinHTCapacity (see growTarget).
	MinCapacity = 4
	// MinHTCapacity is the threshold below which the table degenerates
	// to a linear array (spec §3: "Below MIN_HT_CAPACITY the table is a
	// linear array").
	MinHTCapacity = 8
)

// ReduceFunc merges src into dst in place. Called exactly once per paired
// view, in strict left-to-right strand order (spec §4.5).
type ReduceFunc func(dst, src any)

// View is a single strand's value for one reducer key plus the function
// that knows how to fold another view of the same key into it.
type View struct {
	Value  any
	Reduce ReduceFunc
}

type slotState uint8

const (
	slotEmpty slotState = iota
	slotTombstone
	slotOccupied
)

type slot struct {
	state slotState
	key   uintptr
	view  *View
	psl   int // probe sequence length at time of insertion
}

// Table is a reducer map with no internal locking. The scheduler keeps one
// per closure and reads or changes it only under that closure's mutex or
// after detaching it, so a Table can pass between worker goroutines but is
// never used by two at once.
type Table struct {
	slots      []slot // nil/empty while linear
	linear     []linearEntry
	occupancy  int
	tombstones int
}

type linearEntry struct {
	key  uintptr
	view *View
}

// New returns an empty table, starting in linear mode.
func New() *Table {
	return &Table{}
}

func hash(key uintptr) uint64 {
	h := uint64(key)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

func (t *Table) capacity() int { return len(t.slots) }

func (t *Table) isHashed() bool { return t.slots != nil }

// Lookup returns the view for key, if present.
func (t *Table) Lookup(key uintptr) (*View, bool) {
	if !t.isHashed() {
		for _, e := range t.linear {
			if e.key == key {
				return e.view, true
			}
		}
		return nil, false
	}
	mask := uint64(t.capacity() - 1)
	idx := hash(key) & mask
	psl := 0
	for {
		s := &t.slots[idx]
		switch s.state {
		case slotEmpty:
			return nil, false
		case slotOccupied:
			if s.key == key {
				return s.view, true
			}
			if s.psl < psl {
				return nil, false
			}
		}
		idx = (idx + 1) & mask
		psl++
		if psl > t.capacity() {
			return nil, false
		}
	}
}

// Insert adds or overwrites the view stored for key.
func (t *Table) Insert(key uintptr, view *View) {
	if !t.isHashed() {
		for i, e := range t.linear {
			if e.key == key {
				t.linear[i].view = view
				return
			}
		}
		t.linear = append(t.linear, linearEntry{key: key, view: view})
		t.occupancy++
		if len(t.linear) >= MinHTCapacity {
			t.promoteToHashed()
		}
		return
	}

	if t.needsRebuild() {
		t.rebuild(t.growTarget())
	}
	t.insertHashed(key, view)
}

func (t *Table) insertHashed(key uintptr, view *View) {
	mask := uint64(t.capacity() - 1)
	idx := hash(key) & mask
	entry := slot{state: slotOccupied, key: key, view: view, psl: 0}

	for probes := 0; ; probes++ {
		debugrt.Assert(probes <= t.capacity()*4, "hypertable", "insert probe overflow, capacity=%d", t.capacity())
		cur := &t.slots[idx]
		switch cur.state {
		case slotEmpty:
			*cur = entry
			t.occupancy++
			return
		case slotTombstone:
			*cur = entry
			t.occupancy++
			t.tombstones--
			return
		case slotOccupied:
			if cur.key == entry.key {
				cur.view = entry.view
				return
			}
			if cur.psl < entry.psl {
				entry, *cur = *cur, entry
			}
			entry.psl++
		}
		idx = (idx + 1) & mask
	}
}

// Remove deletes key's view, tombstoning its slot and compacting the
// following run when possible. Reports whether key was present.
func (t *Table) Remove(key uintptr) bool {
	if !t.isHashed() {
		for i, e := range t.linear {
			if e.key == key {
				t.linear = append(t.linear[:i], t.linear[i+1:]...)
				t.occupancy--
				return true
			}
		}
		return false
	}

	mask := uint64(t.capacity() - 1)
	idx := hash(key) & mask
	psl := 0
	for {
		cur := &t.slots[idx]
		switch cur.state {
		case slotEmpty:
			return false
		case slotOccupied:
			if cur.key == key {
				*cur = slot{state: slotTombstone}
				t.occupancy--
				t.tombstones++
				t.backwardShift(idx)
				if t.needsRebuild() {
					t.rebuild(t.shrinkTarget())
				}
				return true
			}
			if cur.psl < psl {
				return false
			}
		}
		idx = (idx + 1) & mask
		psl++
		if psl > t.capacity() {
			return false
		}
	}
}

// backwardShift pulls the following run of occupied entries back over a
// freshly tombstoned slot while they still want an earlier index,
// bounding tombstone accumulation (spec §4.5 remove()).
func (t *Table) backwardShift(hole uint64) {
	mask := uint64(t.capacity() - 1)
	j := hole
	for {
		next := (j + 1) & mask
		ns := t.slots[next]
		if ns.state != slotOccupied || ns.psl == 0 {
			return
		}
		ns.psl--
		t.slots[j] = ns
		t.slots[next] = slot{state: slotTombstone}
		j = next
	}
}

func (t *Table) needsRebuild() bool {
	cap := t.capacity()
	if cap == 0 {
		return false
	}
	if t.occupancy*16 > cap*15 {
		return true
	}
	if t.tombstones*4*16 > cap {
		return true
	}
	if t.occupancy*16 <= cap*7 && cap/2 >= MinHTCapacity {
		return true
	}
	return false
}

func (t *Table) growTarget() int {
	cap := t.capacity()
	if cap == 0 {
		return MinHTCapacity
	}
	if t.occupancy*16 > cap*15 {
		return cap * 2
	}
	if t.occupancy*16 <= cap*7 {
		target := cap / 2
		if target < MinHTCapacity {
			target = MinHTCapacity
		}
		return target
	}
	return cap // tombstone-only rebuild, same size
}

func (t *Table) shrinkTarget() int { return t.growTarget() }

func (t *Table) promoteToHashed() {
	entries := t.linear
	t.linear = nil
	t.slots = make([]slot, MinHTCapacity)
	t.occupancy = 0
	t.tombstones = 0
	for _, e := range entries {
		t.insertHashed(e.key, e.view)
	}
}

func (t *Table) rebuild(newCap int) {
	if newCap < MinHTCapacity {
		// Degenerate back to linear representation.
		old := t.slots
		t.slots = nil
		t.occupancy = 0
		t.tombstones = 0
		t.linear = nil
		for _, s := range old {
			if s.state == slotOccupied {
				t.Insert(s.key, s.view)
			}
		}
		return
	}
	old := t.slots
	t.slots = make([]slot, newCap)
	t.occupancy = 0
	t.tombstones = 0
	for _, s := range old {
		if s.state == slotOccupied {
			t.insertHashed(s.key, s.view)
		}
	}
}

// ForEach visits every occupied entry. Order is unspecified; callers
// needing left-to-right strand order must not rely on table iteration
// order for that (strand order is established by the caller of Merge,
// not by table layout).
func (t *Table) ForEach(fn func(key uintptr, v *View)) {
	if !t.isHashed() {
		for _, e := range t.linear {
			fn(e.key, e.view)
		}
		return
	}
	for _, s := range t.slots {
		if s.state == slotOccupied {
			fn(s.key, s.view)
		}
	}
}

// Len returns the number of live entries.
func (t *Table) Len() int { return t.occupancy }

// Merge folds right into left (or left into right, whichever table is
// larger is kept as the destination for efficiency) and returns the
// surviving table. Regardless of which physical table survives, the
// logical reduction order is always left-then-right (spec §4.5): when the
// physical destination is the right table, the reduce call's argument
// order is swapped so the left view is always the one mutated in place,
// and its result is what ends up stored at the destination key.
func Merge(left, right *Table) *Table {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	if left.Len() == 0 {
		return right
	}
	if right.Len() == 0 {
		return left
	}

	dst, src := left, right
	leftIsDst := true
	if right.Len() > left.Len() {
		dst, src = right, left
		leftIsDst = false
	}

	src.ForEach(func(key uintptr, srcView *View) {
		if dstView, ok := dst.Lookup(key); ok {
			if leftIsDst {
				dstView.Reduce(dstView.Value, srcView.Value)
			} else {
				srcView.Reduce(srcView.Value, dstView.Value)
				dst.Insert(key, srcView)
			}
		} else {
			dst.Insert(key, srcView)
		}
	})
	return dst
}
