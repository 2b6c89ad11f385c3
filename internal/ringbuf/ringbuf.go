// Package ringbuf provides the bounded per-instrument candle history.
// A Ring is owned by exactly one feed task and is not safe for concurrent
// use; no locking is done inside.
package ringbuf

import "candle-alerts/internal/model"

// DefaultCapacity is the history length kept per instrument.
const DefaultCapacity = 500

// Ring is a fixed-capacity candle history ordered by OpenTime.
// When full, appending overwrites the oldest entry.
type Ring struct {
	buf   []model.Candle
	start int // index of the oldest entry
	n     int

	evicted uint64
	stale   uint64
}

// New creates a ring holding at most capacity candles.
// Non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]model.Candle, capacity)}
}

// Kind says what an Upsert did with the update.
type Kind uint8

const (
	Appended Kind = iota
	Replaced
	Stale
)

// Change describes the effect of one Upsert.
type Change struct {
	Kind Kind
	// Closed is set when the update closed a bar that was not closed
	// before: a closed bar appended, or a forming bar replaced by its
	// closed update. A repeated closed update does not set it.
	Closed bool
	// Sealed is set when the previous newest bar was still open and was
	// marked closed because a newer bar arrived.
	Sealed bool
}

// Upsert inserts or replaces a candle. O(1).
//
//   - same OpenTime as the newest entry: the newest entry is replaced, unless
//     it is already closed and the update is not (late forming update).
//   - older OpenTime than the newest entry: dropped.
//   - newer OpenTime: appended, evicting the oldest entry when full. A still
//     open predecessor is sealed as closed, since its interval has elapsed.
func (r *Ring) Upsert(c model.Candle) Change {
	var ch Change
	if r.n > 0 {
		li := r.index(r.n - 1)
		last := &r.buf[li]
		switch {
		case c.OpenTime == last.OpenTime:
			if last.IsClosed && !c.IsClosed {
				r.stale++
				return Change{Kind: Stale}
			}
			ch = Change{Kind: Replaced, Closed: c.IsClosed && !last.IsClosed}
			*last = c
			return ch
		case c.OpenTime < last.OpenTime:
			r.stale++
			return Change{Kind: Stale}
		}
		ch.Sealed = !last.IsClosed
		last.IsClosed = true
	}
	ch.Kind = Appended
	ch.Closed = c.IsClosed

	if r.n < len(r.buf) {
		r.buf[r.index(r.n)] = c
		r.n++
		return ch
	}

	// Full: overwrite the oldest slot and advance.
	r.buf[r.start] = c
	r.start = (r.start + 1) % len(r.buf)
	r.evicted++
	return ch
}

// History returns a copy of all retained candles, oldest first.
func (r *Ring) History() []model.Candle {
	out := make([]model.Candle, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[r.index(i)]
	}
	return out
}

// Closed returns the history without a trailing forming candle.
func (r *Ring) Closed() []model.Candle {
	h := r.History()
	if len(h) > 0 && !h[len(h)-1].IsClosed {
		h = h[:len(h)-1]
	}
	return h
}

// Last returns the newest candle.
func (r *Ring) Last() (model.Candle, bool) {
	if r.n == 0 {
		return model.Candle{}, false
	}
	return r.buf[r.index(r.n-1)], true
}

// Len returns the current number of candles held.
func (r *Ring) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Evicted returns how many candles were dropped from the oldest end.
func (r *Ring) Evicted() uint64 { return r.evicted }

// Stale returns how many out-of-order or late updates were ignored.
func (r *Ring) Stale() uint64 { return r.stale }

func (r *Ring) index(i int) int {
	return (r.start + i) % len(r.buf)
}
