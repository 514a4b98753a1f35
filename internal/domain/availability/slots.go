package availability

import "time"

// Slot is an offerable appointment start.
type Slot struct {
	StartTime    TimeOfDay `json:"startTime"`
	DisplayLabel string    `json:"displayLabel"`
}

func NewSlot(start TimeOfDay) Slot {
	return Slot{StartTime: start, DisplayLabel: start.Label()}
}

// SlotSequence is the ordered run of slot starts in [open, close) spaced by
// a fixed step. Every start satisfies start+step <= close, so a trailing
// partial slot is never produced. It holds no state and can be iterated any
// number of times.
type SlotSequence struct {
	open, close TimeOfDay
	step        int
}

// NewSlotSequence builds the sequence for a window. A step below one minute,
// or a window with open >= close, yields an empty sequence.
func NewSlotSequence(open, close TimeOfDay, step time.Duration) SlotSequence {
	return SlotSequence{open: open, close: close, step: int(step / time.Minute)}
}

// Len is the number of slots without materialising them.
func (s SlotSequence) Len() int {
	if s.step <= 0 || s.close <= s.open {
		return 0
	}
	return int(s.close-s.open) / s.step
}

// Iter returns a fresh cursor positioned before the first slot.
func (s SlotSequence) Iter() *SlotCursor {
	return &SlotCursor{seq: s}
}

// All collects the sequence.
func (s SlotSequence) All() []TimeOfDay {
	out := make([]TimeOfDay, 0, s.Len())
	for it := s.Iter(); ; {
		t, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

// SlotCursor walks a SlotSequence lazily.
type SlotCursor struct {
	seq SlotSequence
	i   int
}

// Next returns the next slot start, or false when the sequence is exhausted.
func (c *SlotCursor) Next() (TimeOfDay, bool) {
	if c.i >= c.seq.Len() {
		return 0, false
	}
	t := c.seq.open + TimeOfDay(c.i*c.seq.step)
	c.i++
	return t, true
}
