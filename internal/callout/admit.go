package callout

// Admission is the routing decision computed by Check: where the callout
// will live, its deadline, and the stored value handed back to the caller.
// It must be passed to Add before any other scheduler call; bucket routing
// is only valid for the wheel position at Check time.
type Admission struct {
	q        *cbuf // destination list; nil routes to the heap
	t        uint32
	m        uint16
	stored   uint32
	disabled bool
}

// Stored returns the stored deadline value for the admitted callout. The
// caller keeps it; Remove and Remaining take it back.
func (a Admission) Stored() uint32 {
	return a.stored
}

// Immediate reports whether the callout was routed to the immediate list.
func (a Admission) Immediate() bool {
	return a.q != nil && a.t == 0
}

// Disabled reports whether callouts are disabled entirely (capacity 0);
// Add will be a no-op.
func (a Admission) Disabled() bool {
	return a.disabled
}

// Check decides if, and how, n new callouts with the given delay can be
// added. delay is in whole seconds; mdelay is an additional millisecond
// delay, or NoMillis for second precision. Zero delay routes to the
// immediate list; short second-precise delays to the wheel; everything else
// to the heap.
//
// With capacity 0 the admission silently no-ops: the returned Admission
// makes Add do nothing.
func (s *Scheduler) Check(n uint16, delay int32, mdelay uint16) (Admission, error) {
	if s.cotabsz == 0 {
		// callouts are disabled
		return Admission{disabled: true}, nil
	}

	if uint32(s.queuebrk)+uint32(s.nshort)+uint32(n) > uint32(s.cotabsz) {
		return Admission{}, ErrTooMany
	}
	if delay < 0 {
		return Admission{}, ErrTooLong
	}

	var adm Admission
	if delay == 0 && (mdelay == 0 || mdelay == NoMillis) {
		// immediate callout
		adm.q = &s.immediate
		return adm, nil
	}

	// delayed callout
	t, m := s.now()
	if t+uint32(delay)+1 <= t {
		return Admission{}, ErrTooLong
	}
	t += uint32(delay)
	if mdelay != NoMillis {
		m += mdelay
		if m >= 1000 {
			m -= 1000
			t++
		}
	} else {
		m = 0
	}

	if mdelay == NoMillis && t < s.timestamp+cycbufSize {
		// use the wheel
		adm.q = &s.cycbuf[t&cycbufMask]
	} else {
		// use the heap
		adm.q = nil
	}
	adm.t = t
	adm.m = m

	if mdelay == NoMillis {
		adm.stored = t - s.timediff
	} else {
		adm.stored = s.encode(t, m)
	}
	return adm, nil
}

// Add enqueues a callout for the given object under the routing decided by
// Check. The alarm is re-armed when the new deadline undercuts it.
func (s *Scheduler) Add(handle Handle, obj ObjectID, adm Admission) {
	if adm.disabled {
		return
	}

	var co *callout
	if adm.q != nil {
		co = s.newShort(adm.q, adm.t)
	} else {
		co = s.enqueue(adm.t, adm.m)
	}
	co.handle = handle
	co.oindex = obj
}

// Remove cancels the callout identified by (obj, handle, stored). The
// stored deadline locates it: the immediate and running lists for expired
// deadlines, the addressed wheel bucket within the wheel window, and the
// heap otherwise. A callout found nowhere means the table is corrupted and
// the process must not continue.
func (s *Scheduler) Remove(obj ObjectID, handle Handle, stored uint32) {
	var t uint32
	if stored>>24 == 1 {
		t, _ = s.decode(stored)
	} else {
		t = stored + s.timediff
	}

	if t <= s.timestamp {
		// possibly an immediate callout
		if s.rmShort(&s.immediate, obj, handle, 0) ||
			s.rmShort(&s.running, obj, handle, 0) {
			return
		}
	}
	if stored>>24 != 1 && t < s.timestamp+cycbufSize {
		// within the wheel window
		if s.rmShort(&s.cycbuf[t&cycbufMask], obj, handle, t) {
			return
		}
	}

	// not on any short list, so it must be in the heap
	for i := cindex(1); i <= s.queuebrk; i++ {
		if s.tab[i].oindex == obj && s.tab[i].handle == handle {
			s.dequeue(i)
			s.restart(0)
			return
		}
	}
	panic("callout: callout to remove not found; table corrupted")
}
