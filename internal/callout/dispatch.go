package callout

import "context"

// Invoker runs one expired callout. Implementations resolve the object id,
// rehydrate the stored method name and arguments, and call the method. The
// bool result reports whether the method existed; a missing method drops
// the callout silently. The callback may reenter the scheduler through
// Check, Add and Remove.
type Invoker interface {
	Invoke(ctx context.Context, obj ObjectID, handle Handle) (bool, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, obj ObjectID, handle Handle) (bool, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, obj ObjectID, handle Handle) (bool, error) {
	return f(ctx, obj, handle)
}

// expire collects the callouts to run next: when the alarm has fired, it
// walks the wheel up to the observed time, splicing each matured bucket and
// every matured heap root onto the immediate list, then re-arms the alarm.
// The swap-rate windows advance as a side effect of the tick.
func (s *Scheduler) expire() {
	t, m, ok := s.clk.Expired()
	if ok {
		if t < s.timestamp {
			t, m = s.timestamp, 0
		} else if t > s.timestamp+s.maxLag {
			// a lot of lag: bound the batch
			t, m = s.timestamp+s.maxLag, 0
		}

		for s.timestamp < t {
			s.timestamp++

			// matured heap callouts
			for s.queuebrk != 0 && s.tab[1].time < s.timestamp {
				s.rootToImmediate()
			}

			// matured wheel bucket
			cyc := &s.cycbuf[s.timestamp&cycbufMask]
			if i := cyc.list; i != 0 {
				cyc.list = 0
				if s.immediate.list == 0 {
					s.immediate.list = i
				} else {
					s.tab[s.immediate.last].setNextLink(i)
				}
				s.immediate.last = cyc.last

				n := s.tab[i].listCount()
				if s.immediate.list != i {
					s.tab[s.immediate.list].setListCount(s.tab[s.immediate.list].listCount() + n)
				}
				s.nzero += cindex(n)
			}
		}

		// heap callouts due within the current second
		for s.queuebrk != 0 &&
			(s.tab[1].time < t ||
				(s.tab[1].time == t && s.tab[1].mtime <= m)) {
			s.rootToImmediate()
		}

		s.restart(t)
	}

	sec, _ := s.clk.Now()
	s.swap.advance(sec)
}

// rootToImmediate moves the heap root onto the immediate list.
func (s *Scheduler) rootToImmediate() {
	handle := s.tab[1].handle
	obj := s.tab[1].oindex
	s.dequeue(1)
	co := s.newShort(&s.immediate, 0)
	co.handle = handle
	co.oindex = obj
}

// Call drains the expired callouts. The immediate list is snapshotted into
// the running list, and each element is consumed and invoked in turn. A
// method that fails or panics is logged and the drain continues; callouts
// the invoked code schedules with zero delay land on the fresh immediate
// list and wait for the next drain.
func (s *Scheduler) Call(ctx context.Context, inv Invoker) {
	s.expire()
	s.running = s.immediate
	s.immediate = cbuf{}

	for s.running.list != 0 {
		i := s.running.list
		handle := s.tab[i].handle
		obj := s.tab[i].oindex
		s.freeShort(&s.running, i, i, 0)

		s.invoke(ctx, inv, obj, handle)
	}
}

// invoke runs one callout under a recovery barrier, so that a failing or
// panicking method cannot abort the drain.
func (s *Scheduler) invoke(ctx context.Context, inv Invoker, obj ObjectID, handle Handle) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("callout panicked", "object", obj, "handle", handle, "panic", r)
		}
	}()

	found, err := inv.Invoke(ctx, obj, handle)
	if err != nil {
		s.log.Error("callout failed", "object", obj, "handle", handle, "error", err)
		return
	}
	if !found {
		s.log.Debug("callout method gone", "object", obj, "handle", handle)
	}
}
