package callout

// now reads the clock, clamped so that observed time never runs backward
// and never jumps more than maxLag seconds past the wheel position while an
// alarm is pending. The clamp bounds the size of a dispatch batch after an
// outage.
func (s *Scheduler) now() (uint32, uint16) {
	t, m := s.clk.Now()
	if t < s.timestamp {
		// clock turned back
		t = s.timestamp
		m = 0
	} else if s.timestamp < t {
		if s.atimeout == 0 || s.atimeout > t {
			s.timestamp = t
		} else {
			if s.timestamp < s.atimeout-1 {
				s.timestamp = s.atimeout - 1
			}
			if t > s.timestamp+s.maxLag {
				t = s.timestamp + s.maxLag
				m = 0
			}
		}
	}
	return t, m
}

// restart recomputes the earliest pending deadline and re-arms the alarm
// when it changed. A non-zero t seeds the wheel scan: the caller asserts no
// wheel callout falls due before t.
func (s *Scheduler) restart(t uint32) {
	if t != 0 {
		if s.nshort != s.nzero {
			// look for the next non-empty wheel bucket
			for s.cycbuf[t&cycbufMask].list == 0 {
				t++
			}
			s.timeout = t
		} else {
			// no wheel callouts left
			s.timeout = 0
		}
	}

	t = s.timeout
	var m uint16
	if s.queuebrk != 0 &&
		(t == 0 || s.tab[1].time < t ||
			(s.tab[1].time == t && s.tab[1].mtime < m)) {
		t = s.tab[1].time
		m = s.tab[1].mtime
	}

	if t != s.atimeout || m != s.amtime {
		s.atimeout = t
		s.amtime = m
		s.clk.Arm(t, m)
	}
}

// encode packs a millisecond-precise deadline into a stored value: top byte
// 0x01, then the low byte of the dump-neutral second, then the millisecond.
func (s *Scheduler) encode(t uint32, m uint16) uint32 {
	return 0x01000000 + ((t-s.timediff)&0xff)<<16 + uint32(m)
}

// decode recovers the full deadline from an encoded value by combining the
// stored low byte with the high bits of the current timestamp, bumping a
// cycle when the combination would lie in the past.
func (s *Scheduler) decode(v uint32) (uint32, uint16) {
	m := uint16(v & 0xffff)
	t := ((s.timestamp-s.timediff)&0xffffff00 | (v>>16)&0xff) + s.timediff
	if t < s.timestamp {
		t += 0x100
	}
	return t, m
}

// Delay returns the time until the next callout fires. (0, 0) means a
// callout is ready now; (0, InfiniteMillis) means nothing is pending.
func (s *Scheduler) Delay() (uint32, uint16) {
	if s.nzero != 0 {
		// immediate callouts pending
		return 0, 0
	}
	if s.atimeout == 0 {
		return 0, InfiniteMillis
	}

	t, m := s.now()
	if t > s.atimeout || (t == s.atimeout && m >= s.amtime) {
		return 0, 0
	}
	if m > s.amtime {
		m -= 1000
		t++
	}
	return s.atimeout - t, s.amtime - m
}

// Remaining returns the seconds left before the callout with the given
// stored deadline fires. Expired deadlines report 0.
func (s *Scheduler) Remaining(stored uint32) float64 {
	if stored>>24 != 1 {
		t := stored + s.timediff
		if t > s.timestamp {
			return float64(t - s.timestamp)
		}
		return 0
	}

	// encoded millisecond deadline
	t, m := s.decode(stored)
	nt, nm := s.now()
	left := (int64(t)-int64(nt))*1000 + int64(m) - int64(nm)
	if left < 0 {
		left = 0
	}
	return float64(left) / 1000
}
