package callout

// The heap occupies tab[1..queuebrk] as a classical array-embedded binary
// min-heap ordered by (time, mtime). It holds millisecond-precise callouts
// and whole-second callouts beyond the wheel horizon. Index arithmetic runs
// in int so child computation cannot wrap the slot-index type.

// enqueue opens a free spot in the heap, sifts it upward, and claims it for
// the given deadline. The caller fills in handle and oindex.
func (s *Scheduler) enqueue(t uint32, m uint16) *callout {
	l := s.tab
	s.queuebrk++
	i := int(s.queuebrk)
	for j := i >> 1; j >= 1 && (l[j].time > t || (l[j].time == t && l[j].mtime > m)); j >>= 1 {
		l[i] = l[j]
		i = j
	}

	co := &l[i]
	co.time = t
	co.mtime = m
	if s.atimeout == 0 || t < s.atimeout || (t == s.atimeout && m < s.amtime) {
		s.restart(0)
	}
	return co
}

// dequeue removes the heap element at index i (1-based): the last element
// is swapped into its place and sifted up or down, whichever restores
// order.
func (s *Scheduler) dequeue(i cindex) {
	l := s.tab
	last := int(s.queuebrk)
	k := int(i)
	t := l[last].time
	m := l[last].mtime
	if t < l[k].time || (t == l[k].time && m < l[k].mtime) {
		// sift upward
		for j := k >> 1; j >= 1 && (l[j].time > t || (l[j].time == t && l[j].mtime > m)); j >>= 1 {
			l[k] = l[j]
			k = j
		}
	} else {
		// sift downward
		for j := k << 1; j < last; j <<= 1 {
			if l[j].time > l[j+1].time ||
				(l[j].time == l[j+1].time && l[j].mtime > l[j+1].mtime) {
				j++
			}
			if t < l[j].time || (t == l[j].time && m <= l[j].mtime) {
				break
			}
			l[k] = l[j]
			k = j
		}
	}
	// put the last element into place
	l[k] = l[last]
	s.queuebrk--
}
