package callout

// The time-wheel occupies tab[cycbrk..cotabsz], grown downward. Bucket
// t & cycbufMask holds the whole-second callouts due at t for t within
// [timestamp, timestamp+cycbufSize). The immediate and running lists share
// the same list shape. Slots released from the middle of the wheel region
// go on the free list, threaded doubly through the released slots so that
// edge compaction can unlink from the middle in O(1).

// newShort acquires a slot and appends it to the given list. t is the
// callout's whole-second deadline, 0 for the immediate list. The caller
// fills in handle and oindex.
func (s *Scheduler) newShort(list *cbuf, t uint32) *callout {
	var i cindex

	if s.flist != 0 {
		// take the free-list head
		i = s.flist
		s.flist = s.tab[i].nextLink()
	} else {
		// grow the wheel region
		s.cycbrk--
		i = s.cycbrk
	}
	s.nshort++
	if t == 0 {
		s.nzero++
	}

	co := &s.tab[i]
	if list.list == 0 {
		// first one in the list
		list.list = i
		co.setListCount(1)

		if t != 0 && (s.timeout == 0 || t < s.timeout) {
			s.restart(t)
		}
	} else {
		// append to the list
		s.tab[list.list].setListCount(s.tab[list.list].listCount() + 1)
		s.tab[list.last].setNextLink(i)
	}
	list.last = i
	co.setNextLink(0)

	return co
}

// freeShort unlinks slot i from the given list (j is its predecessor, or i
// itself when i heads the list) and releases the slot. t is the callout's
// whole-second deadline, 0 for the immediate and running lists.
func (s *Scheduler) freeShort(cyc *cbuf, j, i cindex, t uint32) {
	s.nshort--
	if t == 0 {
		s.nzero--
	}

	l := s.tab
	if i == j {
		// head of the list
		cyc.list = l[i].nextLink()
		if cyc.list != 0 {
			l[cyc.list].setListCount(l[i].listCount() - 1)
		} else if t != 0 && t == s.timeout {
			s.restart(t)
		}
	} else {
		if i == cyc.last {
			// last element of the list
			cyc.last = j
			l[j].setNextLink(0)
		} else {
			// connect previous to next
			l[j].setNextLink(l[i].nextLink())
		}
		l[cyc.list].setListCount(l[cyc.list].listCount() - 1)
	}

	co := &l[i]
	co.handle = 0 // mark as unused
	if i == s.cycbrk {
		// released at the edge: shrink the wheel region, absorbing any
		// free slots that follow
		for {
			s.cycbrk++
			if s.cycbrk > s.cotabsz || l[s.cycbrk].handle != 0 {
				break
			}
			nxt := &l[s.cycbrk]
			if s.cycbrk == s.flist {
				// first in the free list
				s.flist = nxt.nextLink()
			} else {
				// unlink from the middle of the free list
				l[nxt.prevLink()].setNextLink(nxt.nextLink())
				if nxt.nextLink() != 0 {
					l[nxt.nextLink()].setPrevLink(nxt.prevLink())
				}
			}
		}
	} else {
		// push onto the free list
		if s.flist != 0 {
			l[s.flist].setPrevLink(i)
		}
		co.setNextLink(s.flist)
		s.flist = i
	}
}

// rmShort searches the given list for (obj, handle) and releases the match.
// It reports whether the callout was found.
func (s *Scheduler) rmShort(cyc *cbuf, obj ObjectID, handle Handle, t uint32) bool {
	k := cyc.list
	if k == 0 {
		return false
	}

	l := s.tab
	if l[k].oindex == obj && l[k].handle == handle {
		// first element in the list
		s.freeShort(cyc, k, k, t)
		return true
	}
	if k != cyc.last {
		j := k
		for k = l[j].nextLink(); k != 0; k = l[j].nextLink() {
			if l[k].oindex == obj && l[k].handle == handle {
				s.freeShort(cyc, j, k, t)
				return true
			}
			j = k
		}
	}
	return false
}
