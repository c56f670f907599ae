package callout

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Dump stream layout, little-endian:
//
//	header "uuuuuuii": cotabsz, queuebrk, cycbrk, flist, nshort, nlong0
//	                   as uint16; timestamp, timediff as uint32
//	record "uui":      handle, oindex as uint16; time as uint32
//	bucket "uu":       list, last as uint16
//
// The records cover the heap region first, then the wheel region including
// its free slots (their link fields ride along in the oindex/time fields).
// The bucket table is all 128 wheel buckets.
const (
	dumpHeaderSize = 20
	dumpRecordSize = 8
	dumpBucketSize = 4
)

type dumpHeader struct {
	cotabsz   uint16
	queuebrk  uint16
	cycbrk    uint16
	flist     uint16
	nshort    uint16
	nlong0    uint16 // queuebrk + nzero
	timestamp uint32
	timediff  uint32
}

type dumpRecord struct {
	handle Handle
	oindex ObjectID
	time   uint32
}

// wheelRec maps a wheel-region slot index to its dump record index.
func (s *Scheduler) wheelRec(i cindex) int {
	return int(s.queuebrk) + int(i) - int(s.cycbrk)
}

// Dump serializes the callout table. The immediate and running lists are
// temporarily spliced into the current wheel bucket so they need no
// distinct representation; millisecond deadlines are re-encoded so they
// survive a capacity change.
func (s *Scheduler) Dump(w io.Writer) error {
	s.now() // settle timestamp

	n := int(s.queuebrk) + int(s.cotabsz) + 1 - int(s.cycbrk)
	recs := make([]dumpRecord, 0, n)

	// heap region
	for i := cindex(1); i <= s.queuebrk; i++ {
		co := &s.tab[i]
		t := co.time
		if co.mtime != 0 {
			t = s.encode(co.time, co.mtime)
		}
		recs = append(recs, dumpRecord{handle: co.handle, oindex: co.oindex, time: t})
	}

	// wheel region, free slots included
	for i := s.cycbrk; i <= s.cotabsz; i++ {
		co := &s.tab[i]
		recs = append(recs, dumpRecord{handle: co.handle, oindex: co.oindex, time: co.time})
	}

	// splice the immediate and running lists into the current bucket
	cb := &s.cycbuf[s.timestamp&cycbufMask]
	if s.nzero != 0 {
		var list, last cindex
		if s.running.list != 0 {
			list = s.running.list
			if s.immediate.list != 0 {
				recs[s.wheelRec(s.running.last)].time = uint32(s.immediate.list)
				last = s.immediate.last
			} else {
				last = s.running.last
			}
		} else {
			list = s.immediate.list
			last = s.immediate.last
		}
		recs[s.wheelRec(last)].time = uint32(cb.list)

		orig := cb.list
		cb.list = list
		defer func() { cb.list = orig }()
	}

	buf := make([]byte, dumpHeaderSize+n*dumpRecordSize+cycbufSize*dumpBucketSize)
	le := binary.LittleEndian

	le.PutUint16(buf[0:], uint16(s.cotabsz))
	le.PutUint16(buf[2:], uint16(s.queuebrk))
	le.PutUint16(buf[4:], uint16(s.cycbrk))
	le.PutUint16(buf[6:], uint16(s.flist))
	le.PutUint16(buf[8:], uint16(s.nshort))
	le.PutUint16(buf[10:], uint16(s.queuebrk)+uint16(s.nzero))
	le.PutUint32(buf[12:], s.timestamp)
	le.PutUint32(buf[16:], s.timediff)

	off := dumpHeaderSize
	for _, rec := range recs {
		le.PutUint16(buf[off:], uint16(rec.handle))
		le.PutUint16(buf[off+2:], uint16(rec.oindex))
		le.PutUint32(buf[off+4:], rec.time)
		off += dumpRecordSize
	}
	for b := range s.cycbuf {
		le.PutUint16(buf[off:], uint16(s.cycbuf[b].list))
		le.PutUint16(buf[off+2:], uint16(s.cycbuf[b].last))
		off += dumpBucketSize
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("callout: write dump: %w", err)
	}
	return nil
}

// Restore rebuilds the callout table from a dump, against wall-clock second
// now. The table capacity may differ from the dumped one; wheel-region
// indices are shifted to fit. Whole-second deadlines slide forward by the
// outage so that remaining times are preserved.
func (s *Scheduler) Restore(r io.Reader, now uint32) error {
	hdr := make([]byte, dumpHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return fmt.Errorf("callout: read dump header: %w", err)
	}

	le := binary.LittleEndian
	dh := dumpHeader{
		cotabsz:   le.Uint16(hdr[0:]),
		queuebrk:  le.Uint16(hdr[2:]),
		cycbrk:    le.Uint16(hdr[4:]),
		flist:     le.Uint16(hdr[6:]),
		nshort:    le.Uint16(hdr[8:]),
		nlong0:    le.Uint16(hdr[10:]),
		timestamp: le.Uint32(hdr[12:]),
		timediff:  le.Uint32(hdr[16:]),
	}

	offset := int(s.cotabsz) - int(dh.cotabsz)
	cyc := int(dh.cycbrk) + offset
	if int(dh.queuebrk) >= cyc || cyc < 1 {
		return ErrRestoreOverflow
	}
	n := int(dh.queuebrk) + int(s.cotabsz) + 1 - cyc
	if n < 0 || cyc > int(s.cotabsz)+1 || dh.nlong0 < dh.queuebrk {
		return fmt.Errorf("callout: malformed dump header")
	}

	raw := make([]byte, n*dumpRecordSize+cycbufSize*dumpBucketSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return fmt.Errorf("callout: read dump body: %w", err)
	}

	s.queuebrk = cindex(dh.queuebrk)
	s.cycbrk = cindex(cyc)
	s.flist = cindex(dh.flist)
	s.nshort = cindex(dh.nshort)
	s.nzero = cindex(dh.nlong0 - dh.queuebrk)
	s.running = cbuf{}
	s.immediate = cbuf{}
	s.timestamp = now
	t := now - dh.timestamp
	s.timediff = dh.timediff + t

	// copy callouts
	off := 0
	rec := func() dumpRecord {
		r := dumpRecord{
			handle: Handle(le.Uint16(raw[off:])),
			oindex: ObjectID(le.Uint16(raw[off+2:])),
			time:   le.Uint32(raw[off+4:]),
		}
		off += dumpRecordSize
		return r
	}
	for i := cindex(1); i <= s.queuebrk; i++ {
		dc := rec()
		co := &s.tab[i]
		co.handle = dc.handle
		co.oindex = dc.oindex
		if dc.time>>24 == 1 {
			co.time, co.mtime = s.decode(dc.time)
		} else {
			co.time = dc.time + t
			co.mtime = 0
		}
	}
	for i := s.cycbrk; i <= s.cotabsz; i++ {
		dc := rec()
		co := &s.tab[i]
		co.handle = dc.handle
		co.oindex = dc.oindex
		co.time = dc.time
		co.mtime = 0
	}

	// rotate the bucket table by the outage, so every wheel bucket keeps
	// its distance from timestamp
	var buffer [cycbufSize]cbuf
	for b := 0; b < cycbufSize; b++ {
		buffer[b] = cbuf{
			list: cindex(le.Uint16(raw[off:])),
			last: cindex(le.Uint16(raw[off+2:])),
		}
		off += dumpBucketSize
	}
	shift := t & cycbufMask
	for b := uint32(0); b < cycbufSize; b++ {
		s.cycbuf[(b+shift)&cycbufMask] = buffer[b]
	}

	if offset != 0 {
		// patch callout references
		if s.flist != 0 {
			s.flist = cindex(int(s.flist) + offset)
		}
		for b := range s.cycbuf {
			if s.cycbuf[b].list != 0 {
				s.cycbuf[b].list = cindex(int(s.cycbuf[b].list) + offset)
				s.cycbuf[b].last = cindex(int(s.cycbuf[b].last) + offset)
			}
		}
		for i := s.cycbrk; i <= s.cotabsz; i++ {
			co := &s.tab[i]
			if co.handle == 0 {
				co.setPrevLink(cindex(int(co.prevLink()) + offset))
			}
			if co.nextLink() != 0 {
				co.setNextLink(cindex(int(co.nextLink()) + offset))
			}
		}
	}

	// split the spliced immediate callouts back off the current bucket
	if s.nzero != 0 {
		cb := &s.cycbuf[s.timestamp&cycbufMask]
		s.immediate.list = cb.list
		last := cb.list
		for i := s.nzero - 1; i != 0; i-- {
			last = s.tab[last].nextLink()
		}
		s.immediate.last = last
		s.tab[s.immediate.list].setListCount(uint16(s.nzero))
		cb.list = s.tab[last].nextLink()
		s.tab[last].setNextLink(0)
	}

	// reconstruct per-bucket counts
	for b := range s.cycbuf {
		if s.cycbuf[b].list != 0 {
			count := uint16(0)
			for i := s.cycbuf[b].list; i != 0; i = s.tab[i].nextLink() {
				count++
			}
			s.tab[s.cycbuf[b].list].setListCount(count)
		}
	}

	// restart the alarm
	s.timeout = 0
	if s.nshort != s.nzero {
		tt := s.timestamp
		for s.cycbuf[tt&cycbufMask].list == 0 {
			tt++
		}
		s.timeout = tt
	}
	s.restart(0)

	s.log.Info("callout table restored",
		"nshort", s.nshort, "nlong", s.queuebrk, "timediff", s.timediff)
	return nil
}
