package callout

import (
	"io"
	"log/slog"
	"testing"

	"github.com/me/mudd/internal/clock"
)

// t0 is the wall-clock base for scheduler tests. Deadline encoding needs a
// clock that is well past the early seventies.
const t0 uint32 = 1_600_000_000

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSetup creates a scheduler over a manual clock set to the given
// second.
func testSetup(t *testing.T, max uint32, sec uint32) (*Scheduler, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(sec, 0)

	s, err := New(max, clk, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, clk
}

// checkHeap verifies the heap property over tab[1..queuebrk].
func checkHeap(t *testing.T, s *Scheduler) {
	t.Helper()
	for i := cindex(2); i <= s.queuebrk; i++ {
		p := i >> 1
		if s.tab[p].time > s.tab[i].time ||
			(s.tab[p].time == s.tab[i].time && s.tab[p].mtime > s.tab[i].mtime) {
			t.Fatalf("heap property violated at %d: parent (%d,%d) > child (%d,%d)",
				i, s.tab[p].time, s.tab[p].mtime, s.tab[i].time, s.tab[i].mtime)
		}
	}
}

// walkList returns the slot indices of a list, verifying the head count and
// the tail pointer.
func walkList(t *testing.T, s *Scheduler, cb cbuf, name string) []cindex {
	t.Helper()
	var out []cindex
	var last cindex
	for i := cb.list; i != 0; i = s.tab[i].nextLink() {
		out = append(out, i)
		last = i
		if len(out) > int(s.cotabsz)+1 {
			t.Fatalf("%s list does not terminate", name)
		}
	}
	if len(out) > 0 {
		if cb.last != last {
			t.Fatalf("%s list tail is %d, want %d", name, cb.last, last)
		}
		if got := s.tab[cb.list].listCount(); int(got) != len(out) {
			t.Fatalf("%s head count is %d, want %d", name, got, len(out))
		}
	}
	return out
}

// checkCounts verifies nshort and nzero against the actual lists.
func checkCounts(t *testing.T, s *Scheduler) {
	t.Helper()
	total := 0
	for b := range s.cycbuf {
		total += len(walkList(t, s, s.cycbuf[b], "bucket"))
	}
	imm := len(walkList(t, s, s.immediate, "immediate"))
	run := len(walkList(t, s, s.running, "running"))
	total += imm + run

	if int(s.nshort) != total {
		t.Fatalf("nshort = %d, want %d", s.nshort, total)
	}
	if int(s.nzero) != imm+run {
		t.Fatalf("nzero = %d, want %d", s.nzero, imm+run)
	}
}

// checkPartition verifies that the free list, the heap, and all wheel lists
// partition the allocated slot indices exactly.
func checkPartition(t *testing.T, s *Scheduler) {
	t.Helper()
	seen := make(map[cindex]string)
	claim := func(i cindex, as string) {
		if prev, ok := seen[i]; ok {
			t.Fatalf("slot %d on both %s and %s", i, prev, as)
		}
		seen[i] = as
	}

	for i := cindex(1); i <= s.queuebrk; i++ {
		claim(i, "heap")
	}
	for b := range s.cycbuf {
		for _, i := range walkList(t, s, s.cycbuf[b], "bucket") {
			claim(i, "bucket")
		}
	}
	for _, i := range walkList(t, s, s.immediate, "immediate") {
		claim(i, "immediate")
	}
	for _, i := range walkList(t, s, s.running, "running") {
		claim(i, "running")
	}
	steps := 0
	for i := s.flist; i != 0; i = s.tab[i].nextLink() {
		claim(i, "free")
		if s.tab[i].handle != 0 {
			t.Fatalf("free slot %d has handle %d", i, s.tab[i].handle)
		}
		if steps++; steps > int(s.cotabsz)+1 {
			t.Fatal("free list does not terminate")
		}
	}

	want := int(s.queuebrk) + int(s.cotabsz) + 1 - int(s.cycbrk)
	if len(seen) != want {
		t.Fatalf("%d slots reachable, want %d", len(seen), want)
	}
	for i := range seen {
		if i == 0 || (i > s.queuebrk && i < s.cycbrk) || i > s.cotabsz {
			t.Fatalf("slot %d outside the allocated regions", i)
		}
	}
}

// checkAlarm verifies that the armed alarm matches the earliest pending
// non-immediate deadline.
func checkAlarm(t *testing.T, s *Scheduler, clk *clock.Manual) {
	t.Helper()
	var wantT uint32
	var wantM uint16

	// earliest non-empty wheel bucket at or after timestamp
	if s.nshort != s.nzero {
		for d := uint32(0); d < cycbufSize; d++ {
			sec := s.timestamp + d
			if s.cycbuf[sec&cycbufMask].list != 0 {
				wantT = sec
				break
			}
		}
	}
	// heap root
	if s.queuebrk != 0 {
		rt, rm := s.tab[1].time, s.tab[1].mtime
		if wantT == 0 || rt < wantT || (rt == wantT && rm < wantM) {
			wantT, wantM = rt, rm
		}
	}

	gotT, gotM := clk.Armed()
	if gotT != wantT || (wantT != 0 && gotM != wantM) {
		t.Fatalf("alarm armed for (%d,%d), want (%d,%d)", gotT, gotM, wantT, wantM)
	}
}

// checkAll runs every invariant check.
func checkAll(t *testing.T, s *Scheduler, clk *clock.Manual) {
	t.Helper()
	checkHeap(t, s)
	checkCounts(t, s)
	checkPartition(t, s)
	checkAlarm(t, s, clk)
}
