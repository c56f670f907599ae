// Package callout implements the driver's time-driven callout table: a
// fixed-capacity pool of deferred method invocations shared by a binary
// min-heap (millisecond-precise and far-future deadlines) and a 128-bucket
// cyclic time-wheel (whole-second deadlines within the next two minutes).
//
// The table survives restarts: Dump serializes it to a byte stream and
// Restore rebuilds it against a later wall clock, possibly into a table of a
// different capacity, sliding every whole-second deadline forward by the
// outage.
//
// A Scheduler is single-threaded cooperative. Every method must be called
// from the driver's dispatch goroutine; the only reentry point is the
// Invoker callback during Call, which may itself call Check, Add and Remove.
package callout

import (
	"errors"
	"log/slog"

	"github.com/me/mudd/internal/clock"
)

const (
	cycbufSize = 128            // cyclic buffer size, power of 2
	cycbufMask = cycbufSize - 1 // cyclic buffer mask
	swPeriod   = 60             // swap-rate window size
)

// NoMillis marks a millisecond delay as absent: the callout is
// second-precise and eligible for the time-wheel.
const NoMillis uint16 = clock.NoMillis

// InfiniteMillis is returned by Delay when no callout is pending.
const InfiniteMillis uint16 = 0xffff

// MaxCapacity is the largest usable table capacity. One index is reserved
// as the nil link and the wheel break must fit a 16-bit dump field.
const MaxCapacity = 65534

// Handle is a caller-chosen callout identifier, unique per object.
// Handle 0 marks an unused slot and is never valid.
type Handle uint16

// ObjectID is an index into the driver's object table. The scheduler holds
// only ids, never object references.
type ObjectID uint16

// cindex addresses a slot in the callout table. Index 0 is the nil link and
// is never allocated.
type cindex uint16

// callout is one table slot. Two fields are overloaded depending on the
// slot's state; the aliased readings are only ever reached through
// prevLink, nextLink and listCount:
//
//	heap slot:   time/mtime hold the deadline
//	list slot:   time holds the next-link; a list head's mtime holds the
//	             element count of its list
//	free slot:   handle is 0, oindex holds the prev-link, time the next-link
type callout struct {
	handle Handle   // callout handle, 0 while the slot is unused
	oindex ObjectID // target object
	time   uint32   // deadline, whole seconds
	mtime  uint16   // deadline, milliseconds
}

func (c *callout) nextLink() cindex      { return cindex(c.time) }
func (c *callout) setNextLink(i cindex)  { c.time = uint32(i) }
func (c *callout) prevLink() cindex      { return cindex(c.oindex) }
func (c *callout) setPrevLink(i cindex)  { c.oindex = ObjectID(i) }
func (c *callout) listCount() uint16     { return c.mtime }
func (c *callout) setListCount(n uint16) { c.mtime = n }

// cbuf heads one linked list of callouts: a wheel bucket, the immediate
// list, or the running list.
type cbuf struct {
	list cindex // first element, 0 when the list is empty
	last cindex // last element
}

// Scheduler is the callout table plus its timing registers. It is owned by
// the driver and must only be used from the dispatch goroutine.
type Scheduler struct {
	clk clock.Clock
	log *slog.Logger

	tab      []callout // capacity+1 slots; slot 0 is the nil link
	cotabsz  cindex    // usable capacity
	queuebrk cindex    // heap occupies 1..queuebrk
	cycbrk   cindex    // wheel owns cycbrk..cotabsz; cotabsz+1 when empty
	flist    cindex    // free-list head, 0 when empty
	nzero    cindex    // callouts on the immediate (and running) lists
	nshort   cindex    // callouts on all wheel lists, including nzero

	running   cbuf
	immediate cbuf
	cycbuf    [cycbufSize]cbuf

	timestamp uint32 // wheel start time as known to the scheduler
	timeout   uint32 // earliest wheel deadline, 0 when the wheel is idle
	atimeout  uint32 // armed alarm, seconds; 0 when disarmed
	amtime    uint16 // armed alarm, milliseconds
	timediff  uint32 // dumped-clock vs wall-clock offset
	maxLag    uint32 // clock-jump cap per dispatch batch

	swap swapMonitor
}

// Option configures optional Scheduler behaviour.
type Option func(*Scheduler)

// WithMaxLag caps how far a single dispatch batch may advance after a clock
// jump or outage, in seconds. The default is 60.
func WithMaxLag(sec uint32) Option {
	return func(s *Scheduler) {
		s.maxLag = sec
	}
}

// New creates a scheduler with the given capacity. Capacity 0 disables
// callouts entirely: Check admits nothing and Add is a no-op. Capacities
// above MaxCapacity are clamped.
func New(max uint32, clk clock.Clock, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if max > MaxCapacity {
		max = MaxCapacity
	}

	s := &Scheduler{
		clk:    clk,
		log:    logger.With("component", "callout"),
		maxLag: 60,
	}
	for _, opt := range opts {
		opt(s)
	}

	if max != 0 {
		sec, _ := clk.Now()
		// Stored deadlines distinguish their kind by the top byte; a
		// clock this early would collide with the encodings.
		if sec>>24 <= 1 {
			return nil, errors.New("callout: clock too early for deadline encoding")
		}
		s.tab = make([]callout, max+1)
	}
	s.cotabsz = cindex(max)
	s.cycbrk = cindex(max) + 1
	s.swap.swaptime, _ = clk.Now()

	return s, nil
}

// Info returns the number of short-term (wheel) and long-term (heap)
// callouts pending.
func (s *Scheduler) Info() (nshort, nlong uint16) {
	return uint16(s.nshort), uint16(s.queuebrk)
}

// Pending describes one pending callout for List.
type Pending struct {
	Object ObjectID
	Handle Handle
	Stored uint32  // the stored deadline returned by Check
	Left   float64 // seconds until the callout fires; filled in by List
}

// List rewrites each entry's Left field with the time remaining before the
// callout fires, in seconds.
func (s *Scheduler) List(cos []Pending) {
	for i := range cos {
		cos[i].Left = s.Remaining(cos[i].Stored)
	}
}
