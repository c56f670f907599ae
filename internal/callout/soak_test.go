package callout

import (
	"context"
	"errors"
	"math/rand"
	"testing"
)

// TestSoak drives the scheduler through a long pseudo-random mix of adds,
// cancels and dispatches, re-checking every structural invariant after each
// operation.
func TestSoak(t *testing.T) {
	s, clk := testSetup(t, 32, t0+1000)
	rng := rand.New(rand.NewSource(42))

	type key struct {
		obj    ObjectID
		handle Handle
	}
	live := make(map[key]uint32) // pending callouts by stored deadline

	inv := InvokerFunc(func(_ context.Context, obj ObjectID, handle Handle) (bool, error) {
		k := key{obj, handle}
		if _, ok := live[k]; !ok {
			t.Fatalf("fired unknown callout %v", k)
		}
		delete(live, k)
		return true, nil
	})

	ctx := context.Background()
	nextHandle := Handle(1)

	for step := 0; step < 2000; step++ {
		switch rng.Intn(10) {
		case 0, 1, 2, 3, 4:
			delay := int32(rng.Intn(200))
			mdelay := NoMillis
			if rng.Intn(3) == 0 {
				mdelay = uint16(rng.Intn(1000))
			}
			adm, err := s.Check(1, delay, mdelay)
			if errors.Is(err, ErrTooMany) {
				continue
			}
			if err != nil {
				t.Fatalf("step %d: Check: %v", step, err)
			}
			obj := ObjectID(rng.Intn(4) + 1)
			h := nextHandle
			nextHandle++
			s.Add(h, obj, adm)
			live[key{obj, h}] = adm.Stored()

		case 5, 6:
			for k, stored := range live {
				s.Remove(k.obj, k.handle, stored)
				delete(live, k)
				break
			}

		case 7, 8:
			clk.Advance(uint32(rng.Intn(3)), uint16(rng.Intn(1000)))
			s.Call(ctx, inv)

		case 9:
			clk.Advance(uint32(rng.Intn(150)), 0)
			s.Call(ctx, inv)
		}

		checkAll(t, s, clk)

		ns, nl := s.Info()
		if int(ns)+int(nl) != len(live) {
			t.Fatalf("step %d: %d callouts in table, %d tracked", step, int(ns)+int(nl), len(live))
		}
	}
}
