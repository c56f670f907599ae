package driver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/me/mudd/internal/callout"
	"github.com/me/mudd/internal/clock"
	"github.com/me/mudd/internal/config"
	"github.com/me/mudd/internal/object"
	"github.com/me/mudd/pkg/model"
)

// t0 keeps test clocks well past the early seventies, as the deadline
// encoding requires.
const t0 uint32 = 1_600_000_000

func testDriver(t *testing.T, cfg config.Config, sec uint32) (*Driver, object.Store, *clock.Manual) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := object.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.NewManual(sec, 0)
	d, err := New(cfg, st, clk, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, st, clk
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.MaxCallouts = 8
	return cfg
}

func createObject(t *testing.T, d *Driver, name, source string) *model.Object {
	t.Helper()
	obj, err := d.CreateObject(context.Background(), name, source)
	if err != nil {
		t.Fatalf("CreateObject(%s): %v", name, err)
	}
	return obj
}

func TestScheduleAndFire(t *testing.T) {
	d, _, _ := testDriver(t, testConfig(), t0)
	ctx := context.Background()

	createObject(t, d, "herald", `function announce(what) {}`)

	res, err := d.Schedule(ctx, model.ScheduleRequest{
		Object: "herald", Method: "announce", Args: []any{"dawn"},
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.Handle == 0 {
		t.Fatal("Schedule returned handle 0")
	}

	st, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.NShort != 1 || st.NextDelay != 0 {
		t.Fatalf("Status = %+v, want one immediate callout", st)
	}

	d.Tick(ctx)

	st, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.NShort != 0 || st.NLong != 0 {
		t.Fatalf("Status after tick = %+v, want empty table", st)
	}
	cos, err := d.Callouts(ctx)
	if err != nil {
		t.Fatalf("Callouts: %v", err)
	}
	if len(cos) != 0 {
		t.Fatalf("Callouts = %v, want none (record consumed)", cos)
	}
}

func TestScriptReschedulesItself(t *testing.T) {
	d, _, _ := testDriver(t, testConfig(), t0)
	ctx := context.Background()

	createObject(t, d, "pulse", `
		function beat() { callOut("echo", 0); }
		function echo() {}
	`)

	if _, err := d.Schedule(ctx, model.ScheduleRequest{Object: "pulse", Method: "beat"}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// the first drain runs beat; the callout it schedules lands on the
	// fresh immediate list and waits for the next drain
	d.Tick(ctx)

	cos, err := d.Callouts(ctx)
	if err != nil {
		t.Fatalf("Callouts: %v", err)
	}
	if len(cos) != 1 || cos[0].Method != "echo" {
		t.Fatalf("Callouts after first tick = %v, want the rescheduled echo", cos)
	}

	d.Tick(ctx)
	cos, err = d.Callouts(ctx)
	if err != nil {
		t.Fatalf("Callouts: %v", err)
	}
	if len(cos) != 0 {
		t.Fatalf("Callouts after second tick = %v, want none", cos)
	}
}

func TestCancel(t *testing.T) {
	d, _, _ := testDriver(t, testConfig(), t0)
	ctx := context.Background()

	createObject(t, d, "door", `function close() {}`)

	res, err := d.Schedule(ctx, model.ScheduleRequest{
		Object: "door", Method: "close", DelaySec: 5,
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := d.Cancel(ctx, "door", res.Handle); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	st, _ := d.Status(ctx)
	if st.NShort != 0 || st.NLong != 0 {
		t.Fatalf("Status after cancel = %+v, want empty", st)
	}

	if err := d.Cancel(ctx, "door", res.Handle); !errors.Is(err, ErrCalloutNotFound) {
		t.Fatalf("second Cancel err = %v, want ErrCalloutNotFound", err)
	}
}

func TestScheduleUnknownObject(t *testing.T) {
	d, _, _ := testDriver(t, testConfig(), t0)

	_, err := d.Schedule(context.Background(), model.ScheduleRequest{Object: "ghost", Method: "boo"})
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestTooManySurfaces(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCallouts = 1
	d, _, _ := testDriver(t, cfg, t0)
	ctx := context.Background()

	createObject(t, d, "busy", `function work() {}`)

	if _, err := d.Schedule(ctx, model.ScheduleRequest{Object: "busy", Method: "work", DelaySec: 3}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	_, err := d.Schedule(ctx, model.ScheduleRequest{Object: "busy", Method: "work", DelaySec: 3})
	if !errors.Is(err, callout.ErrTooMany) {
		t.Fatalf("err = %v, want ErrTooMany", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	cfg := testConfig()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "callouts.dump")
	d, st, _ := testDriver(t, cfg, t0)
	ctx := context.Background()

	createObject(t, d, "slow", `function wake() {}`)
	if _, err := d.Schedule(ctx, model.ScheduleRequest{Object: "slow", Method: "wake", DelaySec: 200}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := d.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	// a new driver over the same store, 300 seconds later
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk2 := clock.NewManual(t0+300, 0)
	d2, err := New(cfg, st, clk2, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d2.RestoreSnapshot(); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}

	// the outage slides the deadline forward: 200 seconds still remain
	status, err := d2.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.NLong != 1 || status.NextDelay != 200 {
		t.Fatalf("Status = %+v, want the restored callout 200s out", status)
	}

	cos, err := d2.Callouts(ctx)
	if err != nil {
		t.Fatalf("Callouts: %v", err)
	}
	if len(cos) != 1 || cos[0].Left != 200 {
		t.Fatalf("Callouts = %v, want one with 200s left", cos)
	}

	// and it still fires; each tick advances the wheel by at most the
	// clock-lag cap, so the 200 second jump takes a few ticks
	clk2.Set(t0+500, 0)
	for i := 0; i < 4; i++ {
		d2.Tick(ctx)
	}
	if cos, _ = d2.Callouts(ctx); len(cos) != 0 {
		t.Fatalf("Callouts after firing = %v, want none", cos)
	}
}

func TestRestoreSnapshotMissingFileIsFine(t *testing.T) {
	cfg := testConfig()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "absent.dump")
	d, _, _ := testDriver(t, cfg, t0)

	if err := d.RestoreSnapshot(); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
}

func TestRestoreSnapshotPrunesOrphanedRecords(t *testing.T) {
	cfg := testConfig()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "never-written.dump")
	d, st, _ := testDriver(t, cfg, t0)
	ctx := context.Background()

	obj := createObject(t, d, "relic", `function rot() {}`)
	rec := &model.CalloutRecord{ObjectID: obj.ID, Handle: 9, Method: "rot"}
	if err := st.PutCallout(ctx, rec); err != nil {
		t.Fatalf("PutCallout: %v", err)
	}

	// no snapshot exists, so the leftover record must be pruned rather
	// than surface as a pending callout
	if err := d.RestoreSnapshot(); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	cos, err := d.Callouts(ctx)
	if err != nil {
		t.Fatalf("Callouts: %v", err)
	}
	if len(cos) != 0 {
		t.Fatalf("Callouts = %v, want none", cos)
	}
}
