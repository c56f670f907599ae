// Package driver glues the callout scheduler, the object store and the
// script runtime into the running interpreter. All scheduler access is
// serialized under one lock, so the scheduler itself stays single-threaded;
// the dispatch loop, the REST handlers and the boot path all enter through
// the public methods here.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/me/mudd/internal/callout"
	"github.com/me/mudd/internal/clock"
	"github.com/me/mudd/internal/config"
	"github.com/me/mudd/internal/object"
	"github.com/me/mudd/internal/script"
	"github.com/me/mudd/pkg/model"
)

// ErrObjectNotFound is returned when a request names an unknown object.
var ErrObjectNotFound = errors.New("object not found")

// ErrCalloutNotFound is returned when a cancellation names an unknown
// callout.
var ErrCalloutNotFound = errors.New("callout not found")

// Driver owns the scheduler and runs the sole dispatch goroutine.
type Driver struct {
	cfg   config.Config
	log   *slog.Logger
	clk   clock.Clock
	store object.Store

	mu    sync.Mutex
	sched *callout.Scheduler
	rt    *script.Runtime

	wake      chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	startTime time.Time
}

// New creates a driver over the given store and clock.
func New(cfg config.Config, st object.Store, clk clock.Clock, logger *slog.Logger) (*Driver, error) {
	d := &Driver{
		cfg:       cfg,
		log:       logger.With("component", "driver"),
		clk:       clk,
		store:     st,
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		startTime: time.Now(),
	}

	sched, err := callout.New(cfg.MaxCallouts, clk, logger, callout.WithMaxLag(cfg.MaxClockLag))
	if err != nil {
		return nil, fmt.Errorf("callout table: %w", err)
	}
	d.sched = sched

	d.rt = script.NewRuntime(logger,
		script.WithHost(d),
		script.WithCacheSize(cfg.ScriptCache),
		script.WithEvictHook(sched.SwapCount),
	)
	return d, nil
}

// kick wakes the dispatch loop so it re-reads the next deadline.
func (d *Driver) kick() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Schedule enqueues a callout on the named object and returns its handle.
func (d *Driver) Schedule(ctx context.Context, req model.ScheduleRequest) (model.ScheduleResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, err := d.store.GetObjectByName(ctx, req.Object)
	if err != nil {
		return model.ScheduleResult{}, fmt.Errorf("get object %s: %w", req.Object, err)
	}
	if obj == nil {
		return model.ScheduleResult{}, fmt.Errorf("%w: %s", ErrObjectNotFound, req.Object)
	}

	mdelay := callout.NoMillis
	if req.DelayMs != nil {
		mdelay = *req.DelayMs
	}
	h, err := d.enqueue(ctx, obj.ID, req.Method, req.Args, req.DelaySec, mdelay)
	if err != nil {
		return model.ScheduleResult{}, err
	}

	d.kick()
	return model.ScheduleResult{Object: obj.Name, Handle: h}, nil
}

// enqueue admits, records and adds one callout. The caller holds the lock.
func (d *Driver) enqueue(ctx context.Context, objID uint16, method string, args []any, delay int32, mdelay uint16) (uint16, error) {
	adm, err := d.sched.Check(1, delay, mdelay)
	if err != nil {
		return 0, err
	}
	if adm.Disabled() {
		return 0, nil
	}

	h, err := d.store.NextHandle(ctx, objID)
	if err != nil {
		return 0, fmt.Errorf("allocate handle: %w", err)
	}
	rec := &model.CalloutRecord{
		ObjectID: objID,
		Handle:   h,
		Method:   method,
		Args:     args,
		Stored:   adm.Stored(),
	}
	if err := d.store.PutCallout(ctx, rec); err != nil {
		return 0, fmt.Errorf("store callout: %w", err)
	}

	d.sched.Add(callout.Handle(h), callout.ObjectID(objID), adm)
	return h, nil
}

// Cancel removes a pending callout on the named object.
func (d *Driver) Cancel(ctx context.Context, objName string, handle uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, err := d.store.GetObjectByName(ctx, objName)
	if err != nil {
		return fmt.Errorf("get object %s: %w", objName, err)
	}
	if obj == nil {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, objName)
	}
	return d.cancel(ctx, obj.ID, handle)
}

// cancel removes one callout by id. The caller holds the lock.
func (d *Driver) cancel(ctx context.Context, objID, handle uint16) error {
	rec, err := d.store.GetCallout(ctx, objID, handle)
	if err != nil {
		return fmt.Errorf("get callout: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("%w: object %d handle %d", ErrCalloutNotFound, objID, handle)
	}

	d.sched.Remove(callout.ObjectID(objID), callout.Handle(handle), rec.Stored)
	if err := d.store.DeleteCallout(ctx, objID, handle); err != nil {
		return fmt.Errorf("delete callout: %w", err)
	}
	return nil
}

// ScheduleCallout implements script.Host: a running script scheduling a
// callout on its own object. It runs on the dispatch goroutine with the
// lock already held by Tick.
func (d *Driver) ScheduleCallout(objID uint16, method string, args []any, delaySec int32, delayMs int32) (uint16, error) {
	mdelay := callout.NoMillis
	if delayMs >= 0 {
		mdelay = uint16(delayMs)
	}
	return d.enqueue(context.Background(), objID, method, args, delaySec, mdelay)
}

// CancelCallout implements script.Host: a running script cancelling one of
// its own callouts.
func (d *Driver) CancelCallout(objID uint16, handle uint16) error {
	return d.cancel(context.Background(), objID, handle)
}

// Invoke implements callout.Invoker: resolve the object, rehydrate the
// stored method and arguments, consume the record, and run the method.
func (d *Driver) Invoke(ctx context.Context, obj callout.ObjectID, handle callout.Handle) (bool, error) {
	rec, err := d.store.GetCallout(ctx, uint16(obj), uint16(handle))
	if err != nil {
		return true, fmt.Errorf("fetch callout args: %w", err)
	}
	if rec == nil {
		return false, nil
	}
	if err := d.store.DeleteCallout(ctx, uint16(obj), uint16(handle)); err != nil {
		d.log.Error("consume callout record", "object", obj, "handle", handle, "error", err)
	}

	o, err := d.store.GetObject(ctx, uint16(obj))
	if err != nil {
		return true, fmt.Errorf("get object %d: %w", obj, err)
	}
	if o == nil {
		return false, nil
	}
	return d.rt.Invoke(ctx, o, rec.Method, rec.Args)
}

// CreateObject registers a new scripted object.
func (d *Driver) CreateObject(ctx context.Context, name, source string) (*model.Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj := &model.Object{Name: name, Source: source}
	if err := d.store.CreateObject(ctx, obj); err != nil {
		return nil, fmt.Errorf("create object %s: %w", name, err)
	}
	d.log.Info("object created", "id", obj.ID, "name", name)
	return obj, nil
}

// Objects lists the registered objects.
func (d *Driver) Objects(ctx context.Context) ([]*model.Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.ListObjects(ctx)
}

// Status summarizes the driver.
func (d *Driver) Status(ctx context.Context) (model.DriverStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	count, err := d.store.CountObjects(ctx)
	if err != nil {
		return model.DriverStatus{}, fmt.Errorf("count objects: %w", err)
	}

	ns, nl := d.sched.Info()
	next := -1.0
	if sec, ms := d.sched.Delay(); !(sec == 0 && ms == callout.InfiniteMillis) {
		next = float64(sec) + float64(ms)/1000
	}

	return model.DriverStatus{
		Uptime:    time.Since(d.startTime).Round(time.Second).String(),
		Objects:   count,
		NShort:    ns,
		NLong:     nl,
		NextDelay: next,
		SwapRate1: d.sched.SwapRate1(),
		SwapRate5: d.sched.SwapRate5(),
	}, nil
}

// Callouts lists the pending callouts with their remaining times.
func (d *Driver) Callouts(ctx context.Context) ([]model.CalloutView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	recs, err := d.store.ListCallouts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list callouts: %w", err)
	}
	objs, err := d.store.ListObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	names := make(map[uint16]string, len(objs))
	for _, o := range objs {
		names[o.ID] = o.Name
	}

	out := make([]model.CalloutView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.CalloutView{
			ObjectID: rec.ObjectID,
			Object:   names[rec.ObjectID],
			Handle:   rec.Handle,
			Method:   rec.Method,
			Left:     d.sched.Remaining(rec.Stored),
		})
	}
	return out, nil
}

// Snapshot dumps the callout table to the configured snapshot file.
func (d *Driver) Snapshot(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

// snapshot writes the dump to a temp file and renames it into place. The
// caller holds the lock.
func (d *Driver) snapshot() error {
	path := d.cfg.SnapshotPath
	if path == "" {
		return errors.New("snapshots disabled: no snapshot_path configured")
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := d.sched.Dump(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("install snapshot: %w", err)
	}

	d.log.Info("callout table dumped", "path", path)
	return nil
}

// RestoreSnapshot rebuilds the callout table from the configured snapshot
// file, if one exists. Called once at boot, before Run.
func (d *Driver) RestoreSnapshot() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.cfg.SnapshotPath
	var f *os.File
	if path != "" {
		var err error
		f, err = os.Open(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("open snapshot: %w", err)
		}
	}
	if f == nil {
		// no snapshot to match the dataspace against: any leftover
		// callout records are orphans and must not reach the scheduler
		n, err := d.store.DeleteAllCallouts(context.Background())
		if err != nil {
			return fmt.Errorf("prune callout records: %w", err)
		}
		if n > 0 {
			d.log.Warn("pruned orphaned callout records", "count", n)
		}
		return nil
	}
	defer f.Close()

	sec, _ := d.clk.Now()
	if err := d.sched.Restore(f, sec); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", path, err)
	}
	d.kick()
	return nil
}

// Tick runs a single dispatch iteration. Used by the loop and by tests.
func (d *Driver) Tick(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sched.Call(ctx, d)
}
