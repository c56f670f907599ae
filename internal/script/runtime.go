// Package script runs scripted-object methods using JavaScript (goja). An
// object's source is a program defining top-level functions; callouts and
// the API address those functions by name. Scripts can reschedule through
// the callOut/removeCallOut host functions.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/dop251/goja"
	"github.com/me/mudd/pkg/model"
)

// Host exposes driver operations to running scripts. delayMs < 0 means the
// delay is second-precise.
type Host interface {
	ScheduleCallout(objID uint16, method string, args []any, delaySec int32, delayMs int32) (uint16, error)
	CancelCallout(objID uint16, handle uint16) error
}

// cached is one compiled object program.
type cached struct {
	source string
	prog   *goja.Program
}

// Runtime compiles and runs object programs. Compiled programs are cached
// per object; evictions from the bounded cache are reported through the
// evict hook, which the driver feeds into its swap-rate accounting.
type Runtime struct {
	logger      *slog.Logger
	host        Host
	maxPrograms int
	progs       map[uint16]*cached
	order       []uint16 // access order, oldest first
	onEvict     func(n uint32)
}

// Option configures optional Runtime behaviour.
type Option func(*Runtime)

// WithHost wires the callOut/removeCallOut host functions.
func WithHost(h Host) Option {
	return func(r *Runtime) { r.host = h }
}

// WithCacheSize bounds the compiled-program cache. The default is 64.
func WithCacheSize(n int) Option {
	return func(r *Runtime) { r.maxPrograms = n }
}

// WithEvictHook registers a callback invoked with the number of programs
// evicted from the cache.
func WithEvictHook(fn func(n uint32)) Option {
	return func(r *Runtime) { r.onEvict = fn }
}

// NewRuntime creates a script runtime.
func NewRuntime(logger *slog.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		logger:      logger.With("component", "script"),
		maxPrograms: 64,
		progs:       make(map[uint16]*cached),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Invoke runs obj's method with the given arguments in a fresh VM. It
// returns false when the method does not exist (the callout is silently
// dropped), and an error when compilation or the method itself failed.
func (r *Runtime) Invoke(ctx context.Context, obj *model.Object, method string, args []any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}

	prog, err := r.program(obj)
	if err != nil {
		return true, fmt.Errorf("compile object %s: %w", obj.Name, err)
	}

	vm, err := r.setupVM(obj)
	if err != nil {
		return true, err
	}
	if _, err := vm.RunProgram(prog); err != nil {
		return true, fmt.Errorf("load object %s: %w", obj.Name, err)
	}

	fn, ok := goja.AssertFunction(vm.Get(method))
	if !ok {
		return false, nil
	}

	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = vm.ToValue(a)
	}
	if _, err := fn(goja.Undefined(), jsArgs...); err != nil {
		return true, fmt.Errorf("%s.%s: %w", obj.Name, method, err)
	}
	return true, nil
}

// setupVM creates a VM with the object context and host functions bound.
func (r *Runtime) setupVM(obj *model.Object) (*goja.Runtime, error) {
	vm := goja.New()

	if err := vm.Set("me", map[string]any{
		"id":   obj.ID,
		"name": obj.Name,
	}); err != nil {
		return nil, fmt.Errorf("set me: %w", err)
	}

	if r.host == nil {
		return vm, nil
	}

	// callOut(method, delay, args...): delay in seconds; a fractional
	// delay is millisecond-precise. Returns the callout handle.
	callOut := func(method string, delay float64, args ...any) (int, error) {
		sec, ms := splitDelay(delay)
		h, err := r.host.ScheduleCallout(obj.ID, method, args, sec, ms)
		if err != nil {
			return 0, err
		}
		return int(h), nil
	}
	if err := vm.Set("callOut", callOut); err != nil {
		return nil, fmt.Errorf("set callOut: %w", err)
	}

	removeCallOut := func(handle int) error {
		return r.host.CancelCallout(obj.ID, uint16(handle))
	}
	if err := vm.Set("removeCallOut", removeCallOut); err != nil {
		return nil, fmt.Errorf("set removeCallOut: %w", err)
	}

	return vm, nil
}

// splitDelay converts a script delay in seconds into the (delaySec,
// delayMs) pair the host expects. Whole numbers stay second-precise.
func splitDelay(delay float64) (int32, int32) {
	if delay < 0 {
		delay = 0
	}
	sec := math.Floor(delay)
	ms := math.Round((delay - sec) * 1000)
	if ms >= 1000 {
		sec++
		ms = 0
	}
	if ms == 0 && delay == sec {
		return int32(sec), -1
	}
	return int32(sec), int32(ms)
}

// program returns the compiled program for obj, recompiling when the source
// changed and evicting the least recently used entry when the cache is
// full.
func (r *Runtime) program(obj *model.Object) (*goja.Program, error) {
	if c, ok := r.progs[obj.ID]; ok && c.source == obj.Source {
		r.touch(obj.ID)
		return c.prog, nil
	}

	prog, err := goja.Compile(obj.Name, obj.Source, false)
	if err != nil {
		return nil, err
	}

	if _, ok := r.progs[obj.ID]; !ok && len(r.progs) >= r.maxPrograms {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.progs, oldest)
		r.logger.Debug("program swapped out", "object", oldest)
		if r.onEvict != nil {
			r.onEvict(1)
		}
	}
	r.progs[obj.ID] = &cached{source: obj.Source, prog: prog}
	r.touch(obj.ID)
	return prog, nil
}

// touch moves id to the most recently used position.
func (r *Runtime) touch(id uint16) {
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.order = append(r.order, id)
}
