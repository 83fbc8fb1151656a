// Package virtualgpu simulates timestamp queries on the CPU.
//
// The device hands out monotonically increasing ticks, one step per written
// timestamp, and completes query readbacks only when Poll is called. That
// makes frame pipelining fully deterministic: a test (or the demo) decides
// exactly when a frame's readback "arrives".
package virtualgpu

import (
	"sync"

	"github.com/gogpu/wgpu-profiler/gpu"
)

func init() {
	gpu.Register(gpu.BindingVirtual, func() (gpu.Binding, error) {
		return New(), nil
	})
}

// Option configures a virtual device.
type Option func(*Device)

// WithTickStep sets the tick increment per written timestamp.
func WithTickStep(step uint64) Option {
	return func(d *Device) { d.tickStep = step }
}

// WithTimestampPeriod sets the simulated ticks→nanoseconds factor.
func WithTimestampPeriod(period float32) Option {
	return func(d *Device) { d.period = period }
}

// WithCapabilities overrides the advertised capabilities.
func WithCapabilities(caps gpu.Capabilities) Option {
	return func(d *Device) { d.caps = caps }
}

// Device is a CPU-simulated timestamp query device. It implements
// [gpu.Binding].
type Device struct {
	tickStep uint64
	period   float32
	caps     gpu.Capabilities

	mu       sync.Mutex
	tick     uint64
	queued   []mapRequest
	mapErr   error
	liveSets int
}

type mapRequest struct {
	ticks []uint64
	err   error
	done  func(ticks []uint64, err error)
}

// New creates a virtual device. By default every written timestamp advances
// the clock by 100 ticks and the period is 1.0.
func New(opts ...Option) *Device {
	d := &Device{
		tickStep: 100,
		period:   1.0,
		caps: gpu.Capabilities{
			TimerQueries:         true,
			TimerQueriesInPasses: true,
			MaxQuerySetSize:      gpu.DefaultMaxQuerySetSize,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Capabilities() gpu.Capabilities { return d.caps }

func (d *Device) TimestampPeriod() float32 { return d.period }

// CreateQuerySet allocates a simulated query set.
func (d *Device) CreateQuerySet(capacity uint32) (gpu.QuerySet, error) {
	d.mu.Lock()
	d.liveSets++
	d.mu.Unlock()
	return &querySet{
		dev:      d,
		slots:    make([]uint64, capacity),
		resolved: make([]uint64, capacity),
	}, nil
}

// SetTick positions the simulated clock; subsequent timestamps start there.
func (d *Device) SetTick(tick uint64) {
	d.mu.Lock()
	d.tick = tick
	d.mu.Unlock()
}

// FailNextMaps makes every readback queued from now on complete with err
// when polled. Pass nil to restore normal completion.
func (d *Device) FailNextMaps(err error) {
	d.mu.Lock()
	d.mapErr = err
	d.mu.Unlock()
}

// Poll delivers all queued readback completions, in the order the maps were
// issued, and reports how many were delivered. Callbacks run on the caller's
// goroutine.
func (d *Device) Poll() int {
	d.mu.Lock()
	queued := d.queued
	d.queued = nil
	d.mu.Unlock()

	for _, req := range queued {
		req.done(req.ticks, req.err)
	}
	return len(queued)
}

// LiveQuerySets returns the number of created but not yet destroyed sets.
func (d *Device) LiveQuerySets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveSets
}

func (d *Device) nextTick() uint64 {
	d.mu.Lock()
	d.tick += d.tickStep
	t := d.tick
	d.mu.Unlock()
	return t
}

type querySet struct {
	dev *Device

	mu       sync.Mutex
	slots    []uint64
	resolved []uint64
}

func (q *querySet) Capacity() uint32 { return uint32(len(q.slots)) }

func (q *querySet) write(index uint32) {
	t := q.dev.nextTick()
	q.mu.Lock()
	if int(index) < len(q.slots) {
		q.slots[index] = t
	}
	q.mu.Unlock()
}

// Resolve snapshots the written slots, as a real device copies query results
// into a resolve buffer. Slots written after Resolve are not visible to a
// later map unless resolved again.
func (q *querySet) Resolve(_ gpu.Recorder, first, count uint32) {
	q.mu.Lock()
	copy(q.resolved[first:first+count], q.slots[first:first+count])
	q.mu.Unlock()
}

// MapAsync queues a readback of the resolved slots. The completion fires on
// the next Device.Poll, never inside this call.
func (q *querySet) MapAsync(first, count uint32, done func(ticks []uint64, err error)) {
	q.mu.Lock()
	ticks := make([]uint64, count)
	copy(ticks, q.resolved[first:first+count])
	q.mu.Unlock()

	q.dev.mu.Lock()
	req := mapRequest{ticks: ticks, err: q.dev.mapErr, done: done}
	if req.err != nil {
		req.ticks = nil
	}
	q.dev.queued = append(q.dev.queued, req)
	q.dev.mu.Unlock()
}

// Unmap is a no-op: the simulation copies ticks out at MapAsync time.
func (q *querySet) Unmap() {}

func (q *querySet) Destroy() {
	q.dev.mu.Lock()
	q.dev.liveSets--
	q.dev.mu.Unlock()
}

// Recorder simulates a command recording context. Create encoders and
// passes from the device-independent constructors below.
type Recorder struct {
	dev    *Device
	name   string
	isPass bool

	mu     sync.Mutex
	groups []string
}

// NewEncoder creates a recorder behaving like a command encoder.
func (d *Device) NewEncoder(name string) *Recorder {
	return &Recorder{dev: d, name: name}
}

// NewPass creates a recorder behaving like a render or compute pass.
func (d *Device) NewPass(name string) *Recorder {
	return &Recorder{dev: d, name: name, isPass: true}
}

func (r *Recorder) IsPass() bool { return r.isPass }

func (r *Recorder) WriteTimestamp(qs gpu.QuerySet, index uint32) {
	qs.(*querySet).write(index)
}

// WritePassTimestamps simulates the begin and end timestamps a real pass
// writes at its boundaries when given timestamp writes in its descriptor.
func (r *Recorder) WritePassTimestamps(qs gpu.QuerySet, begin, end uint32) {
	q := qs.(*querySet)
	q.write(begin)
	q.write(end)
}

func (r *Recorder) PushDebugGroup(label string) {
	r.mu.Lock()
	r.groups = append(r.groups, label)
	r.mu.Unlock()
}

func (r *Recorder) PopDebugGroup() {
	r.mu.Lock()
	if n := len(r.groups); n > 0 {
		r.groups = r.groups[:n-1]
	}
	r.mu.Unlock()
}

// DebugGroupDepth returns the number of open debug groups, for tests.
func (r *Recorder) DebugGroupDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}
