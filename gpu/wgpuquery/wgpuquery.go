// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpuquery binds timestamp queries to a gogpu/wgpu HAL device.
//
// The binding owns, per query set, a resolve buffer the device writes query
// results into and a mappable staging buffer for readback. Readback never
// blocks the caller: completion is awaited on a background goroutine behind
// a fence signaled after all previously submitted work.
package wgpuquery

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgpu-profiler/gpu"
)

const slotSize = 8 // one uint64 tick per query slot

// RegisterDefault makes this binding available under [gpu.BindingWgpu].
// Unlike the virtual binding there is no zero-argument constructor, so the
// application registers a closure over its own device and queue.
func RegisterDefault(device hal.Device, queue hal.Queue, opts ...Option) {
	gpu.Register(gpu.BindingWgpu, func() (gpu.Binding, error) {
		return New(device, queue, opts...)
	})
}

// Option configures the binding.
type Option func(*Binding)

// WithCapabilities overrides the advertised capabilities. Callers that
// negotiated device features themselves should pass the outcome here.
func WithCapabilities(caps gpu.Capabilities) Option {
	return func(b *Binding) { b.caps = caps }
}

// WithTimestampPeriod sets the ticks→nanoseconds factor reported by the
// device's queue.
func WithTimestampPeriod(period float32) Option {
	return func(b *Binding) { b.period = period }
}

// WithReadbackTimeout bounds the fence wait during readback.
func WithReadbackTimeout(d time.Duration) Option {
	return func(b *Binding) { b.timeout = d }
}

// Binding implements [gpu.Binding] on a HAL device and queue.
type Binding struct {
	device hal.Device
	queue  hal.Queue

	caps    gpu.Capabilities
	period  float32
	timeout time.Duration
}

// New creates a binding on the given device and queue.
//
// Capabilities default to timer queries supported outside passes only, with
// a period of 1.0; override with WithCapabilities and WithTimestampPeriod
// from the values negotiated at device creation.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Binding, error) {
	if device == nil || queue == nil {
		return nil, errors.New("wgpuquery: device and queue are required")
	}
	b := &Binding{
		device: device,
		queue:  queue,
		caps: gpu.Capabilities{
			TimerQueries:    true,
			MaxQuerySetSize: gpu.DefaultMaxQuerySetSize,
		},
		period:  1.0,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Binding) Capabilities() gpu.Capabilities { return b.caps }

func (b *Binding) TimestampPeriod() float32 { return b.period }

// CreateQuerySet allocates a timestamp query set together with its resolve
// and readback buffers.
func (b *Binding) CreateQuerySet(capacity uint32) (gpu.QuerySet, error) {
	set, err := b.device.CreateQuerySet(&hal.QuerySetDescriptor{
		Label: "profiler-timestamps",
		Type:  hal.QueryTypeTimestamp,
		Count: capacity,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpuquery: failed to create query set: %w", err)
	}

	size := uint64(capacity) * slotSize
	resolveBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "profiler-resolve",
		Size:  size,
		Usage: gputypes.BufferUsageQueryResolve | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		b.device.DestroyQuerySet(set)
		return nil, fmt.Errorf("wgpuquery: failed to create resolve buffer: %w", err)
	}
	readBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "profiler-readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		b.device.DestroyBuffer(resolveBuf)
		b.device.DestroyQuerySet(set)
		return nil, fmt.Errorf("wgpuquery: failed to create readback buffer: %w", err)
	}

	return &querySet{
		b:          b,
		set:        set,
		capacity:   capacity,
		resolveBuf: resolveBuf,
		readBuf:    readBuf,
	}, nil
}

type querySet struct {
	b          *Binding
	set        hal.QuerySet
	capacity   uint32
	resolveBuf hal.Buffer
	readBuf    hal.Buffer
}

func (q *querySet) Capacity() uint32 { return q.capacity }

// Handle returns the underlying HAL query set, for wiring pass descriptor
// timestamp writes.
func (q *querySet) Handle() hal.QuerySet { return q.set }

// Resolve records the resolve of [first, first+count) plus the copy into the
// readback buffer. rec must wrap a command encoder; resolving inside a pass
// is not possible on any backend.
func (q *querySet) Resolve(rec gpu.Recorder, first, count uint32) {
	enc, ok := rec.(interface{ HAL() hal.CommandEncoder })
	if !ok {
		return
	}
	offset := uint64(first) * slotSize
	size := uint64(count) * slotSize
	enc.HAL().ResolveQuerySet(q.set, first, count, q.resolveBuf, offset)
	enc.HAL().CopyBufferToBuffer(q.resolveBuf, q.readBuf, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: offset, Size: size},
	})
}

// MapAsync reads [first, first+count) back once all work submitted so far
// completes. The wait happens on a fresh goroutine; done fires there.
func (q *querySet) MapAsync(first, count uint32, done func(ticks []uint64, err error)) {
	fence, err := q.b.device.CreateFence()
	if err != nil {
		done(nil, fmt.Errorf("wgpuquery: failed to create fence: %w", err))
		return
	}
	// An empty submission: the fence signals after everything already in
	// the queue, including the resolve copies.
	if err := q.b.queue.Submit(nil, fence, 1); err != nil {
		q.b.device.DestroyFence(fence)
		done(nil, fmt.Errorf("wgpuquery: failed to submit fence: %w", err))
		return
	}

	go func() {
		defer q.b.device.DestroyFence(fence)

		signaled, err := q.b.device.Wait(fence, 1, q.b.timeout)
		if err != nil {
			done(nil, fmt.Errorf("wgpuquery: fence wait failed: %w", err))
			return
		}
		if !signaled {
			done(nil, fmt.Errorf("wgpuquery: fence wait timed out after %v", q.b.timeout))
			return
		}

		raw := make([]byte, uint64(count)*slotSize)
		if err := q.b.queue.ReadBuffer(q.readBuf, uint64(first)*slotSize, raw); err != nil {
			done(nil, fmt.Errorf("wgpuquery: readback failed: %w", err))
			return
		}
		ticks := make([]uint64, count)
		for i := range ticks {
			ticks[i] = binary.LittleEndian.Uint64(raw[i*slotSize:])
		}
		done(ticks, nil)
	}()
}

func (q *querySet) Unmap() {}

func (q *querySet) Destroy() {
	q.b.device.DestroyBuffer(q.readBuf)
	q.b.device.DestroyBuffer(q.resolveBuf)
	q.b.device.DestroyQuerySet(q.set)
}
