// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpuquery

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgpu-profiler/gpu"
)

// Encoder adapts a HAL command encoder to [gpu.Recorder].
type Encoder struct {
	enc hal.CommandEncoder
}

// WrapEncoder wraps a command encoder for scope recording.
func WrapEncoder(enc hal.CommandEncoder) *Encoder {
	return &Encoder{enc: enc}
}

// HAL returns the wrapped encoder.
func (e *Encoder) HAL() hal.CommandEncoder { return e.enc }

func (e *Encoder) IsPass() bool { return false }

func (e *Encoder) WriteTimestamp(qs gpu.QuerySet, index uint32) {
	e.enc.WriteTimestamp(qs.(*querySet).set, index)
}

func (e *Encoder) PushDebugGroup(label string) { e.enc.PushDebugGroup(label) }

func (e *Encoder) PopDebugGroup() { e.enc.PopDebugGroup() }

// PassEncoder is the subset of a HAL render or compute pass encoder the
// profiler records through.
type PassEncoder interface {
	WriteTimestamp(set hal.QuerySet, index uint32)
	PushDebugGroup(label string)
	PopDebugGroup()
}

// Pass adapts a HAL pass encoder to [gpu.Recorder]. In-pass timestamp
// writes require the corresponding device capability; without it, open
// scopes on the owning encoder around the pass instead.
type Pass struct {
	pass PassEncoder
}

// WrapPass wraps a render or compute pass encoder for scope recording.
func WrapPass(pass PassEncoder) *Pass {
	return &Pass{pass: pass}
}

func (p *Pass) IsPass() bool { return true }

func (p *Pass) WriteTimestamp(qs gpu.QuerySet, index uint32) {
	p.pass.WriteTimestamp(qs.(*querySet).set, index)
}

func (p *Pass) PushDebugGroup(label string) { p.pass.PushDebugGroup(label) }

func (p *Pass) PopDebugGroup() { p.pass.PopDebugGroup() }
