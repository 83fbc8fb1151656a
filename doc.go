// Package profiler measures GPU execution time of user-delimited spans of
// work using hardware timestamp queries, without stalling the pipeline.
//
// Scopes are opened and closed around command recording and may nest to any
// depth, with the parent relationship stated explicitly:
//
//	frame := profiler.BeginScope(enc, "frame", nil)
//	draw := profiler.BeginScope(enc, "draw", frame)
//	// ... record draw commands ...
//	profiler.EndScope(enc, draw)
//	profiler.EndScope(enc, frame)
//
// Once per frame, resolve the written queries and close the frame:
//
//	profiler.ResolveQueries(enc)
//	// submit encoders
//	profiler.EndFrame()
//
// Results become available a few frames later, in submission order, once the
// driver finishes the asynchronous readback:
//
//	if results, err := profiler.ProcessFinishedFrame(); results != nil {
//		chrometrace.WriteFile("trace.json", results, time.Now())
//	}
//
// GPU access goes through the [gpu.Binding] interface. The wgpuquery
// subpackage binds a gogpu/wgpu device; virtualgpu provides a deterministic
// CPU simulation for tests and development. The scope subpackage offers
// small guard types that pair Begin/End calls for the common case.
package profiler
