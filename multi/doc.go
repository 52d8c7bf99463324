// Package multi drives several debug probes concurrently by giving each its
// own worker process.
//
// The native control library keeps process-wide state and tolerates only one
// live instance per process, so a Proxy spawns a dedicated worker process,
// constructs the probe controller there, and forwards every operation across
// the process boundary. Calls are fully synchronous and strictly serialized
// per Proxy; true parallelism exists across Proxy instances. A crash inside
// one worker takes down only that worker.
//
// The default start strategy re-runs the current executable in worker mode,
// so any binary that constructs a Proxy must call MaybeRunWorker first thing
// in main:
//
//	func main() {
//		multi.MaybeRunWorker()
//		// normal startup
//	}
//
// Drivers used by a worker must be registered (probe.Register) before
// MaybeRunWorker runs, typically from an init function linked into the
// binary.
package multi
