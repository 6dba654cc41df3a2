// Package prof wires runtime profiling into the bridge.
//
// Three independent mechanisms are available, all off by default:
//
//   - A CPU profile written to a file for the lifetime of the process,
//     via [StartCPU] and [StopCPU].
//   - Snapshot profiles such as the heap, via [Write], typically taken at
//     exit.
//   - The /debug/pprof handlers, mounted on an existing mux by [Register],
//     and continuous profiling pushed to a Pyroscope server by
//     [StartContinuous].
//
// [ProfileCPU] cannot be used with [Write]; use [StartCPU] instead.
package prof
