// Package nyx is a cross-platform asynchronous I/O core: a single-threaded
// event loop that multiplexes network sockets, child processes, timers,
// cross-thread wakeups and a worker thread pool behind one reactor
// interface.
//
// nyx acts in proactor mode on every platform: callers submit operations
// (read, write, spawn, timer, work) and the loop delivers completions
// through callbacks run on the loop's own goroutine. The only
// goroutine-safe entry points from other goroutines are Async.Send and
// Pool.Submit; everything else must be called from the loop goroutine.
package nyx
