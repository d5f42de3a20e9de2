package nyx

import "os"

// FSStatCB delivers the result of an FSStat call.
type FSStatCB func(info os.FileInfo, err error, cancelled bool)

// FSStat stats path on the pool and delivers the result on the loop
// thread. Filesystem operations have no portable non-blocking syscall on
// every platform, so spec.md §4.5 routes them through the worker pool
// rather than the backend poller.
func FSStat(p *Pool, path string, cb FSStatCB) *WorkReq {
	return p.Submit(
		func() (any, error) { return os.Stat(path) },
		func(result any, err error, cancelled bool) {
			if cancelled {
				cb(nil, err, true)
				return
			}
			info, _ := result.(os.FileInfo)
			cb(info, err, false)
		},
	)
}

// FSReadFileCB delivers the result of an FSReadFile call.
type FSReadFileCB func(data []byte, err error, cancelled bool)

// FSReadFile reads the entire contents of path on the pool.
func FSReadFile(p *Pool, path string, cb FSReadFileCB) *WorkReq {
	return p.Submit(
		func() (any, error) { return os.ReadFile(path) },
		func(result any, err error, cancelled bool) {
			if cancelled {
				cb(nil, err, true)
				return
			}
			data, _ := result.([]byte)
			cb(data, err, false)
		},
	)
}

// FSWriteFileCB delivers the result of an FSWriteFile call.
type FSWriteFileCB func(err error, cancelled bool)

// FSWriteFile writes data to path on the pool with mode perm.
func FSWriteFile(p *Pool, path string, data []byte, perm os.FileMode, cb FSWriteFileCB) *WorkReq {
	return p.Submit(
		func() (any, error) { return nil, os.WriteFile(path, data, perm) },
		func(_ any, err error, cancelled bool) { cb(err, cancelled) },
	)
}
