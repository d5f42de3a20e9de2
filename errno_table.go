package nyx

import "syscall"

// osErrnoTable maps syscall.Errno (whose numeric values are platform
// specific but whose symbol names are portable across GOOS in the stdlib
// syscall package) to the taxonomy in errno.go.
var osErrnoTable = map[syscall.Errno]Errno{
	syscall.EACCES:       EACCES,
	syscall.EAGAIN:       EAGAIN,
	syscall.EADDRINUSE:   EADDRINUSE,
	syscall.EBADF:        EBADF,
	syscall.ECONNREFUSED: ECONNREFUSED,
	syscall.ECONNRESET:   ECONNRESET,
	syscall.EEXIST:       EEXIST,
	syscall.EINVAL:       EINVAL,
	syscall.EIO:          EIO,
	syscall.EISDIR:       EISDIR,
	syscall.ELOOP:        ELOOP,
	syscall.EMFILE:       EMFILE,
	syscall.ENAMETOOLONG: ENAMETOOLONG,
	syscall.ENOENT:       ENOENT,
	syscall.ENOMEM:       ENOMEM,
	syscall.ENOSPC:       ENOSPC,
	syscall.ENOSYS:       ENOSYS,
	syscall.ENOTCONN:     ENOTCONN,
	syscall.ENOTDIR:      ENOTDIR,
	syscall.ENOTSOCK:     ENOTSOCK,
	syscall.EPIPE:        EPIPE,
	syscall.ESRCH:        ESRCH,
	syscall.ETIMEDOUT:    ETIMEDOUT,
}
