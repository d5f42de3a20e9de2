package nyx

import (
	"context"
	"net"
)

// GetAddrInfoCB delivers the result of a GetAddrInfo call.
type GetAddrInfoCB func(addrs []net.IPAddr, err error, cancelled bool)

// GetAddrInfo resolves host on the pool, per spec.md §4.5 ("DNS
// resolution" is named alongside filesystem ops and user work as a
// blocking operation that belongs on the worker pool, not the backend
// poller).
func GetAddrInfo(p *Pool, host string, cb GetAddrInfoCB) *WorkReq {
	return p.Submit(
		func() (any, error) { return net.DefaultResolver.LookupIPAddr(context.Background(), host) },
		func(result any, err error, cancelled bool) {
			if cancelled {
				cb(nil, err, true)
				return
			}
			addrs, _ := result.([]net.IPAddr)
			cb(addrs, err, false)
		},
	)
}
