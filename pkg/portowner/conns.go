package portowner

import (
	"context"

	"github.com/core-tools/hsu-rackguard/pkg/errors"

	psnet "github.com/shirou/gopsutil/v3/net"
)

const statusListen = "LISTEN"

// ConnectionLister returns the sockets of the given kind ("tcp", "udp", ...)
// together with their owning pids.
type ConnectionLister func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error)

// ConnFinder asks gopsutil for the system's TCP connections and picks the
// listener on the port.
type ConnFinder struct {
	list ConnectionLister
}

func NewConnFinder(list ConnectionLister) *ConnFinder {
	return &ConnFinder{list: list}
}

func (f *ConnFinder) Lookup(ctx context.Context, port int) (int, bool, error) {
	conns, err := f.list(ctx, "tcp")
	if err != nil {
		return 0, false, errors.NewDiscoveryError("failed to list tcp connections", err).WithContext("port", port)
	}

	for _, conn := range conns {
		if conn.Status != statusListen || conn.Laddr.Port != uint32(port) {
			continue
		}
		// pid 0 means the owner could not be resolved, e.g. another user's process
		if conn.Pid <= 0 {
			continue
		}
		return int(conn.Pid), true, nil
	}

	return 0, false, nil
}

// Chain tries each finder in turn and settles on the first one that answers
// without an error.
type Chain struct {
	finders []Finder
}

func NewChain(finders ...Finder) *Chain {
	return &Chain{finders: finders}
}

func (c *Chain) Lookup(ctx context.Context, port int) (int, bool, error) {
	var lastErr error
	for _, finder := range c.finders {
		pid, found, err := finder.Lookup(ctx, port)
		if err == nil {
			return pid, found, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.NewDiscoveryError("no port finder configured", nil)
	}
	return 0, false, lastErr
}
