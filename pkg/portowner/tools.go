package portowner

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-rackguard/pkg/errors"
)

// LsofFinder asks lsof for the TCP sockets on the port
type LsofFinder struct {
	run OutputRunner
}

func NewLsofFinder(run OutputRunner) *LsofFinder {
	return &LsofFinder{run: run}
}

func (f *LsofFinder) Lookup(ctx context.Context, port int) (int, bool, error) {
	out, err := f.run(ctx, "lsof", "-n", "-P", "-i", "TCP:"+strconv.Itoa(port))
	if err != nil {
		return 0, false, errors.NewDiscoveryError("lsof failed", err).WithContext("port", port)
	}
	pid, found := ParseLsof(out, port)
	return pid, found, nil
}

// ParseLsof picks the pid column of the first socket bound to the wildcard
// address on port, falling back to any socket listening on port.
func ParseLsof(out []byte, port int) (int, bool) {
	wildcard := "*:" + strconv.Itoa(port) + " "
	suffix := ":" + strconv.Itoa(port)

	fallback := 0
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil || pid <= 0 {
			continue
		}

		if strings.Contains(line+" ", wildcard) {
			return pid, true
		}
		if fallback == 0 && strings.Contains(line, "(LISTEN)") {
			for _, field := range fields {
				if strings.HasSuffix(field, suffix) {
					fallback = pid
					break
				}
			}
		}
	}

	return fallback, fallback != 0
}

// NetstatFinder reads `netstat -ano -p TCP` on Windows
type NetstatFinder struct {
	run OutputRunner
}

func NewNetstatFinder(run OutputRunner) *NetstatFinder {
	return &NetstatFinder{run: run}
}

func (f *NetstatFinder) Lookup(ctx context.Context, port int) (int, bool, error) {
	out, err := f.run(ctx, "netstat", "-ano", "-p", "TCP")
	if err != nil {
		return 0, false, errors.NewDiscoveryError("netstat failed", err).WithContext("port", port)
	}
	pid, found := ParseNetstat(out, port)
	return pid, found, nil
}

// ParseNetstat returns the pid of the LISTENING row whose local address
// ends in :port.
func ParseNetstat(out []byte, port int) (int, bool) {
	suffix := ":" + strconv.Itoa(port)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 5 || !strings.EqualFold(fields[0], "TCP") {
			continue
		}
		if fields[3] != "LISTENING" || !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil || pid <= 0 {
			continue
		}
		return pid, true
	}

	return 0, false
}
