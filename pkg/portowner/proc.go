package portowner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-rackguard/pkg/errors"
)

const (
	DefaultProcRoot = "/proc"

	tcpStateListen = "0A"
)

// ProcFinder maps LISTEN sockets from <root>/net/tcp{,6} to their owning
// pid by scanning <root>/<pid>/fd links.
type ProcFinder struct {
	root string
}

func NewProcFinder(root string) *ProcFinder {
	return &ProcFinder{root: root}
}

func (f *ProcFinder) Lookup(ctx context.Context, port int) (int, bool, error) {
	inodes := make(map[string]struct{})
	read := 0
	for _, table := range []string{"tcp", "tcp6"} {
		path := filepath.Join(f.root, "net", table)
		file, err := os.Open(path)
		if err != nil {
			continue
		}
		found, err := ParseProcNetTCP(file, port)
		file.Close()
		if err != nil {
			return 0, false, errors.NewDiscoveryError("failed to parse socket table", err).WithContext("path", path)
		}
		read++
		for _, inode := range found {
			inodes[inode] = struct{}{}
		}
	}

	if read == 0 {
		return 0, false, errors.NewDiscoveryError("no readable socket table", nil).WithContext("root", f.root)
	}
	if len(inodes) == 0 {
		return 0, false, nil
	}

	return f.findSocketOwner(ctx, inodes)
}

func (f *ProcFinder) findSocketOwner(ctx context.Context, inodes map[string]struct{}) (int, bool, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return 0, false, errors.NewDiscoveryError("failed to list processes", err).WithContext("root", f.root)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}

		fdDir := filepath.Join(f.root, entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			// other users' processes are not readable
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if inode, ok := socketInode(link); ok {
				if _, hit := inodes[inode]; hit {
					return pid, true, nil
				}
			}
		}
	}

	return 0, false, nil
}

// socketInode extracts the inode from a "socket:[12345]" fd link
func socketInode(link string) (string, bool) {
	if !strings.HasPrefix(link, "socket:[") || !strings.HasSuffix(link, "]") {
		return "", false
	}
	return link[len("socket:[") : len(link)-1], true
}

// ParseProcNetTCP returns the inodes of sockets listening on port in a
// /proc/net/tcp or /proc/net/tcp6 table.
func ParseProcNetTCP(r io.Reader, port int) ([]string, error) {
	wantPort := fmt.Sprintf("%04X", port)

	var inodes []string
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}

		local := fields[1]
		idx := strings.LastIndexByte(local, ':')
		if idx < 0 || !strings.EqualFold(local[idx+1:], wantPort) {
			continue
		}
		if fields[3] != tcpStateListen {
			continue
		}
		if fields[9] == "0" {
			continue
		}
		inodes = append(inodes, fields[9])
	}

	return inodes, scanner.Err()
}
