package portowner

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/core-tools/hsu-rackguard/pkg/errors"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const procNetTCP = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 00000000:244C 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 55501 1 0000000000000000 100 0 0 10 0
   1: 0100007F:0BB8 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 55502 1 0000000000000000 100 0 0 10 0
   2: 0100007F:244C 0100007F:D431 01 00000000:00000000 00:00000000 00000000  1000        0 55503 1 0000000000000000 20 4 30 10 -1
`

const procNetTCP6 = `  sl  local_address                         remote_address                        st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 00000000000000000000000000000000:0BB8 00000000000000000000000000000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 66601 1 0000000000000000 100 0 0 10 0
`

func TestParseProcNetTCP(t *testing.T) {
	inodes, err := ParseProcNetTCP(strings.NewReader(procNetTCP), 9292)
	require.NoError(t, err)
	assert.Equal(t, []string{"55501"}, inodes, "established connections on the port are ignored")

	inodes, err = ParseProcNetTCP(strings.NewReader(procNetTCP), 3000)
	require.NoError(t, err)
	assert.Equal(t, []string{"55502"}, inodes)

	inodes, err = ParseProcNetTCP(strings.NewReader(procNetTCP), 8080)
	require.NoError(t, err)
	assert.Empty(t, inodes)
}

func makeProc(t *testing.T, sockets map[string]string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "net"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "net", "tcp"), []byte(procNetTCP), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "net", "tcp6"), []byte(procNetTCP6), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "self"), 0o755))

	for pid, inode := range sockets {
		fdDir := filepath.Join(root, pid, "fd")
		require.NoError(t, os.MkdirAll(fdDir, 0o755))
		require.NoError(t, os.Symlink("/dev/null", filepath.Join(fdDir, "0")))
		require.NoError(t, os.Symlink("socket:["+inode+"]", filepath.Join(fdDir, "7")))
	}
	return root
}

func TestProcFinder_Lookup(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	root := makeProc(t, map[string]string{
		"1234": "55501",
		"2345": "66601",
		"3456": "99999",
	})
	finder := NewProcFinder(root)

	pid, found, err := finder.Lookup(context.Background(), 9292)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1234, pid)

	pid, found, err = finder.Lookup(context.Background(), 8080)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, pid)
}

func TestProcFinder_Lookup_IPv6Only(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	// port 3000 has listeners in both tables; only the tcp6 socket has an owner here
	root := makeProc(t, map[string]string{"2345": "66601"})

	pid, found, err := NewProcFinder(root).Lookup(context.Background(), 3000)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2345, pid)
}

func TestProcFinder_Lookup_NoTables(t *testing.T) {
	_, _, err := NewProcFinder(t.TempDir()).Lookup(context.Background(), 9292)
	require.Error(t, err)
	assert.True(t, errors.IsDiscoveryError(err))
}

func TestSocketInode(t *testing.T) {
	inode, ok := socketInode("socket:[4242]")
	assert.True(t, ok)
	assert.Equal(t, "4242", inode)

	_, ok = socketInode("pipe:[4242]")
	assert.False(t, ok)
	_, ok = socketInode("/dev/null")
	assert.False(t, ok)
}

const lsofOutput = `COMMAND   PID USER   FD   TYPE             DEVICE SIZE/OFF NODE NAME
ruby    41234 dev   10u  IPv4 0x8e2a3b7c1d9f0a11      0t0  TCP *:9292 (LISTEN)
ruby    41234 dev   11u  IPv4 0x8e2a3b7c1d9f0a12      0t0  TCP 127.0.0.1:9292->127.0.0.1:53100 (ESTABLISHED)
curl    51234 dev    5u  IPv4 0x8e2a3b7c1d9f0a13      0t0  TCP 127.0.0.1:53100->127.0.0.1:9292 (ESTABLISHED)
`

const lsofLoopbackOnly = `COMMAND   PID USER   FD   TYPE             DEVICE SIZE/OFF NODE NAME
curl    51234 dev    5u  IPv4 0x8e2a3b7c1d9f0a13      0t0  TCP 127.0.0.1:53100->127.0.0.1:3000 (ESTABLISHED)
puma    61234 dev    7u  IPv4 0x8e2a3b7c1d9f0a14      0t0  TCP 127.0.0.1:3000 (LISTEN)
`

func TestParseLsof(t *testing.T) {
	pid, found := ParseLsof([]byte(lsofOutput), 9292)
	assert.True(t, found)
	assert.Equal(t, 41234, pid)

	pid, found = ParseLsof([]byte(lsofLoopbackOnly), 3000)
	assert.True(t, found)
	assert.Equal(t, 61234, pid)

	_, found = ParseLsof([]byte(lsofOutput), 92)
	assert.False(t, found)

	_, found = ParseLsof(nil, 9292)
	assert.False(t, found)
}

func TestLsofFinder_Lookup(t *testing.T) {
	var gotArgs []string
	finder := NewLsofFinder(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte(lsofOutput), nil
	})

	pid, found, err := finder.Lookup(context.Background(), 9292)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 41234, pid)
	assert.Equal(t, []string{"lsof", "-n", "-P", "-i", "TCP:9292"}, gotArgs)

	failing := NewLsofFinder(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, stderrors.New("exec: \"lsof\": executable file not found in $PATH")
	})
	_, _, err = failing.Lookup(context.Background(), 9292)
	assert.True(t, errors.IsDiscoveryError(err))
}

const netstatOutput = `
Active Connections

  Proto  Local Address          Foreign Address        State           PID
  TCP    0.0.0.0:135            0.0.0.0:0              LISTENING       1020
  TCP    127.0.0.1:9292         127.0.0.1:50123        ESTABLISHED     7788
  TCP    0.0.0.0:9292           0.0.0.0:0              LISTENING       4321
  TCP    [::]:9292              [::]:0                 LISTENING       4321
`

func TestParseNetstat(t *testing.T) {
	pid, found := ParseNetstat([]byte(netstatOutput), 9292)
	assert.True(t, found)
	assert.Equal(t, 4321, pid)

	pid, found = ParseNetstat([]byte(netstatOutput), 135)
	assert.True(t, found)
	assert.Equal(t, 1020, pid)

	_, found = ParseNetstat([]byte(netstatOutput), 35)
	assert.False(t, found)
}

func TestNetstatFinder_Lookup(t *testing.T) {
	finder := NewNetstatFinder(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "netstat", name)
		return []byte(netstatOutput), nil
	})

	pid, found, err := finder.Lookup(context.Background(), 9292)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4321, pid)
}

func TestNew_SelectsFinder(t *testing.T) {
	testCases := []struct {
		goos     string
		fallback Finder
	}{
		{"linux", &ProcFinder{}},
		{"darwin", &LsofFinder{}},
		{"freebsd", &LsofFinder{}},
		{"windows", &NetstatFinder{}},
	}

	for _, tc := range testCases {
		t.Run(tc.goos, func(t *testing.T) {
			chain, ok := New(tc.goos).(*Chain)
			require.True(t, ok)
			require.Len(t, chain.finders, 2)
			assert.IsType(t, &ConnFinder{}, chain.finders[0])
			assert.IsType(t, tc.fallback, chain.finders[1])
		})
	}
}

func listConns(conns []psnet.ConnectionStat, err error) ConnectionLister {
	return func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error) {
		return conns, err
	}
}

func TestConnFinder_Lookup(t *testing.T) {
	conns := []psnet.ConnectionStat{
		{Status: "ESTABLISHED", Laddr: psnet.Addr{IP: "127.0.0.1", Port: 9292}, Pid: 7788},
		{Status: "LISTEN", Laddr: psnet.Addr{IP: "0.0.0.0", Port: 3000}, Pid: 0},
		{Status: "LISTEN", Laddr: psnet.Addr{IP: "::", Port: 9292}, Pid: 4321},
	}

	var gotKind string
	finder := NewConnFinder(func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error) {
		gotKind = kind
		return conns, nil
	})

	pid, found, err := finder.Lookup(context.Background(), 9292)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4321, pid)
	assert.Equal(t, "tcp", gotKind)

	_, found, err = finder.Lookup(context.Background(), 3000)
	require.NoError(t, err)
	assert.False(t, found, "listeners without a resolved owner are skipped")

	_, found, err = finder.Lookup(context.Background(), 8080)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestConnFinder_LookupError(t *testing.T) {
	finder := NewConnFinder(listConns(nil, stderrors.New("not implemented yet")))

	_, _, err := finder.Lookup(context.Background(), 9292)
	require.Error(t, err)
	assert.True(t, errors.IsDiscoveryError(err))
}

func TestChain_FallsBackOnError(t *testing.T) {
	broken := NewConnFinder(listConns(nil, stderrors.New("not implemented yet")))
	netstat := NewNetstatFinder(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(netstatOutput), nil
	})

	pid, found, err := NewChain(broken, netstat).Lookup(context.Background(), 9292)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4321, pid)
}

func TestChain_FirstAnswerWins(t *testing.T) {
	empty := NewConnFinder(listConns(nil, nil))
	netstat := NewNetstatFinder(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		t.Fatal("fallback must not run when the first finder answered")
		return nil, nil
	})

	_, found, err := NewChain(empty, netstat).Lookup(context.Background(), 9292)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChain_AllFail(t *testing.T) {
	broken := NewConnFinder(listConns(nil, stderrors.New("boom")))

	_, _, err := NewChain(broken, broken).Lookup(context.Background(), 9292)
	assert.True(t, errors.IsDiscoveryError(err))

	_, _, err = NewChain().Lookup(context.Background(), 9292)
	assert.True(t, errors.IsDiscoveryError(err))
}
