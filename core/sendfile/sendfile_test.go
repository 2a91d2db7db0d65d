//go:build linux

package sendfile

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func tempFile(t *testing.T, data []byte) *os.File {
	t.Helper()
	name := filepath.Join(t.TempDir(), "static.bin")
	require.NoError(t, os.WriteFile(name, data, 0o644))
	f, err := os.Open(name)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func socketPair(t *testing.T, sndbuf int) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	require.NoError(t, unix.SetNonblock(fds[0], true))
	if sndbuf > 0 {
		require.NoError(t, unix.SetsockoptInt(fds[0], unix.SOL_SOCKET, unix.SO_SNDBUF, sndbuf))
	}
	return fds[0], fds[1]
}

func drain(t *testing.T, fd int, out *bytes.Buffer) {
	t.Helper()
	buf := make([]byte, 64*1024)
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EAGAIN || n <= 0 {
			return
		}
		out.Write(buf[:n])
	}
}

func TestTransfer_SmallFile(t *testing.T) {
	f := tempFile(t, []byte("0123456789"))
	sock, peer := socketPair(t, 0)

	var pos int64
	outcome, sent, err := Transfer(sock, int(f.Fd()), &pos, 10)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, int64(10), sent)
	assert.Equal(t, int64(10), pos)

	got := make([]byte, 32)
	n, err := unix.Read(peer, got)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got[:n]))
}

func TestTransfer_ResumesAfterWouldBlock(t *testing.T) {
	data := make([]byte, 1<<20)
	_, err := rand.Read(data)
	require.NoError(t, err)

	f := tempFile(t, data)
	sock, peer := socketPair(t, 4096)
	require.NoError(t, unix.SetNonblock(peer, true))

	var (
		pos        int64
		out        bytes.Buffer
		suspended  int
		totalSent  int64
		iterations int
	)
	for {
		iterations++
		require.Less(t, iterations, 100000)

		outcome, sent, err := Transfer(sock, int(f.Fd()), &pos, int64(len(data)))
		require.NoError(t, err)
		totalSent += sent
		if outcome == Completed {
			break
		}
		assert.Equal(t, Suspended, outcome)
		suspended++
		drain(t, peer, &out)
	}
	drain(t, peer, &out)

	assert.Greater(t, suspended, 0)
	assert.Equal(t, int64(len(data)), pos)
	assert.Equal(t, int64(len(data)), totalSent)
	assert.True(t, bytes.Equal(data, out.Bytes()))
}

func TestTransfer_ShortFile(t *testing.T) {
	f := tempFile(t, []byte("abc"))
	sock, _ := socketPair(t, 0)

	var pos int64
	outcome, sent, err := Transfer(sock, int(f.Fd()), &pos, 10)
	assert.Equal(t, Failed, outcome)
	assert.ErrorIs(t, err, ErrShortFile)
	assert.Equal(t, int64(3), sent)
}

func TestTransfer_ClosedPeer(t *testing.T) {
	f := tempFile(t, bytes.Repeat([]byte("x"), 1024))
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	unix.Close(fds[1])

	var pos int64
	outcome, _, err := Transfer(fds[0], int(f.Fd()), &pos, 1024)
	assert.Equal(t, Failed, outcome)
	assert.Error(t, err)
}

func TestTransfer_EmptyFile(t *testing.T) {
	f := tempFile(t, nil)
	sock, _ := socketPair(t, 0)

	var pos int64
	outcome, sent, err := Transfer(sock, int(f.Fd()), &pos, 0)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Zero(t, sent)
}
