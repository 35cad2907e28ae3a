package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/indigo-web/webcore/internal/timer"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	require.Equal(t, Skip, Classify(0, nil))
	require.Equal(t, Next, Classify(5, nil))
	require.Equal(t, Done, Classify(0, io.EOF))
	require.Equal(t, Timeout, Classify(0, fmt.Errorf("read: %w", os.ErrDeadlineExceeded)))
	require.Equal(t, Reset, Classify(0, &net.OpError{Op: "read", Err: syscall.ECONNRESET}))
	require.Equal(t, Reset, Classify(0, io.ErrClosedPipe))
	require.Equal(t, Error, Classify(0, errors.New("something odd")))
	require.Equal(t, "done-async", DoneAsync.String())
}

func TestClient(t *testing.T) {
	server, peer := net.Pipe()
	defer peer.Close()
	client := NewClient(server, time.Second, make([]byte, 64))

	go func() {
		_, _ = peer.Write([]byte("hello"))
	}()

	data, err := client.Read()
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	client.Pushback(data[1:])
	data, err = client.Read()
	require.NoError(t, err)
	require.Equal(t, "ello", string(data))

	t.Run("sendfile over pipe is unsupported", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("content"), 0o600))
		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		_, err = client.SendFile(f, 0, 7)
		require.ErrorIs(t, err, ErrSendFileUnsupported)
	})

	t.Run("timeout", func(t *testing.T) {
		client.SetTimeout(10 * time.Millisecond)
		_, err := client.Read()
		require.Equal(t, Timeout, Classify(0, err))
	})
}

func TestSendFileTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			received <- err.Error()
			return
		}

		data, _ := io.ReadAll(conn)
		received <- string(data)
	}()

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	client := NewClient(conn, time.Second, make([]byte, 64))

	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n, err := client.SendFile(f, 2, 4)
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
	require.NoError(t, client.Close())
	require.Equal(t, "2345", <-received)
}

func TestStallWatcher(t *testing.T) {
	var reported []net.Addr
	w := NewStallWatcher(time.Second, func(remote net.Addr, idle time.Duration) {
		reported = append(reported, remote)
	})

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1234}
	progress := w.Track(addr)
	idle := w.Track(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4321})
	require.Equal(t, 2, w.Len())

	now := timer.Now()
	require.Zero(t, w.Check(now))
	require.Equal(t, 2, w.Check(now.Add(2*time.Second)))
	require.Zero(t, w.Check(now.Add(3*time.Second)), "stalls are reported once")

	progress.Touch()
	idle.Done()
	require.Equal(t, 1, w.Len())
	require.Equal(t, 1, w.Check(timer.Now().Add(2*time.Second)))
	require.Len(t, reported, 3)
	require.Equal(t, addr, reported[2])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)
}
