package main

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/corvid-labs/reactorhttp/internal/async"
	"github.com/corvid-labs/reactorhttp/internal/bufpool"
	"github.com/corvid-labs/reactorhttp/internal/ioctx"
	"github.com/corvid-labs/reactorhttp/internal/ioops"
	"github.com/corvid-labs/reactorhttp/internal/reactor"
	"github.com/corvid-labs/reactorhttp/internal/workerpool"
)

// testHarness assembles the same pieces run() wires together, on a
// fixed test port, so the tests below can drive Stop() directly rather
// than going through an OS signal.
type testHarness struct {
	cfg  *Config
	r    *reactor.Reactor
	sock *ioops.ListeningSocket
	pool *workerpool.Pool
	addr string
}

func newTestHarness(t *testing.T, port int) *testHarness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Port = port
	cfg.NumWorkers = 4

	r, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	ctx := ioctx.New(r)

	sock, err := ioops.NewListeningSocket()
	if err != nil {
		t.Fatalf("NewListeningSocket: %v", err)
	}
	if err := sock.Bind(cfg.Port); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := sock.Listen(cfg.ListenBacklog); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	pool := workerpool.New(cfg.NumWorkers)
	buffers := bufpool.NewSimpleBytePool(cfg.BufPoolDepth, cfg.ReadBufSize)

	async.StartDetached(acceptLoop(ctx, pool, buffers, sock))
	go r.Run()

	return &testHarness{
		cfg:  cfg,
		r:    r,
		sock: sock,
		pool: pool,
		addr: "127.0.0.1:" + itoaPort(cfg.Port),
	}
}

func (h *testHarness) stop() {
	h.r.Stop()
	h.pool.Close()
	h.sock.Close()
	h.r.Close()
}

func itoaPort(p int) string {
	if p == 0 {
		return "0"
	}
	digits := [8]byte{}
	i := len(digits)
	for p > 0 {
		i--
		digits[i] = byte('0' + p%10)
		p /= 10
	}
	return string(digits[i:])
}

// TestConcurrentRequestsAllGetWellFormedResponses covers S4: many
// concurrent connections each sending a well-formed request all
// receive a well-formed response and every socket closes cleanly.
func TestConcurrentRequestsAllGetWellFormedResponses(t *testing.T) {
	h := newTestHarness(t, 18180)
	defer h.stop()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", h.addr, 2*time.Second)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()

			req := "GET /does-not-exist HTTP/1.1\r\nHost: localhost\r\nContent-Length: 0\r\n\r\n"
			conn.SetDeadline(time.Now().Add(2 * time.Second))
			if _, err := conn.Write([]byte(req)); err != nil {
				errs <- err
				return
			}
			body, err := io.ReadAll(conn)
			if err != nil {
				errs <- err
				return
			}
			if len(body) == 0 {
				errs <- errResponseEmpty
				return
			}
			if !hasPrefix(body, "HTTP/1.1 404") {
				errs <- errBadStatusLine
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("connection failed: %v", err)
	}
}

// TestStopMidReadClosesConnectionsCleanly covers S5: connections that
// are mid-read when the reactor stops are closed without hanging or
// panicking, instead of leaving a half-written response on the wire.
func TestStopMidReadClosesConnectionsCleanly(t *testing.T) {
	h := newTestHarness(t, 18181)

	const n = 10
	conns := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		conn, err := net.DialTimeout("tcp", h.addr, 2*time.Second)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		// Partial request: headers never terminate, so the server's
		// read loop stays parked on AsyncRead.
		if _, err := conn.Write([]byte("GET /does-not-exist HTTP/1.1\r\nHost: localhost\r\n")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		conns = append(conns, conn)
	}

	h.r.Stop()

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn net.Conn) {
			defer wg.Done()
			defer conn.Close()
			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			buf := make([]byte, 4096)
			n, err := conn.Read(buf)
			if err != nil && err != io.EOF {
				t.Errorf("conn %d: unexpected read error: %v", i, err)
				return
			}
			if n > 0 && !hasPrefix(buf[:n], "HTTP/1.1 500") {
				t.Errorf("conn %d: unexpected partial bytes: %q", i, buf[:n])
			}
		}(i, conn)
	}
	wg.Wait()

	h.pool.Close()
	h.sock.Close()
	h.r.Close()
}

var (
	errResponseEmpty = errString("empty response body")
	errBadStatusLine = errString("response missing expected status line")
)

type errString string

func (e errString) Error() string { return string(e) }

func hasPrefix(b []byte, s string) bool {
	if len(b) < len(s) {
		return false
	}
	return string(b[:len(s)]) == s
}
