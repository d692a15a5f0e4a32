package monitor_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/cmbsolver/tuitcptester/internal/monitor"
	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

func newHubServer(t *testing.T, origins []string) (*monitor.Hub, *httptest.Server) {
	t.Helper()
	hub := monitor.NewHub(origins, time.Minute)
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialWS(t *testing.T, serverURL string, origin string) (*gorilla.Conn, error) {
	t.Helper()
	parsed, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	parsed.Scheme = "ws"

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, _, err := gorilla.DefaultDialer.Dial(parsed.String(), headers)
	return conn, err
}

func readEvent(t *testing.T, conn *gorilla.Conn) monitor.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev monitor.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event %q: %v", data, err)
	}
	return ev
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestHubHelloOnSubscribe(t *testing.T) {
	_, srv := newHubServer(t, nil)

	conn, err := dialWS(t, srv.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ev := readEvent(t, conn)
	if ev.Type != "hello" {
		t.Fatalf("expected hello event, got %q", ev.Type)
	}
	if ev.Time == 0 {
		t.Fatal("hello event should carry a timestamp")
	}
}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	hub, srv := newHubServer(t, nil)

	first, err := dialWS(t, srv.URL, "")
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.Close()
	second, err := dialWS(t, srv.URL, "")
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.Close()

	readEvent(t, first)
	readEvent(t, second)
	waitFor(t, 2*time.Second, func() bool { return hub.ClientCount() == 2 })

	hub.BroadcastLog("id-1", "alpha", "listening on 0.0.0.0:7000")

	for _, conn := range []*gorilla.Conn{first, second} {
		ev := readEvent(t, conn)
		if ev.Type != "log" || ev.Conn != "id-1" || ev.Name != "alpha" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Message != "listening on 0.0.0.0:7000" {
			t.Fatalf("unexpected message: %q", ev.Message)
		}
	}
}

func TestHubBroadcastStatus(t *testing.T) {
	hub, srv := newHubServer(t, nil)

	conn, err := dialWS(t, srv.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readEvent(t, conn)

	hub.BroadcastStatus("id-2", "beta", types.StatusConnected)

	ev := readEvent(t, conn)
	if ev.Type != "status" || ev.Status != "connected" {
		t.Fatalf("unexpected status event: %+v", ev)
	}
}

func TestHubBroadcastError(t *testing.T) {
	hub, srv := newHubServer(t, nil)

	conn, err := dialWS(t, srv.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readEvent(t, conn)

	hub.BroadcastError("id-3", "gamma", "CONNECT_FAILED: dial tcp: refused")

	ev := readEvent(t, conn)
	if ev.Type != "error" || ev.Message == "" {
		t.Fatalf("unexpected error event: %+v", ev)
	}
}

func TestHubDropsClosedSubscriber(t *testing.T) {
	hub, srv := newHubServer(t, nil)

	conn, err := dialWS(t, srv.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readEvent(t, conn)
	waitFor(t, 2*time.Second, func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, 2*time.Second, func() bool { return hub.ClientCount() == 0 })

	// Broadcasting into an empty hub must not panic or block.
	hub.BroadcastLog("id", "name", "after disconnect")
}

func TestHubOriginAllowList(t *testing.T) {
	_, srv := newHubServer(t, []string{"https://good.example"})

	conn, err := dialWS(t, srv.URL, "https://good.example")
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()

	if _, err := dialWS(t, srv.URL, "https://evil.example"); err == nil {
		t.Fatal("expected disallowed origin to be rejected")
	}

	// Native clients send no Origin header and always pass.
	conn, err = dialWS(t, srv.URL, "")
	if err != nil {
		t.Fatalf("originless dial rejected: %v", err)
	}
	conn.Close()
}

func TestHubOriginWildcards(t *testing.T) {
	_, srv := newHubServer(t, []string{"*.example.com"})

	conn, err := dialWS(t, srv.URL, "https://foo.example.com")
	if err != nil {
		t.Fatalf("subdomain wildcard rejected: %v", err)
	}
	conn.Close()

	if _, err := dialWS(t, srv.URL, "https://example.org"); err == nil {
		t.Fatal("expected non-matching origin to be rejected")
	}

	_, srvAll := newHubServer(t, []string{"*"})
	conn, err = dialWS(t, srvAll.URL, "https://anything.at.all")
	if err != nil {
		t.Fatalf("star wildcard rejected: %v", err)
	}
	conn.Close()
}

func TestHubOriginHostOnlyEntry(t *testing.T) {
	_, srv := newHubServer(t, []string{"foo.example.com"})

	conn, err := dialWS(t, srv.URL, "https://foo.example.com:8443")
	if err != nil {
		t.Fatalf("host-only allow entry rejected matching origin: %v", err)
	}
	conn.Close()
}

func TestHubCloseDisconnectsSubscribers(t *testing.T) {
	hub := monitor.NewHub(nil, time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, err := dialWS(t, srv.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readEvent(t, conn)

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected read to fail after hub close")
	}
}

func TestServerHealthAndEventStream(t *testing.T) {
	hub := monitor.NewHub(nil, time.Minute)
	srv := monitor.NewServer("127.0.0.1:0", hub)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	base := "http://" + srv.Addr().String()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", resp.StatusCode)
	}
	if string(body) != `{"status":"ok"}` {
		t.Fatalf("unexpected health body: %s", body)
	}

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()
	readEvent(t, conn)

	hub.BroadcastStatus("id-9", "delta", types.StatusListening)
	ev := readEvent(t, conn)
	if ev.Type != "status" || ev.Name != "delta" || ev.Status != "listening" {
		t.Fatalf("unexpected event over full server: %+v", ev)
	}
}

func TestServerShutdownDisconnectsSubscribers(t *testing.T) {
	hub := monitor.NewHub(nil, time.Minute)
	srv := monitor.NewServer("127.0.0.1:0", hub)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()
	readEvent(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected subscriber socket to close on shutdown")
	}
}

func TestServerBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer ln.Close()

	hub := monitor.NewHub(nil, time.Minute)
	defer hub.Close()

	srv := monitor.NewServer(ln.Addr().String(), hub)
	err = srv.Start()
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		t.Fatal("expected bind failure on occupied port")
	}
	if errs.CodeOf(err) != errs.ErrCodeBindFailed {
		t.Fatalf("expected BIND_FAILED, got %v", err)
	}
}
