package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

func signed(t *testing.T, secret, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: sub})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.InternalSecret == "" {
		cfg.InternalSecret = "dev-secret"
	}
	s := NewServer(cfg, prometheus.NewRegistry())
	srv := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		srv.Close()
		s.Hub().Close()
	})
	return s, srv
}

func wsURL(srv *httptest.Server, query string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func waitClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), want)
}

func publish(t *testing.T, srv *httptest.Server, uid, secret, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/publish?uid="+uid, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Internal-Secret", secret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, code) {
		t.Fatalf("read error = %v, want close %d", err, code)
	}
}

func TestWSRejectsMissingToken(t *testing.T) {
	s, srv := newTestServer(t, Config{})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	expectClose(t, conn, CloseUnauthorized)
	if s.Hub().ClientCount() != 0 {
		t.Fatal("rejected client registered")
	}
}

func TestWSRejectsGarbageToken(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token=not-a-jwt"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	expectClose(t, conn, CloseUnauthorized)
}

func TestWSVerifiesSignatureWhenSecretSet(t *testing.T) {
	_, srv := newTestServer(t, Config{JWTSecret: "right"})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+signed(t, "wrong", "u1")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	expectClose(t, conn, CloseUnauthorized)
}

func TestPublishFansOutToUserSockets(t *testing.T) {
	s, srv := newTestServer(t, Config{JWTSecret: "k"})

	a1, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+signed(t, "k", "auth0|a")), nil)
	if err != nil {
		t.Fatalf("dial a1: %v", err)
	}
	defer a1.Close()
	header := http.Header{"Authorization": {"Bearer " + signed(t, "k", "auth0|a")}}
	a2, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	if err != nil {
		t.Fatalf("dial a2: %v", err)
	}
	defer a2.Close()
	b, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+signed(t, "k", "auth0|b")), nil)
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()
	waitClients(t, s.Hub(), 3)
	if got := s.Hub().UserCount(); got != 2 {
		t.Fatalf("UserCount = %d, want 2", got)
	}

	resp := publish(t, srv, "auth0%7Ca", "dev-secret", `{"type":"notification","message":"Hi"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish status = %d", resp.StatusCode)
	}

	for _, c := range []*websocket.Conn{a1, a2} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != `{"type":"notification","message":"Hi"}` {
			t.Fatalf("got %s", data)
		}
	}

	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := b.ReadMessage(); err == nil {
		t.Fatal("other user received the payload")
	}
}

func TestPublishUnverifiedSubject(t *testing.T) {
	s, srv := newTestServer(t, Config{})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+signed(t, "anything", "u9")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitClients(t, s.Hub(), 1)

	resp := publish(t, srv, "u9", "dev-secret", `{"type":"ping"}`)
	resp.Body.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := conn.ReadMessage(); err != nil || string(data) != `{"type":"ping"}` {
		t.Fatalf("read = %q, %v", data, err)
	}
}

func TestPublishValidation(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	tests := []struct {
		name   string
		uid    string
		secret string
		body   string
		want   int
	}{
		{"bad secret", "u", "nope", `{}`, http.StatusForbidden},
		{"missing uid", "", "dev-secret", `{}`, http.StatusBadRequest},
		{"not an object", "u", "dev-secret", `[1]`, http.StatusUnprocessableEntity},
		{"no listeners", "u", "dev-secret", `{"type":"notification"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := publish(t, srv, tt.uid, tt.secret, tt.body)
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestMaxConnections(t *testing.T) {
	s, srv := newTestServer(t, Config{MaxConnections: 1})
	first, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+signed(t, "k", "u")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	waitClients(t, s.Hub(), 1)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+signed(t, "k", "u")), nil)
	if err == nil {
		t.Fatal("second dial succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("resp = %v, want 503", resp)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	s, srv := newTestServer(t, Config{})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+signed(t, "k", "u")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitClients(t, s.Hub(), 1)
	conn.Close()
	waitClients(t, s.Hub(), 0)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin", nil, "", "relay:8090", true},
		{"same host", nil, "http://relay:8090", "relay:8090", true},
		{"localhost", nil, "http://localhost:5173", "relay:8090", true},
		{"foreign", nil, "https://evil.example", "relay:8090", false},
		{"allow list", []string{"https://powerboard.up.railway.app"}, "https://powerboard.up.railway.app", "relay", true},
		{"allow list miss", []string{"https://powerboard.up.railway.app"}, "http://localhost:5173", "relay", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Config{AllowedOrigins: tt.allowed}, nil)
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(r); got != tt.want {
				t.Fatalf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSecurityHeadersAndHealth(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
}
