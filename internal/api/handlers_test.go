package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/metavoice/voicestudio/internal/metrics"
	"github.com/metavoice/voicestudio/internal/models"
	"github.com/metavoice/voicestudio/internal/services"
	"github.com/metavoice/voicestudio/internal/session"
	"github.com/metavoice/voicestudio/internal/storage"
	"github.com/metavoice/voicestudio/internal/view"
)

// scriptedMic delivers a fixed clip whenever it is stopped.
type scriptedMic struct {
	mu sync.Mutex
	cb *services.CaptureCallbacks
}

func (m *scriptedMic) Start(ctx context.Context, cb services.CaptureCallbacks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = &cb
	return nil
}

func (m *scriptedMic) Pause() error { return nil }

func (m *scriptedMic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cb == nil {
		return models.ErrNotRecording
	}
	cb := *m.cb
	m.cb = nil
	go cb.OnStopped([]byte("webm-clip"))
	return nil
}

type testServer struct {
	*httptest.Server
	session *session.Session
	store   *storage.Storage
}

func newTestServer(t *testing.T, endpoint http.HandlerFunc) *testServer {
	t.Helper()

	convert := httptest.NewServer(endpoint)
	t.Cleanup(convert.Close)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	store := storage.New("")
	sess := session.New(&scriptedMic{}, services.NewConversionClient(convert.URL, 5*time.Second), store, session.Options{
		TickInterval: 10 * time.Millisecond,
		Metrics:      m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	router := NewRouter(NewHandler(sess, store), RouterConfig{
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, session: sess, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp.StatusCode, data
}

func (s *testServer) page(t *testing.T) view.Page {
	t.Helper()
	status, body := s.do(t, http.MethodGet, "/v1/state", "")
	if status != http.StatusOK {
		t.Fatalf("state returned %d: %s", status, body)
	}
	var p view.Page
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("failed to decode page: %v", err)
	}
	return p
}

func (s *testServer) waitFor(t *testing.T, cond func(view.Page) bool) view.Page {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := s.page(t); cond(p) {
			return p
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met, last page %+v", s.page(t))
	return view.Page{}
}

// record runs one toggle on/off cycle and waits for the clip.
func (s *testServer) record(t *testing.T) view.Page {
	t.Helper()
	if status, body := s.do(t, http.MethodPost, "/v1/recording/toggle", ""); status != http.StatusOK {
		t.Fatalf("start returned %d: %s", status, body)
	}
	if status, body := s.do(t, http.MethodPost, "/v1/recording/toggle", ""); status != http.StatusOK {
		t.Fatalf("stop returned %d: %s", status, body)
	}
	return s.waitFor(t, func(p view.Page) bool { return p.PlaybackURL != "" })
}

func sampleEndpoint(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`[{"speaker":"Dex","url":"https://x/dex.wav"}]`))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, sampleEndpoint)

	status, body := s.do(t, http.MethodGet, "/health", "")
	if status != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Errorf("health returned %d: %s", status, body)
	}
}

func TestIndexRendersPage(t *testing.T) {
	s := newTestServer(t, sampleEndpoint)

	status, body := s.do(t, http.MethodGet, "/", "")
	if status != http.StatusOK {
		t.Fatalf("index returned %d", status)
	}
	html := string(body)
	for _, want := range []string{"00:00", "Dex", "Eva", "Scarlett", "Zeus"} {
		if !strings.Contains(html, want) {
			t.Errorf("page is missing %q", want)
		}
	}
}

func TestRecordAndPlayBack(t *testing.T) {
	s := newTestServer(t, sampleEndpoint)

	p := s.record(t)
	if p.Recording || p.ToggleLabel != "Record" {
		t.Errorf("expected stopped page, got %+v", p)
	}

	resp, err := http.Get(s.URL + p.PlaybackURL)
	if err != nil {
		t.Fatalf("fetching clip failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(data) != "webm-clip" {
		t.Fatalf("clip returned %d %q", resp.StatusCode, data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/webm" {
		t.Errorf("expected audio/webm, got %s", ct)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag")
	}
	req, _ := http.NewRequest(http.MethodGet, s.URL+p.PlaybackURL, nil)
	req.Header.Set("If-None-Match", etag)
	cached, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional fetch failed: %v", err)
	}
	cached.Body.Close()
	if cached.StatusCode != http.StatusNotModified {
		t.Errorf("expected 304, got %d", cached.StatusCode)
	}
}

func TestGetRecordingErrors(t *testing.T) {
	s := newTestServer(t, sampleEndpoint)

	if status, _ := s.do(t, http.MethodGet, "/v1/recordings/not-a-uuid", ""); status != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad id, got %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/v1/recordings/00000000-0000-0000-0000-000000000001", ""); status != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown id, got %d", status)
	}
}

func TestRecordingTransitionsRejected(t *testing.T) {
	s := newTestServer(t, sampleEndpoint)

	if status, _ := s.do(t, http.MethodPost, "/v1/recording/stop", ""); status != http.StatusConflict {
		t.Errorf("expected 409 stopping while idle, got %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/v1/recording/start", ""); status != http.StatusOK {
		t.Fatalf("expected start to succeed, got %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/v1/recording/start", ""); status != http.StatusConflict {
		t.Errorf("expected 409 starting twice, got %d", status)
	}
	if status, _ := s.do(t, http.MethodDelete, "/v1/recording", ""); status != http.StatusConflict {
		t.Errorf("expected 409 resetting while recording, got %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/v1/recording/stop", ""); status != http.StatusOK {
		t.Errorf("expected stop to succeed, got %d", status)
	}
	s.waitFor(t, func(p view.Page) bool { return p.PlaybackURL != "" })

	if status, _ := s.do(t, http.MethodDelete, "/v1/recording", ""); status != http.StatusOK {
		t.Errorf("expected reset to succeed, got %d", status)
	}
	if p := s.page(t); p.PlaybackURL != "" {
		t.Error("expected no clip after reset")
	}
}

func TestSpeakers(t *testing.T) {
	s := newTestServer(t, sampleEndpoint)

	status, body := s.do(t, http.MethodGet, "/v1/speakers", "")
	if status != http.StatusOK {
		t.Fatalf("list returned %d", status)
	}
	var catalogue struct {
		Speakers []string `json:"speakers"`
	}
	if err := json.Unmarshal(body, &catalogue); err != nil {
		t.Fatalf("failed to decode catalogue: %v", err)
	}
	if strings.Join(catalogue.Speakers, ",") != "Dex,Eva,Scarlett,Zeus" {
		t.Errorf("unexpected catalogue %v", catalogue.Speakers)
	}

	if status, _ := s.do(t, http.MethodPut, "/v1/speakers", `{"speakers":["Eva","Zeus"]}`); status != http.StatusOK {
		t.Fatalf("select returned %d", status)
	}
	selected := []string{}
	for _, opt := range s.page(t).Speakers {
		if opt.Selected {
			selected = append(selected, opt.Name)
		}
	}
	if strings.Join(selected, ",") != "Eva,Zeus" {
		t.Errorf("expected Eva,Zeus selected, got %v", selected)
	}

	if status, _ := s.do(t, http.MethodPut, "/v1/speakers", `{"speakers":["Bob"]}`); status != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown speaker, got %d", status)
	}
	if status, _ := s.do(t, http.MethodPut, "/v1/speakers", `not json`); status != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad body, got %d", status)
	}
}

func TestConvert(t *testing.T) {
	var mu sync.Mutex
	var gotSpeakers string
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotSpeakers = r.FormValue("speaker")
		mu.Unlock()
		sampleEndpoint(w, r)
	})

	if status, _ := s.do(t, http.MethodPost, "/v1/convert", ""); status != http.StatusConflict {
		t.Errorf("expected 409 without a clip, got %d", status)
	}

	s.record(t)
	if status, _ := s.do(t, http.MethodPost, "/v1/convert", ""); status != http.StatusConflict {
		t.Errorf("expected 409 without speakers, got %d", status)
	}

	s.do(t, http.MethodPut, "/v1/speakers", `{"speakers":["Dex"]}`)
	if status, body := s.do(t, http.MethodPost, "/v1/convert", ""); status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", status, body)
	}

	p := s.waitFor(t, func(p view.Page) bool { return len(p.Results) > 0 })
	if p.Results[0].Label != "Mode - Dex" || p.Results[0].URL != "https://x/dex.wav" {
		t.Errorf("unexpected results %+v", p.Results)
	}
	if p.Converting || !p.ConvertEnabled {
		t.Errorf("expected conversion idle and re-enabled, got %+v", p)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotSpeakers != `["Dex"]` {
		t.Errorf("expected speaker field [\"Dex\"], got %s", gotSpeakers)
	}
}

func TestConvertFailureShowsError(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	s.record(t)
	s.do(t, http.MethodPut, "/v1/speakers", `{"speakers":["Eva"]}`)
	if status, _ := s.do(t, http.MethodPost, "/v1/convert", ""); status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}

	p := s.waitFor(t, func(p view.Page) bool { return p.ConvertError != "" })
	if len(p.Results) != 0 {
		t.Errorf("expected no results, got %+v", p.Results)
	}
	if !p.ConvertEnabled {
		t.Error("expected convert to be retryable")
	}
}

func TestEventsStream(t *testing.T) {
	s := newTestServer(t, sampleEndpoint)

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first view.Page
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("failed to read initial page: %v", err)
	}
	if first.Recording {
		t.Error("expected idle initial page")
	}

	s.do(t, http.MethodPost, "/v1/recording/start", "")

	for {
		var p view.Page
		if err := conn.ReadJSON(&p); err != nil {
			t.Fatalf("failed to read update: %v", err)
		}
		if p.Recording && p.Timer != "00:00" {
			break
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, sampleEndpoint)

	s.do(t, http.MethodGet, "/health", "")

	status, body := s.do(t, http.MethodGet, "/metrics", "")
	if status != http.StatusOK {
		t.Fatalf("metrics returned %d", status)
	}
	if !strings.Contains(string(body), `voicestudio_http_requests_total{endpoint="/health"`) {
		t.Errorf("expected /health request to be counted, got:\n%s", body)
	}
}

func TestAllowedOrigins(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "*"},
		{" , ", "*"},
		{"http://a.test, http://b.test", "http://a.test|http://b.test"},
	}
	for _, tt := range tests {
		if got := strings.Join(allowedOrigins(tt.raw), "|"); got != tt.want {
			t.Errorf("allowedOrigins(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestEventsOriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"http://app.test"}, "", true},
		{"wildcard", []string{"*"}, "http://evil.test", true},
		{"configured origin", []string{"http://app.test"}, "http://app.test", true},
		{"same host", []string{"http://app.test"}, "http://studio.local:8080", true},
		{"foreign origin", []string{"http://app.test"}, "http://evil.test", false},
		{"default is same origin only", nil, "http://evil.test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://studio.local:8080/v1/events", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := newUpgrader(tt.origins).CheckOrigin(r); got != tt.want {
				t.Errorf("CheckOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestEventsRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, sampleEndpoint)
	router := NewRouter(NewHandler(s.session, s.store), RouterConfig{CorsAllowedOrigins: "http://app.test"})
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"

	header := http.Header{"Origin": []string{"http://evil.test"}}
	if conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header); err == nil {
		conn.Close()
		t.Fatal("expected upgrade from a foreign origin to be refused")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}

	header = http.Header{"Origin": []string{"http://app.test"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("expected configured origin to connect: %v", err)
	}
	conn.Close()
}
