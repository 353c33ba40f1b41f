package api

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/chordcoord/internal/eventloop"
	"github.com/MrWong99/chordcoord/internal/store"
)

// wsURL converts an httptest server URL to a WebSocket URL.
func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func newSocketServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loop := eventloop.New()
	go func() { _ = loop.Run(ctx) }()

	srv := httptest.NewServer(New(store.NewMemoryStore(), loop, opts...).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readText returns the next text message decoded into a generic map,
// skipping binary frames.
func readText(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if typ != websocket.MessageText {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		return m
	}
}

func sinePCM(hz float64, rate, n, offset int) []byte {
	out := make([]byte, n*4)
	for i := range n {
		v := float32(0.5 * math.Sin(2*math.Pi*hz*float64(offset+i)/float64(rate)))
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func TestTunerSocket_DetectsPitch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := newSocketServer(t)
	conn := dial(t, ctx, wsURL(srv, "/ws/tuner"))

	if err := wsjson.Write(ctx, conn, tunerControl{Type: "start", SampleRate: 44100}); err != nil {
		t.Fatalf("write start: %v", err)
	}

	// Feed a steady A4 until the detector reports it.
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for off := 0; ; off += 2048 {
			if conn.Write(ctx, websocket.MessageBinary, sinePCM(440, 44100, 2048, off)) != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
		}
	}()

	// The first frames mix silence with signal; wait for a settled reading.
	for {
		m := readText(t, ctx, conn)
		if m["type"] != "pitch" {
			t.Fatalf("unexpected message %v", m)
		}
		hz, ok := m["frequencyHz"].(float64)
		if !ok || math.Abs(hz-440) > 5 {
			continue
		}
		note, _ := m["note"].(map[string]any)
		if note["note"] != "A4" {
			t.Errorf("note = %v, want A4", note)
		}
		break
	}

	if err := wsjson.Write(ctx, conn, tunerControl{Type: "stop"}); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Errorf("close = %v, want normal closure", err)
			}
			return
		}
	}
}

func TestTunerSocket_PermissionDenied(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := newSocketServer(t)
	conn := dial(t, ctx, wsURL(srv, "/ws/tuner"))

	if err := wsjson.Write(ctx, conn, tunerControl{Type: "error", Code: "permission_denied"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := readText(t, ctx, conn)
	if m["type"] != "error" || !strings.Contains(m["message"].(string), "permission denied") {
		t.Errorf("message = %v", m)
	}
}

func TestTunerSocket_BadStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := newSocketServer(t)
	conn := dial(t, ctx, wsURL(srv, "/ws/tuner"))

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "bpm"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := readText(t, ctx, conn); m["type"] != "error" {
		t.Errorf("message = %v, want error", m)
	}
}

func TestMetronomeSocket(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := newSocketServer(t)
	conn := dial(t, ctx, wsURL(srv, "/ws/metronome"))

	m := readText(t, ctx, conn)
	if m["type"] != "state" || m["running"] != false || m["bpm"] != float64(store.DefaultTempo) {
		t.Fatalf("initial state = %v", m)
	}

	if err := wsjson.Write(ctx, conn, metronomeCommand{Type: "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}

	var (
		sawRunning, sawBeat0 bool
		pcmBytes             int
	)
	for !(sawRunning && sawBeat0 && pcmBytes > 0) {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v (running=%v beat=%v pcm=%d)", err, sawRunning, sawBeat0, pcmBytes)
		}
		if typ == websocket.MessageBinary {
			if len(data)%2 != 0 {
				t.Fatalf("odd PCM16 frame length %d", len(data))
			}
			pcmBytes += len(data)
			continue
		}
		var msg map[string]any
		_ = json.Unmarshal(data, &msg)
		switch msg["type"] {
		case "state":
			sawRunning = msg["running"] == true
		case "beat":
			if msg["beatIndex"] == float64(0) {
				if msg["accent"] != true {
					t.Errorf("beat 0 not accented: %v", msg)
				}
				sawBeat0 = true
			}
		}
	}

	if err := wsjson.Write(ctx, conn, metronomeCommand{Type: "bpm", BPM: -5}); err != nil {
		t.Fatalf("write bpm: %v", err)
	}
	// Beats may race the reply.
	m = readText(t, ctx, conn)
	for m["type"] == "beat" {
		m = readText(t, ctx, conn)
	}
	if m["type"] != "error" {
		t.Errorf("reply to bad bpm = %v", m)
	}

	if err := wsjson.Write(ctx, conn, metronomeCommand{Type: "bpm", BPM: 90}); err != nil {
		t.Fatalf("write bpm: %v", err)
	}
	if err := wsjson.Write(ctx, conn, metronomeCommand{Type: "stop"}); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	for {
		m := readText(t, ctx, conn)
		if m["type"] == "state" && m["running"] == false {
			if m["bpm"] != float64(90) {
				t.Errorf("bpm after stop = %v, want 90", m["bpm"])
			}
			break
		}
	}
}

func TestSockets_DisabledWithoutLoop(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	for _, path := range []string{"/ws/tuner", "/ws/metronome"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, resp.StatusCode)
		}
	}
}

func TestSockets_RejectForeignOrigin(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := newSocketServer(t, WithAllowedOrigins("https://app.example"))
	_, resp, err := websocket.Dial(ctx, wsURL(srv, "/ws/metronome"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"https://evil.example"}},
	})
	if err == nil {
		t.Fatal("Dial succeeded from a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}
