package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"townsquare/internal/services/directory"
	"townsquare/internal/services/history"
)

func newTestServer(hist history.IHistoryService) (*WsServer, *gin.Engine) {
	return newTestServerWithOptions(hist, Options{
		BackfillLimit: 50,
		SendBuffer:    16,
		MaxTextLen:    200,
		IdleTimeout:   time.Minute,
	})
}

func newTestServerWithOptions(hist history.IHistoryService, opts Options) (*WsServer, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(hist, 4*time.Second)
	srv := NewWsServer(hub, directory.NewDirectoryService(), hist, opts)
	router := gin.New()
	router.GET("/ws/:city/:circle", srv.Handle)
	return srv, router
}

func TestHandle_InvalidRoom(t *testing.T) {
	_, router := newTestServer(history.NewMemoryHistory(0))

	for _, path := range []string{"/ws/atlantis/18-25", "/ws/munich/40-99"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, w.Body.String(), "invalid_room")
	}
}

func TestHandle_AgeOutOfRange(t *testing.T) {
	_, router := newTestServer(history.NewMemoryHistory(0))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/munich/28-35?age=20", nil))

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "age_out_of_range")
}

func TestHandle_MalformedAge(t *testing.T) {
	_, router := newTestServer(history.NewMemoryHistory(0))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/munich/28-35?age=abc", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_age")
}

func TestHandle_ValidAgeNonWebsocketRequest(t *testing.T) {
	_, router := newTestServer(history.NewMemoryHistory(0))

	// room and age validation passes, the upgrade itself fails
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/munich/28-35?age=30", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSanitizeText(t *testing.T) {
	srv, _ := newTestServer(history.NewMemoryHistory(0))

	assert.Equal(t, "hello", srv.sanitizeText("  hello  "))
	assert.Equal(t, "", srv.sanitizeText("   "))

	long := strings.Repeat("x", 500)
	assert.Len(t, srv.sanitizeText(long), srv.opts.MaxTextLen)
}

// ---------------------------------------------------------------------------
//  End-to-end over a real websocket
// ---------------------------------------------------------------------------

func dialRoom(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until pred accepts one, failing on timeout.
func readUntil(t *testing.T, conn *websocket.Conn, pred func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var raw map[string]any
		require.NoError(t, conn.ReadJSON(&raw), "expected frame did not arrive")
		if pred(raw) {
			return raw
		}
	}
}

func TestWebsocket_EndToEnd(t *testing.T) {
	_, router := newTestServer(history.NewMemoryHistory(time.Hour))
	ts := httptest.NewServer(router)
	defer ts.Close()

	alice := dialRoom(t, ts, "/ws/munich/28-35?nick=alice&age=30")
	bob := dialRoom(t, ts, "/ws/munich/28-35?nick=bob&age=33")

	// alice learns about bob joining
	joined := readUntil(t, alice, func(m map[string]any) bool { return m["type"] == "join" })
	assert.Equal(t, "bob", joined["nick"])

	// bob sends a message; both sides receive it with the server timestamp
	require.NoError(t, bob.WriteJSON(Envelope{
		Event: "square/message",
		Body:  json.RawMessage(`{"text":"hello"}`),
	}))

	got := readUntil(t, alice, func(m map[string]any) bool { return m["type"] == "message" })
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "bob", got["nick"])
	assert.NotZero(t, got["ts"])

	echo := readUntil(t, bob, func(m map[string]any) bool { return m["type"] == "message" })
	assert.Equal(t, "hello", echo["text"])
}

func TestWebsocket_EmptyMessageRejected(t *testing.T) {
	_, router := newTestServer(history.NewMemoryHistory(time.Hour))
	ts := httptest.NewServer(router)
	defer ts.Close()

	alice := dialRoom(t, ts, "/ws/munich/28-35?nick=alice")

	require.NoError(t, alice.WriteJSON(Envelope{
		Event: "square/message",
		Body:  json.RawMessage(`{"text":"   "}`),
	}))

	reply := readUntil(t, alice, func(m map[string]any) bool { return m["event"] == "error" })
	body, ok := reply["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "empty_message", body["error"])
}

func TestWebsocket_BackfillOnJoin(t *testing.T) {
	hist := history.NewMemoryHistory(time.Hour)
	_, router := newTestServer(hist)
	ts := httptest.NewServer(router)
	defer ts.Close()

	alice := dialRoom(t, ts, "/ws/munich/28-35?nick=alice")
	require.NoError(t, alice.WriteJSON(Envelope{
		Event: "square/message",
		Body:  json.RawMessage(`{"text":"for the record"}`),
	}))
	// wait for the round trip so the event is persisted
	readUntil(t, alice, func(m map[string]any) bool { return m["type"] == "message" })

	bob := dialRoom(t, ts, "/ws/munich/28-35?nick=bob")
	backfill := readUntil(t, bob, func(m map[string]any) bool { return m["type"] == "history" })
	assert.Equal(t, "for the record", backfill["text"])
	assert.Equal(t, "alice", backfill["nick"])
}

func TestHandle_OriginChecked(t *testing.T) {
	_, router := newTestServerWithOptions(history.NewMemoryHistory(0), Options{
		BackfillLimit:  50,
		SendBuffer:     16,
		MaxTextLen:     200,
		IdleTimeout:    time.Minute,
		AllowedOrigins: []string{"https://square.example"},
	})
	ts := httptest.NewServer(router)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/munich/28-35"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://square.example"}})
	require.NoError(t, err)
	conn.Close()

	// non-browser clients carry no Origin header and connect freely
	conn, _, err = websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn.Close()
}

// A member flooded out of the room as a slow consumer may still have its own
// reader goroutine enqueueing ack replies. The teardown must stay contained
// to that member; the server keeps serving the room.
func TestWebsocket_SlowConsumerDropDuringOwnReplies(t *testing.T) {
	_, router := newTestServerWithOptions(history.NewMemoryHistory(0), Options{
		BackfillLimit: 50,
		SendBuffer:    1,
		MaxTextLen:    200,
		IdleTimeout:   time.Minute,
	})
	ts := httptest.NewServer(router)
	defer ts.Close()

	for i := 0; i < 5; i++ {
		victim := dialRoom(t, ts, "/ws/munich/28-35?nick=victim")
		talker := dialRoom(t, ts, "/ws/munich/28-35?nick=talker")

		// victim never reads; it just spams events whose acks race its removal
		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 200; j++ {
				if victim.WriteJSON(Envelope{
					Event: "square/typing",
					Body:  json.RawMessage(`{"typing":true}`),
				}) != nil {
					return
				}
			}
		}()
		for j := 0; j < 200; j++ {
			// the flood overflows the victim's one-slot queue; the talker may
			// get dropped by its own echoes too, so write errors are expected
			if talker.WriteJSON(Envelope{
				Event: "square/message",
				Body:  json.RawMessage(`{"text":"flood"}`),
			}) != nil {
				break
			}
		}
		<-done
		victim.Close()
		talker.Close()
	}

	// the room is still alive and serving fresh members
	alice := dialRoom(t, ts, "/ws/munich/28-35?nick=alice")
	require.NoError(t, alice.WriteJSON(Envelope{
		Event: "square/message",
		Body:  json.RawMessage(`{"text":"still here"}`),
	}))
	got := readUntil(t, alice, func(m map[string]any) bool { return m["type"] == "message" })
	assert.Equal(t, "still here", got["text"])
}

func TestWebsocket_UnknownEvent(t *testing.T) {
	_, router := newTestServer(history.NewMemoryHistory(0))
	ts := httptest.NewServer(router)
	defer ts.Close()

	alice := dialRoom(t, ts, "/ws/munich/28-35")

	require.NoError(t, alice.WriteJSON(Envelope{Event: "square/bogus"}))
	reply := readUntil(t, alice, func(m map[string]any) bool { return m["event"] == "error" })
	body, ok := reply["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unknown_event", body["error"])
}
