package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type recordingObserver struct {
	mu      sync.Mutex
	clients int
	results map[string]int
}

func (o *recordingObserver) ClientsChanged(n int) {
	o.mu.Lock()
	o.clients = n
	o.mu.Unlock()
}

func (o *recordingObserver) Pushed(result string) {
	o.mu.Lock()
	if o.results == nil {
		o.results = make(map[string]int)
	}
	o.results[result]++
	o.mu.Unlock()
}

func TestHub_Push(t *testing.T) {
	obs := new(recordingObserver)
	hub := NewHub(obs)

	tab1 := NewClient(hub, nil, "student-1", nopLogger{})
	tab2 := NewClient(hub, nil, "student-1", nopLogger{})
	other := NewClient(hub, nil, "student-2", nopLogger{})
	for _, c := range []*Client{tab1, tab2, other} {
		require.True(t, hub.Register(c))
	}
	assert.Equal(t, 3, hub.ClientCount(""))
	assert.Equal(t, 2, hub.ClientCount("student-1"))

	n := hub.Push("student-1", "notification", map[string]string{"id": "n-1"})
	assert.Equal(t, 2, n)
	for _, c := range []*Client{tab1, tab2} {
		msg := <-c.send
		assert.Equal(t, "notification", msg.Type)
		assert.Equal(t, map[string]string{"id": "n-1"}, msg.Data)
	}
	assert.Len(t, other.send, 0)

	assert.Zero(t, hub.Push("nobody", "notification", nil))
	assert.Equal(t, 2, obs.results[ResultDelivered])
	assert.Equal(t, 1, obs.results[ResultNoClient])
}

func TestHub_PushEvictsStalledClient(t *testing.T) {
	obs := new(recordingObserver)
	hub := NewHub(obs)

	stalled := NewClient(hub, nil, "student-1", nopLogger{})
	require.True(t, hub.Register(stalled))
	for i := 0; i < sendBufferSize; i++ {
		assert.Equal(t, 1, hub.Push("student-1", "notification", i))
	}

	assert.Zero(t, hub.Push("student-1", "notification", "overflow"))
	assert.Zero(t, hub.ClientCount("student-1"))
	assert.Equal(t, 1, obs.results[ResultDropped])
	assert.Zero(t, obs.clients)

	// the queue is closed once drained
	for range stalled.send {
	}

	// unregistering an evicted client is a no-op
	hub.Unregister(stalled)
	assert.Zero(t, hub.ClientCount(""))
}

func TestHub_Run(t *testing.T) {
	hub := NewHub(nil)
	c := NewClient(hub, nil, "lecturer-1", nopLogger{})
	require.True(t, hub.Register(c))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, ok := <-c.send
	assert.False(t, ok)
	assert.False(t, hub.Register(NewClient(hub, nil, "lecturer-1", nopLogger{})))
}

func TestClient_Websocket(t *testing.T) {
	hub := NewHub(nil)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(hub, conn, r.URL.Query().Get("user"), nopLogger{})
		if hub.Register(c) {
			c.Start()
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=student-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount("student-1") == 1 }, time.Second, 10*time.Millisecond)

	// application level ping
	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	var msg map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg["type"])

	assert.Equal(t, 1, hub.Push("student-1", "notification", map[string]string{"message": "hello"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg["type"])
	assert.Equal(t, map[string]interface{}{"message": "hello"}, msg["data"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount("") == 0 }, time.Second, 10*time.Millisecond)
}
