package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	token      chan string
	subscribed chan string
	frames     []string
}

func (f *fakeFeed) handler(t *testing.T) http.Handler {
	up := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.token <- r.URL.Query().Get("token")
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		f.subscribed <- sub["symbol"]
		for _, fr := range f.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(fr)); err != nil {
				return
			}
		}
	})
}

func TestClientStreamsObservations(t *testing.T) {
	ff := &fakeFeed{
		token:      make(chan string, 1),
		subscribed: make(chan string, 1),
		frames: []string{
			`{"type":"ping"}`,
			`not json`,
			`{"type":"error","msg":"rate limited"}`,
			`{"type":"observation","data":[{"symbol":" ETH ","chain":"ethereum","sector":"l1","t":1704067200000,"sentiment":0.4,"volume":1200,"price":2300.5}]}`,
		},
	}
	srv := httptest.NewServer(ff.handler(t))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(Config{URL: wsURL, APIKey: "secret", Symbols: []string{"ETH"}, ReconnectDelay: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, "secret", <-ff.token)
	assert.Equal(t, "ETH", <-ff.subscribed)
	assert.True(t, c.IsConnected())

	obs, errs := c.Read(ctx)
	o := <-obs
	require.NotNil(t, o)
	assert.Equal(t, "ETH", o.Symbol)
	assert.Equal(t, "ethereum", o.Chain)
	assert.True(t, o.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, o.HasPrice())
	assert.Equal(t, 2300.5, o.PriceValue())

	err := <-errs
	assert.ErrorContains(t, err, "feed read")
	assert.False(t, c.IsConnected())
	require.NoError(t, c.Close())
}

func TestSubscribeAndReadRequireConnection(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"})
	assert.Error(t, c.Subscribe(context.Background()))

	obs, errs := c.Read(context.Background())
	assert.ErrorContains(t, <-errs, "not connected")
	_, open := <-obs
	assert.False(t, open)
}

func TestReconnectDelayGrowsAndCaps(t *testing.T) {
	c := New(Config{ReconnectDelay: time.Second, MaxReconnectDelay: 5 * time.Second})
	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, c.nextDelay())
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)

	c.failures.Store(0)
	assert.Equal(t, time.Second, c.nextDelay())
}

func TestReconnectHonoursContext(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1", ReconnectDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Reconnect(ctx), context.Canceled)
}
