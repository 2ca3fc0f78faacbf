package telemetry

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

	"EnerCast/internal/domain/models"
)

func TestDecodeFrame(t *testing.T) {
	pts := decodeFrame([]byte(`{"type":"measurement","data":[
		{"building_id":"B1","device_id":"m1","metric":"power_w","value":1200.5,"t":1709726400000},
		{"building_id":"B1","device_id":"t1","value":3}]}`))
	require.Len(t, pts, 2)
	assert.Equal(t, "B1", pts[0].BuildingID)
	assert.Equal(t, 1200.5, pts[0].Value)
	assert.Equal(t, time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC), pts[0].Timestamp)
	assert.Equal(t, models.MetricPower, pts[1].Metric)

	assert.Empty(t, decodeFrame([]byte(`{"type":"ping"}`)))
	assert.Empty(t, decodeFrame([]byte(`not json`)))
}

func TestClientStreamsMeasurements(t *testing.T) {
	subscribed := make(chan string, 2)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub.BuildingID
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"measurement","data":[{"building_id":"B1","device_id":"m1","metric":"power_w","value":42,"t":1709726400000}]}`))
		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New("secret", wsURL, []string{"B1"}, 10*time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.True(t, c.IsConnected())
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, "B1", <-subscribed)

	points, _ := c.Read(ctx)
	select {
	case p := <-points:
		require.NotNil(t, p)
		assert.Equal(t, "m1", p.DeviceID)
		assert.Equal(t, 42.0, p.Value)
	case <-ctx.Done():
		t.Fatal("no measurement received")
	}

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := New("", "ws://127.0.0.1:1", []string{"B1"}, 0, 0, nil)
	assert.Error(t, c.Subscribe(context.Background()))
}
