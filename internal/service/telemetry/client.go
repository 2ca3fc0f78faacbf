package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"EnerCast/internal/domain/models"
	drepo "EnerCast/internal/domain/repository"
	applogger "EnerCast/pkg/logger"
)

// Client implements a MeasurementStream backed by a building gateway WebSocket.
type Client struct {
	token          string
	websocketURL   string
	buildings      []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu        sync.Mutex // guards conn writes and connected
	conn      *websocket.Conn
	connected bool
}

var _ drepo.MeasurementStream = (*Client)(nil)

// New creates a telemetry stream for the given buildings.
func New(token, websocketURL string, buildings []string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) *Client {
	if l == nil {
		l = applogger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		token:          token,
		websocketURL:   websocketURL,
		buildings:      buildings,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return fmt.Errorf("telemetry url: %w", err)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("telemetry connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.l.Info("telemetry connected", applogger.String("url", u.Host))
	return nil
}

// Subscribe subscribes to the configured buildings.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("telemetry not connected")
	}
	for _, b := range c.buildings {
		msg := subscribeMessage{Type: "subscribe", BuildingID: b}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", b, err)
		}
		c.l.Debug("telemetry subscribed", applogger.String("building_id", b))
	}
	return nil
}

type subscribeMessage struct {
	Type       string `json:"type"`
	BuildingID string `json:"building_id"`
}

type reading struct {
	BuildingID string            `json:"building_id"`
	DeviceID   string            `json:"device_id"`
	Metric     string            `json:"metric"`
	Value      float64           `json:"value"`
	T          int64             `json:"t"` // ms
	Tags       map[string]string `json:"tags,omitempty"`
}

type frame struct {
	Type string    `json:"type"`
	Data []reading `json:"data"`
}

// decodeFrame returns the readings of a measurement frame. Other frame types
// and malformed payloads yield nothing.
func decodeFrame(b []byte) []*models.MeasurementPoint {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil || f.Type != "measurement" {
		return nil
	}
	out := make([]*models.MeasurementPoint, 0, len(f.Data))
	for _, d := range f.Data {
		metric := d.Metric
		if metric == "" {
			metric = models.MetricPower
		}
		out = append(out, &models.MeasurementPoint{
			BuildingID: d.BuildingID,
			DeviceID:   d.DeviceID,
			Metric:     metric,
			Value:      d.Value,
			Timestamp:  time.UnixMilli(d.T).UTC(),
			Tags:       d.Tags,
		})
	}
	return out
}

// Read streams measurements and errors until ctx ends or the connection fails.
func (c *Client) Read(ctx context.Context) (<-chan *models.MeasurementPoint, <-chan error) {
	points := make(chan *models.MeasurementPoint, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn != conn || !c.connected {
					c.mu.Unlock()
					return
				}
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				c.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(points)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("telemetry conn nil")
			return
		}
		dropped := 0
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("telemetry read: %w", err)
				}
				return
			}
			for _, p := range decodeFrame(b) {
				select {
				case points <- p:
				default:
					dropped++
					if dropped%1000 == 1 {
						c.l.Warn("telemetry backpressure, dropping readings", applogger.Int("dropped", dropped))
					}
				}
			}
		}
	}()

	return points, errs
}

// Reconnect closes the connection, waits, then connects and resubscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
