package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/gluk-w/termbridge/internal/config"
	"github.com/gluk-w/termbridge/internal/inventory"
	"github.com/gluk-w/termbridge/internal/logging"
	"github.com/gluk-w/termbridge/internal/metrics"
	"github.com/gluk-w/termbridge/internal/termbridge"
	"github.com/google/uuid"
)

// TermBridge is set from main.go during init.
var TermBridge *termbridge.Bridge

// MaxInputSize caps one input message. Larger messages are dropped, the
// connection stays open.
var MaxInputSize = termbridge.DefaultMaxInputSize

// minReadLimit keeps the transport from closing the connection over a message
// that should only be dropped.
const minReadLimit = 1024 * 1024

// termMessage is a JSON envelope in a text frame.
type termMessage struct {
	Type     string        `json:"type"`
	Device   *deviceFields `json:"device,omitempty"`
	DeviceID string        `json:"device_id,omitempty"`
	Data     string        `json:"data,omitempty"`
	Cols     int           `json:"cols,omitempty"`
	Rows     int           `json:"rows,omitempty"`
}

// deviceFields is the device object sent by the web client.
type deviceFields struct {
	Protocol   string    `json:"protocol"`
	Address    string    `json:"address"`
	Port       portValue `json:"port"`
	Username   string    `json:"username"`
	Password   string    `json:"password"`
	PrivateKey string    `json:"privateKey"`
}

func (f *deviceFields) descriptor() *termbridge.Descriptor {
	return &termbridge.Descriptor{
		Protocol:   termbridge.Protocol(f.Protocol),
		Address:    f.Address,
		Port:       int(f.Port),
		Username:   f.Username,
		Password:   f.Password,
		PrivateKey: f.PrivateKey,
	}
}

// portValue accepts a port as a JSON number or a numeric string, since form
// inputs send strings.
type portValue int

func (p *portValue) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("port must be a number")
	}
	*p = portValue(n)
	return nil
}

// wsClient delivers session output over the WebSocket. Writes use the
// connection's context: a write cancelled mid-frame would close the whole
// connection, so a session's own context is only checked before writing.
type wsClient struct {
	conn *websocket.Conn
	ctx  context.Context
}

func (c *wsClient) SendOutput(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.Write(c.ctx, websocket.MessageBinary, b)
}

func (c *wsClient) SendExit(ctx context.Context, code int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.sendJSON(map[string]interface{}{"type": "term.exit", "code": code})
}

func (c *wsClient) sendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// TerminalWS handles one browser terminal connection. The client sends
// term.init to start a session (a second term.init replaces it), then
// term.input as JSON or binary frames and term.resize. Output is sent as
// binary frames. Closing the WebSocket tears the session down.
func TerminalWS(w http.ResponseWriter, r *http.Request) {
	lg := logging.For("terminal")
	if TermBridge == nil {
		writeError(w, http.StatusServiceUnavailable, "Terminal bridge not initialized")
		return
	}

	conn, err := websocket.Accept(w, r, acceptOptions())
	if err != nil {
		lg.Warn("failed to accept terminal websocket", "err", err)
		return
	}
	defer conn.CloseNow()

	readLimit := int64(MaxInputSize)*2 + 4096
	if readLimit < minReadLimit {
		readLimit = minReadLimit
	}
	conn.SetReadLimit(readLimit)

	ctx := r.Context()
	connID := uuid.NewString()
	client := &wsClient{conn: conn, ctx: ctx}
	limiter := termbridge.NewRateLimiter(termbridge.MessageRateLimit, termbridge.MessageRateBurst)

	lg.Info("terminal connected", "connection", connID, "remote", logging.Sanitize(r.RemoteAddr))
	defer func() {
		TermBridge.Disconnect(connID)
		lg.Info("terminal disconnected", "connection", connID)
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		if !limiter.Allow() {
			metrics.DroppedMessages.WithLabelValues("rate").Inc()
			continue
		}

		if msgType == websocket.MessageBinary {
			if len(data) > MaxInputSize {
				metrics.DroppedMessages.WithLabelValues("size").Inc()
				lg.Debug("input message too large", "connection", connID, "size", len(data), "limit", MaxInputSize)
				continue
			}
			TermBridge.Input(connID, data)
			continue
		}

		var msg termMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			metrics.DroppedMessages.WithLabelValues("malformed").Inc()
			continue
		}

		switch msg.Type {
		case "term.init":
			startSession(ctx, connID, msg, client)
		case "term.input":
			if len(msg.Data) > MaxInputSize {
				metrics.DroppedMessages.WithLabelValues("size").Inc()
				continue
			}
			TermBridge.Input(connID, []byte(msg.Data))
		case "term.resize":
			TermBridge.Resize(connID, msg.Cols, msg.Rows)
		default:
			metrics.DroppedMessages.WithLabelValues("unknown").Inc()
		}
	}
}

func startSession(ctx context.Context, connID string, msg termMessage, client *wsClient) {
	var d *termbridge.Descriptor
	switch {
	case msg.DeviceID != "":
		desc, err := lookupDevice(ctx, msg.DeviceID)
		if err != nil {
			logging.For("terminal").Warn("device lookup failed", "connection", connID,
				"device", logging.Sanitize(msg.DeviceID), "err", err)
			client.SendOutput(ctx, termbridge.Diagnostic(err.Error()))
			return
		}
		d = &desc
	case msg.Device != nil:
		d = msg.Device.descriptor()
	}

	s, err := TermBridge.StartSession(ctx, termbridge.InitRequest{
		ConnectionID: connID,
		Descriptor:   d,
		Cols:         msg.Cols,
		Rows:         msg.Rows,
	}, client)
	if err != nil {
		// The client already received a diagnostic.
		return
	}
	client.sendJSON(map[string]string{
		"type":       "term.ready",
		"session_id": s.ID,
		"target":     s.Target,
	})
}

func lookupDevice(ctx context.Context, id string) (termbridge.Descriptor, error) {
	if Devices == nil {
		return termbridge.Descriptor{}, inventory.ErrDeviceNotFound
	}
	d, err := Devices.Lookup(ctx, id)
	if errors.Is(err, inventory.ErrDeviceNotFound) {
		return termbridge.Descriptor{}, inventory.ErrDeviceNotFound
	}
	return d, err
}

// acceptOptions restricts WebSocket origins to the configured CORS origins.
func acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range config.Cfg.CORSOrigins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}
