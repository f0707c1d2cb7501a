package channels

import (
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/events"
)

// Environment variables read by the websocket channel.
const (
	EnvWSToken  = "HERD_WS_TOKEN"  // bearer token sent as is
	EnvWSSecret = "HERD_WS_SECRET" // HS256 secret used to sign a per-run token
)

const wsWriteTimeout = 5 * time.Second

// WebSocket streams every event as JSON to a chat relay or dashboard. The
// connection is opened on the first event so the token can carry the run
// id.
type WebSocket struct {
	events.Base
	endpoint string
	token    string
	secret   []byte
	dialer   *websocket.Dialer
	conn     *websocket.Conn
}

// RunClaims are the claims of the token signed with HERD_WS_SECRET.
type RunClaims struct {
	Task string `json:"task,omitempty"`
	jwt.RegisteredClaims
}

// OpenWebSocket handles ws:// and wss:// URIs. A token= query parameter or
// HERD_WS_TOKEN is sent as the bearer token; otherwise, with HERD_WS_SECRET
// set, a short-lived token is signed per run.
func OpenWebSocket(u *url.URL) (events.Channel, error) {
	if u.Host == "" {
		return nil, errors.New(errors.ErrConfig,
			"Websocket log channel needs a host",
			"Use ws://relay.example.com/herd")
	}
	endpoint := *u
	q := endpoint.Query()
	token := q.Get("token")
	q.Del("token")
	q.Del("level")
	endpoint.RawQuery = q.Encode()

	if token == "" {
		token = os.Getenv(EnvWSToken)
	}
	var secret []byte
	if s := os.Getenv(EnvWSSecret); s != "" {
		secret = []byte(s)
	}

	return &WebSocket{
		endpoint: endpoint.String(),
		token:    token,
		secret:   secret,
		dialer:   websocket.DefaultDialer,
	}, nil
}

// SignRunToken creates the HS256 token for one run.
func SignRunToken(secret []byte, runID, task string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := RunClaims{
		Task: task,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "herd",
			ID:        runID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseRunToken verifies a token made by SignRunToken.
func ParseRunToken(secret []byte, tokenStr string) (*RunClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &RunClaims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Invalid run token", "")
	}
	claims, ok := token.Claims.(*RunClaims)
	if !ok {
		return nil, errors.New(errors.ErrConfig, "Invalid run token claims", "")
	}
	return claims, nil
}

func (c *WebSocket) connect(ev events.Event) error {
	if c.conn != nil {
		return nil
	}

	header := http.Header{}
	token := c.token
	if token == "" && c.secret != nil {
		signed, err := SignRunToken(c.secret, ev.RunID, ev.Task, time.Hour)
		if err != nil {
			return err
		}
		token = signed
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := c.dialer.Dial(c.endpoint, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot connect to websocket channel "+c.endpoint,
			"HTTP status "+http.StatusText(status))
	}
	c.conn = conn
	return nil
}

func (c *WebSocket) send(ev events.Event) error {
	if err := c.connect(ev); err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(NewRecord(ev)); err != nil {
		// Drop the connection; the next event redials.
		_ = c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *WebSocket) Initialize(ev events.Event) error  { return c.send(ev) }
func (c *WebSocket) StartServer(ev events.Event) error { return c.send(ev) }
func (c *WebSocket) EndServer(ev events.Event) error   { return c.send(ev) }
func (c *WebSocket) Log(ev events.Event) error         { return c.send(ev) }
func (c *WebSocket) Finalize(ev events.Event) error    { return c.send(ev) }

func (c *WebSocket) Close() error {
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
		time.Now().Add(wsWriteTimeout))
	err := c.conn.Close()
	c.conn = nil
	return err
}
