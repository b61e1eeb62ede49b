// Package broker implements the quote-service gateway: a JSON-over-websocket
// session that authenticates once and serves chart range requests.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tinyco/harvest/configs"
)

const (
	HandshakeTimeout = 5 * time.Second
	ReadTimeout      = 60 * time.Second
	WriteTimeout     = 10 * time.Second

	// Login retry backoff
	LoginRetryBase = 1 * time.Second
	LoginRetryMax  = 3
)

// ErrNotConnected is returned when a command is attempted while the session
// is down and cannot be re-established.
var ErrNotConnected = errors.New("broker: not connected")

// State is the session connection state.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Client is a sequential broker session. Exactly one command is in flight at
// a time; the collector drives it from a single goroutine.
type Client struct {
	cfg     configs.BrokerConfig
	logger  *logrus.Entry
	limiter *rate.Limiter

	conn  *websocket.Conn
	state State
}

// NewClient creates a disconnected client. The session is established lazily
// before the first command, or eagerly via Connect.
func NewClient(cfg configs.BrokerConfig, logger *logrus.Entry) *Client {
	return &Client{
		cfg:     cfg,
		logger:  logger.WithField("service", "broker"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		state:   Disconnected,
	}
}

// State reports the current session state.
func (c *Client) State() State {
	return c.state
}

// Connect dials the broker and logs in, retrying with exponential backoff.
func (c *Client) Connect(ctx context.Context) error {
	if c.state == Connected {
		return nil
	}

	backoff := retry.WithMaxRetries(LoginRetryMax, retry.NewExponential(LoginRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.dial(ctx); err != nil {
			c.logger.Warnf("Broker dial failed: %v", err)
			return retry.RetryableError(err)
		}
		if err := c.login(); err != nil {
			c.close()
			// Credential rejection will not heal by retrying.
			c.logger.Warnf("Broker login failed: %v", err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}

	c.state = Connected
	c.logger.Debug("Enter the gate")
	return nil
}

// Logout sends the logout command and tears the session down.
func (c *Client) Logout() {
	if c.state == Connected {
		// Best effort: the session dies with the connection anyway.
		_ = c.send(command{Command: "logout"})
		c.logger.Debug("Close the gate")
	}
	c.close()
}

// ensureConnected re-establishes the session lazily before each use.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.state == Connected {
		return nil
	}
	if err := c.Connect(ctx); err != nil {
		return errors.Join(ErrNotConnected, err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	c.conn = conn
	return nil
}

func (c *Client) login() error {
	req := command{
		Command: "login",
		Arguments: loginArguments{
			UserID:   c.cfg.UserID,
			Password: c.cfg.Password,
			AppName:  "harvest-" + c.cfg.Mode,
		},
	}

	var resp response
	if err := c.roundTrip(req, &resp); err != nil {
		return err
	}
	if !resp.Status {
		return fmt.Errorf("login rejected: %s %s", resp.ErrorCode, resp.ErrorDescr)
	}
	return nil
}

// execute sends one command over a healthy session and decodes returnData into
// out. The connection is dropped to Disconnected on any transport error so the
// next call reconnects.
func (c *Client) execute(ctx context.Context, req command, out any) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var resp response
	if err := c.roundTrip(req, &resp); err != nil {
		c.close()
		return errors.Join(ErrNotConnected, err)
	}
	if !resp.Status {
		return fmt.Errorf("broker %s: %s %s", req.Command, resp.ErrorCode, resp.ErrorDescr)
	}
	if out != nil {
		if err := json.Unmarshal(resp.ReturnData, out); err != nil {
			return fmt.Errorf("broker %s: decode returnData: %w", req.Command, err)
		}
	}
	return nil
}

func (c *Client) send(req command) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(req)
}

func (c *Client) roundTrip(req command, resp *response) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.send(req); err != nil {
		return fmt.Errorf("write %s: %w", req.Command, err)
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return err
	}
	if err := c.conn.ReadJSON(resp); err != nil {
		return fmt.Errorf("read %s: %w", req.Command, err)
	}
	return nil
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = Disconnected
}

// command is the broker request envelope.
type command struct {
	Command   string `json:"command"`
	Arguments any    `json:"arguments,omitempty"`
}

type loginArguments struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	AppName  string `json:"appName,omitempty"`
}

// response is the broker reply envelope.
type response struct {
	Status     bool            `json:"status"`
	ReturnData json.RawMessage `json:"returnData"`
	ErrorCode  string          `json:"errorCode"`
	ErrorDescr string          `json:"errorDescr"`
}
