package broker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tinyco/harvest/configs"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("app", "test")
}

// brokerStub is a minimal in-process broker endpoint speaking the JSON
// command protocol over websocket.
type brokerStub struct {
	server *httptest.Server

	// chartHandler answers getChartRangeRequest; its return value becomes
	// returnData. Recorded requests are appended to chartRequests.
	chartHandler  func(info map[string]any) any
	chartRequests []map[string]any

	rejectLogin bool
}

func newBrokerStub(t *testing.T) *brokerStub {
	t.Helper()
	stub := &brokerStub{}
	upgrader := websocket.Upgrader{}

	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var req struct {
				Command   string          `json:"command"`
				Arguments json.RawMessage `json:"arguments"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			switch req.Command {
			case "login":
				if stub.rejectLogin {
					_ = conn.WriteJSON(map[string]any{
						"status": false, "errorCode": "BE005", "errorDescr": "userPasswordCheck: Invalid login or password",
					})
					continue
				}
				_ = conn.WriteJSON(map[string]any{"status": true, "streamSessionId": "stub"})
			case "getChartRangeRequest":
				var args struct {
					Info map[string]any `json:"info"`
				}
				_ = json.Unmarshal(req.Arguments, &args)
				stub.chartRequests = append(stub.chartRequests, args.Info)
				_ = conn.WriteJSON(map[string]any{
					"status":     true,
					"returnData": stub.chartHandler(args.Info),
				})
			case "logout":
				_ = conn.WriteJSON(map[string]any{"status": true})
			}
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *brokerStub) config() configs.BrokerConfig {
	return configs.BrokerConfig{
		URL:               "ws" + strings.TrimPrefix(s.server.URL, "http"),
		UserID:            "50155431",
		Password:          "secret",
		Mode:              "demo",
		RequestsPerSecond: 1000,
	}
}

func TestClientConnectAndLogout(t *testing.T) {
	stub := newBrokerStub(t)
	client := NewClient(stub.config(), testLogger())

	if client.State() != Disconnected {
		t.Fatalf("initial state = %s, want disconnected", client.State())
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if client.State() != Connected {
		t.Errorf("state after connect = %s, want connected", client.State())
	}

	client.Logout()
	if client.State() != Disconnected {
		t.Errorf("state after logout = %s, want disconnected", client.State())
	}
}

func TestClientLoginRejected(t *testing.T) {
	stub := newBrokerStub(t)
	stub.rejectLogin = true
	client := NewClient(stub.config(), testLogger())

	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("Connect() succeeded against rejecting broker")
	}
	if client.State() != Disconnected {
		t.Errorf("state = %s, want disconnected", client.State())
	}
}

func TestGetChartRange(t *testing.T) {
	stub := newBrokerStub(t)
	stub.chartHandler = func(map[string]any) any {
		return map[string]any{
			"digits": 5,
			"rateInfos": []map[string]any{
				{"ctm": 1704067200000, "ctmString": "Jan 1, 2024, 12:00:00 AM", "open": 1.1, "close": 1.2, "high": 1.3, "low": 1.0, "vol": 42.0},
				{"ctm": 1704068100000, "ctmString": "Jan 1, 2024, 12:15:00 AM", "open": 1.2, "close": 1.25, "high": 1.3, "low": 1.15, "vol": 17.0},
			},
		}
	}

	client := NewClient(stub.config(), testLogger())
	anchor := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	candles, err := client.GetChartRange(context.Background(), "EURUSD", 15, anchor, 500)
	if err != nil {
		t.Fatalf("GetChartRange() error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	if candles[0].Ctm != 1704067200000 || candles[0].Open != 1.1 {
		t.Errorf("first candle decoded wrong: %+v", candles[0])
	}

	// The session is established lazily by the first command.
	if client.State() != Connected {
		t.Errorf("state = %s, want connected", client.State())
	}

	if len(stub.chartRequests) != 1 {
		t.Fatalf("chart requests = %d, want 1", len(stub.chartRequests))
	}
	info := stub.chartRequests[0]
	if got := info["symbol"]; got != "EURUSD" {
		t.Errorf("symbol = %v, want EURUSD", got)
	}
	if got := info["period"].(float64); got != 15 {
		t.Errorf("period = %v, want 15", got)
	}
	if got := info["ticks"].(float64); got != -500 {
		t.Errorf("ticks = %v, want -500 (window of history before anchor)", got)
	}
	if got := info["start"].(float64); int64(got) != anchor.UnixMilli() {
		t.Errorf("start = %v, want anchor millis %d", got, anchor.UnixMilli())
	}
}

func TestGetChartRangeDropsInvalidCandles(t *testing.T) {
	stub := newBrokerStub(t)
	stub.chartHandler = func(map[string]any) any {
		return map[string]any{
			"digits": 5,
			"rateInfos": []map[string]any{
				{"ctm": 0, "open": 1.1, "close": 1.2, "high": 1.3, "low": 1.0, "vol": 42.0},
				{"ctm": 1704068100000, "open": 1.2, "close": 1.25, "high": 1.3, "low": 1.15, "vol": 17.0},
			},
		}
	}

	client := NewClient(stub.config(), testLogger())
	candles, err := client.GetChartRange(context.Background(), "GOLD", 15, time.Now(), 300)
	if err != nil {
		t.Fatalf("GetChartRange() error: %v", err)
	}
	if len(candles) != 1 {
		t.Errorf("candles = %d, want 1 (invalid dropped)", len(candles))
	}
}

func TestGetChartRangeNotConnected(t *testing.T) {
	cfg := configs.BrokerConfig{
		URL:               "ws://127.0.0.1:1", // nothing listens here
		UserID:            "u",
		Password:          "p",
		RequestsPerSecond: 1000,
	}
	client := NewClient(cfg, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.GetChartRange(ctx, "GOLD", 15, time.Now(), 300); err == nil {
		t.Fatal("expected error from unreachable broker")
	}
	if client.State() != Disconnected {
		t.Errorf("state = %s, want disconnected", client.State())
	}
}
