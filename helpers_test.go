package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"
)

// ============================================================================
// Test Helpers
// ============================================================================

// TestLogger wraps AppLogger for test use with testing.T integration
type TestLogger struct {
	*AppLogger
	t *testing.T
}

// NewTestLogger creates a test logger from environment variables
func NewTestLogger(t *testing.T) *TestLogger {
	al, err := NewAppLogger(LogConfig{
		OutputDir:   os.Getenv("TEST_OUTPUT_DIR"),
		LogRequests: os.Getenv("TEST_LOG_REQUESTS") == "1",
		LogDB:       os.Getenv("TEST_LOG_DB") == "1",
		LogWS:       os.Getenv("TEST_LOG_WS") == "1",
		Debug:       os.Getenv("TEST_DEBUG") == "1",
	})
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return &TestLogger{AppLogger: al, t: t}
}

// Debug logs a debug message using testing.T.Logf
func (tl *TestLogger) Debug(format string, args ...any) {
	if !tl.debug {
		return
	}
	tl.t.Logf("[DEBUG] "+format, args...)
}

var testDBCounter atomic.Int64

// TestContext holds test infrastructure including logger
type TestContext struct {
	t       *testing.T
	logger  *TestLogger
	app     *App
	db      *sqlx.DB
	server  *httptest.Server
	cleanup func()
}

// newTestContext starts a server on a private in-memory database. Phase
// timings are long so games only move when a test drives them.
func newTestContext(t *testing.T) *TestContext {
	return newTestContextWith(t, nil)
}

// newTestContextWith lets a test adjust the config before the server starts.
func newTestContextWith(t *testing.T, adjust func(*AppConfig)) *TestContext {
	logger := NewTestLogger(t)

	// Each context gets its own shared-cache database
	dsn := fmt.Sprintf("file:dewolf_test_%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := initDB(db); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	logger.WatchDB(db)
	logger.LogDB("after initDB")

	cfg := defaultConfig()
	cfg.FirstDay = time.Minute
	cfg.MorningDiscussion = time.Minute
	cfg.Voting = time.Minute
	cfg.NightAction = time.Minute
	cfg.WitchAction = time.Minute
	cfg.SubmitRate = 1000
	cfg.SubmitBurst = 1000
	if adjust != nil {
		adjust(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := newApp(ctx, cfg, db, nil)
	go app.hub.run(ctx)

	var handler http.Handler = app.routes()
	if logger.logRequests {
		handler = &LoggingHandler{Handler: handler, Logger: logger.AppLogger}
	}
	server := httptest.NewServer(handler)

	cleanup := func() {
		logger.LogDB("before cleanup")
		logger.Debug("Cleaning up test server")
		cancel()
		app.sessions.Wait()
		server.Close()
		db.Close()
		logger.Close()
	}

	return &TestContext{
		t:       t,
		logger:  logger,
		app:     app,
		db:      db,
		server:  server,
		cleanup: cleanup,
	}
}

func generateTestName(prefix string, suffix uint8) string {
	return fmt.Sprintf("%s%d_%d", prefix, suffix, testDBCounter.Add(1))
}

// inbound is any message the server pushes: events and toasts share the
// type field.
type inbound struct {
	ServerEvent
	Level   string `json:"level"`
	Message string `json:"message"`
}

// TestPlayer is one signed-up player with an HTTP client and, once
// connected, a WebSocket.
type TestPlayer struct {
	t        *testing.T
	ctx      *TestContext
	name     string
	id       string
	secret   string
	client   *http.Client
	conn     *websocket.Conn
	messages chan inbound
}

func (tc *TestContext) newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		tc.t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

// signupPlayer signs a player up and returns it without a connection.
func (tc *TestContext) signupPlayer(name string) *TestPlayer {
	client := tc.newClient()
	resp, err := client.PostForm(tc.server.URL+"/signup", url.Values{"name": {name}})
	if err != nil {
		tc.t.Fatalf("signup %s: %v", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		tc.t.Fatalf("signup %s: status %d", name, resp.StatusCode)
	}
	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		tc.t.Fatalf("signup %s: decode: %v", name, err)
	}
	tc.logger.Debug("Signed up %s as %s", name, ar.PlayerID)
	return &TestPlayer{t: tc.t, ctx: tc, name: name, id: ar.PlayerID, secret: ar.SecretCode, client: client}
}

// connect opens the player's WebSocket to a group.
func (tp *TestPlayer) connect(groupID string) {
	base, _ := url.Parse(tp.ctx.server.URL)
	wsURL := "ws" + strings.TrimPrefix(tp.ctx.server.URL, "http") + "/ws?group=" + url.QueryEscape(groupID)

	header := http.Header{}
	for _, c := range tp.client.Jar.Cookies(base) {
		header.Add("Cookie", c.String())
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		tp.t.Fatalf("%s: dial: %v", tp.name, err)
	}
	tp.conn = conn
	tp.messages = make(chan inbound, 256)

	go func() {
		defer close(tp.messages)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg inbound
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			tp.messages <- msg
		}
	}()
}

func (tp *TestPlayer) disconnect() {
	if tp.conn != nil {
		tp.conn.Close()
	}
}

func (tp *TestPlayer) send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		tp.t.Fatalf("%s: marshal: %v", tp.name, err)
	}
	if err := tp.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		tp.t.Fatalf("%s: write: %v", tp.name, err)
	}
}

// waitFor returns the first message of the given type that matches, or
// fails the test after two seconds.
func (tp *TestPlayer) waitFor(typ string, match func(inbound) bool) inbound {
	tp.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-tp.messages:
			if !ok {
				tp.t.Fatalf("%s: connection closed waiting for %s", tp.name, typ)
			}
			if msg.Type == typ && (match == nil || match(msg)) {
				return msg
			}
		case <-timeout:
			tp.t.Fatalf("%s: timed out waiting for %s", tp.name, typ)
		}
	}
}

func (tp *TestPlayer) getJSON(path string, v any) int {
	resp, err := tp.client.Get(tp.ctx.server.URL + path)
	if err != nil {
		tp.t.Fatalf("%s: GET %s: %v", tp.name, path, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			tp.t.Fatalf("%s: GET %s: decode: %v", tp.name, path, err)
		}
	}
	return resp.StatusCode
}
