package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// AppLogger owns the optional extended logs: HTTP requests, WebSocket
// traffic and database dumps. All of them are off by default.
type AppLogger struct {
	outputDir      string
	logRequests    bool
	logDB          bool
	logWS          bool
	debug          bool
	requestLog     *os.File
	dbLog          *os.File
	wsLog          *os.File
	db             *sqlx.DB
	mu             sync.Mutex
	requestCount   int
	wsMessageCount int
}

// Global application logger (used by server)
var appLogger *AppLogger

// LogConfig holds logging configuration
type LogConfig struct {
	OutputDir   string
	LogRequests bool
	LogDB       bool
	LogWS       bool
	Debug       bool
}

func NewAppLogger(config LogConfig) (*AppLogger, error) {
	al := &AppLogger{
		outputDir:   config.OutputDir,
		logRequests: config.LogRequests,
		logDB:       config.LogDB,
		logWS:       config.LogWS,
		debug:       config.Debug,
	}

	if al.outputDir == "" {
		return al, nil
	}
	if err := os.MkdirAll(al.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	open := func(enabled bool, name string, dst **os.File) error {
		if !enabled {
			return nil
		}
		f, err := os.OpenFile(filepath.Join(al.outputDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		*dst = f
		return nil
	}
	if err := open(al.logRequests, "requests.log", &al.requestLog); err != nil {
		return nil, err
	}
	if err := open(al.logDB, "database.log", &al.dbLog); err != nil {
		return nil, err
	}
	if err := open(al.logWS, "websocket.log", &al.wsLog); err != nil {
		return nil, err
	}
	return al, nil
}

// WatchDB sets the database dumped by LogDB.
func (al *AppLogger) WatchDB(db *sqlx.DB) {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.db = db
}

// Close closes all open log files
func (al *AppLogger) Close() {
	for _, f := range []*os.File{al.requestLog, al.dbLog, al.wsLog} {
		if f != nil {
			f.Close()
		}
	}
}

// LogRequest logs an HTTP request and response
func (al *AppLogger) LogRequest(method, url string, reqBody []byte, status int, respBody []byte) {
	if !al.logRequests || al.requestLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.requestCount++
	timestamp := time.Now().Format("15:04:05.000")

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== REQUEST #%d [%s] ==========\n", al.requestCount, timestamp)
	fmt.Fprintf(&buf, "%s %s -> %d\n", method, url, status)
	if len(reqBody) > 0 {
		fmt.Fprintf(&buf, "\n--- Request Body ---\n%s\n", reqBody)
	}
	if len(respBody) > 0 {
		fmt.Fprintf(&buf, "\n--- Response Body ---\n")
		if len(respBody) > 5000 {
			buf.Write(respBody[:5000])
			fmt.Fprintf(&buf, "\n... (truncated, %d bytes total)\n", len(respBody))
		} else {
			buf.Write(respBody)
			buf.WriteString("\n")
		}
	}

	al.requestLog.Write(buf.Bytes())
}

// LogWebSocket logs a WebSocket message
func (al *AppLogger) LogWebSocket(direction, player, message string) {
	if !al.logWS || al.wsLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.wsMessageCount++
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(al.wsLog, "[%s] #%d %s [%s]: %s\n", timestamp, al.wsMessageCount, direction, player, message)
}

// dumpTables are dumped in this order. Logs of past games are long, so
// only the newest dumpRowLimit rows of each table are shown.
var dumpTables = []string{"player", "role_config", "game", "game_player", "night_log", "game_log", "leaderboard"}

const dumpRowLimit = 25

// LogDB writes a snapshot of the game tables to database.log.
func (al *AppLogger) LogDB(context string) {
	al.mu.Lock()
	defer al.mu.Unlock()
	if !al.logDB || al.dbLog == nil || al.db == nil {
		return
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== DATABASE DUMP [%s] ==========\n", time.Now().Format("15:04:05.000"))
	fmt.Fprintf(&buf, "Context: %s\n\n", context)
	for _, table := range dumpTables {
		al.dumpTable(&buf, table)
	}
	al.dbLog.Write(buf.Bytes())
}

func (al *AppLogger) dumpTable(buf *bytes.Buffer, table string) {
	var total int
	if err := al.db.Get(&total, "SELECT COUNT(*) FROM "+table); err != nil {
		fmt.Fprintf(buf, "--- %s: %v ---\n\n", table, err)
		return
	}
	fmt.Fprintf(buf, "--- %s (%d rows) ---\n", table, total)

	rows, err := al.db.Queryx(fmt.Sprintf("SELECT * FROM %s ORDER BY rowid DESC LIMIT %d", table, dumpRowLimit))
	if err != nil {
		fmt.Fprintf(buf, "Error: %v\n\n", err)
		return
	}
	defer rows.Close()

	cols, _ := rows.Columns()
	fmt.Fprintf(buf, "%s\n", strings.Join(cols, " | "))
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			fmt.Fprintf(buf, "Error scanning row: %v\n", err)
			continue
		}
		cells := make([]string, len(vals))
		for i, v := range vals {
			switch val := v.(type) {
			case nil:
				cells[i] = "NULL"
			case []byte:
				cells[i] = string(val)
			default:
				cells[i] = fmt.Sprint(val)
			}
		}
		buf.WriteString(strings.Join(cells, " | ") + "\n")
	}
	if total > dumpRowLimit {
		fmt.Fprintf(buf, "(%d older rows not shown)\n", total-dumpRowLimit)
	}
	buf.WriteString("\n")
}

// Debug logs a debug message if debug mode is enabled
func (al *AppLogger) Debug(format string, args ...any) {
	if !al.debug {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

// IsEnabled returns true if any logging is enabled
func (al *AppLogger) IsEnabled() bool {
	return al.logRequests || al.logDB || al.logWS || al.debug
}

// LoggingHandler records requests and responses. WebSocket upgrades pass
// straight through because they need http.Hijacker.
type LoggingHandler struct {
	Handler http.Handler
	Logger  *AppLogger
}

func (l *LoggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ws" {
		l.Logger.LogRequest(r.Method, r.URL.String(), nil, http.StatusSwitchingProtocols, []byte("[WebSocket upgrade]"))
		l.Handler.ServeHTTP(w, r)
		return
	}

	var reqBody []byte
	if r.Body != nil {
		reqBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	rec := httptest.NewRecorder()
	l.Handler.ServeHTTP(rec, r)

	for k, v := range rec.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(rec.Code)
	respBody := rec.Body.Bytes()
	w.Write(respBody)

	l.Logger.LogRequest(r.Method, r.URL.String(), reqBody, rec.Code, respBody)
}

// ============================================================================
// Global helper functions
// ============================================================================

// logError logs an error with context and snapshots the database when db logging is on.
func logError(context string, err error) {
	log.Printf("ERROR [%s]: %v", context, err)
	LogDBState("error in " + context)
}

func LogWSMessage(direction, player, message string) {
	if appLogger != nil {
		appLogger.LogWebSocket(direction, player, message)
	}
}

func LogDBState(context string) {
	if appLogger != nil {
		appLogger.LogDB(context)
	}
}

// DebugLog logs a debug line tagged with the calling context.
func DebugLog(context, format string, args ...any) {
	if appLogger != nil {
		appLogger.Debug("["+context+"] "+format, args...)
	}
}

func CloseAppLogger() {
	if appLogger != nil {
		appLogger.Close()
	}
}
