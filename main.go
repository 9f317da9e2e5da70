package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"

	"dewolf/internal/engine"
)

// App ties the HTTP server, the hub and the running games together.
type App struct {
	ctx      context.Context
	cfg      AppConfig
	store    *Store
	hub      *Hub
	sessions *engine.Sessions
	teller   Storyteller

	mu    sync.Mutex
	games map[string]*groupGame
}

func newApp(ctx context.Context, cfg AppConfig, db *sqlx.DB, teller Storyteller) *App {
	app := &App{
		ctx:      ctx,
		cfg:      cfg,
		store:    newStore(db),
		hub:      newHub(),
		sessions: engine.NewSessions(ctx),
		teller:   teller,
		games:    make(map[string]*groupGame),
	}
	app.hub.onJoin = app.onJoin
	app.hub.onLeave = app.onLeave
	app.sessions.OnExit = app.onSessionExit
	return app
}

func (app *App) routes() http.Handler {
	mux := http.NewServeMux()

	// Wrap handlers with compression, caching control, and optional logging
	wrapHandler := func(pattern string, handler http.HandlerFunc) {
		var h http.Handler = handler
		if pattern != "/ws" {
			h = compress(h)
		}
		h = disableCaching(h)
		if appLogger != nil && appLogger.logRequests {
			h = &LoggingHandler{Handler: h, Logger: appLogger}
		}
		mux.Handle(pattern, h)
	}

	wrapHandler("/signup", app.handleSignup)
	wrapHandler("/login", app.handleLogin)
	wrapHandler("/logout", app.handleLogout)
	wrapHandler("/ws", app.handleWebSocket)
	wrapHandler("/state", app.handleState)
	wrapHandler("/leaderboard", app.handleLeaderboard)
	wrapHandler("/games", app.handleGames)
	wrapHandler("/logs", app.handleLogs)
	return mux
}

func groupParam(r *http.Request) string {
	if g := r.URL.Query().Get("group"); g != "" {
		return g
	}
	return "main"
}

// handleState returns the lobby or game state of a group for the caller.
func (app *App) handleState(w http.ResponseWriter, r *http.Request) {
	player, err := app.playerFromRequest(r)
	if err != nil {
		writeToast(w, http.StatusUnauthorized, "error", "Not logged in")
		return
	}
	groupID := groupParam(r)

	s, ok := app.sessions.Get(groupID)
	if !ok {
		ev, err := app.lobbyEvent(groupID)
		if err != nil {
			logError("handleState: lobbyEvent", err)
			writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
			return
		}
		writeJSON(w, ev)
		return
	}

	writeJSON(w, stateEvent(s.View(), player.ID))
}

func (app *App) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	entries, err := app.store.leaderboard(limit)
	if err != nil {
		logError("handleLeaderboard", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	writeJSON(w, entries)
}

func (app *App) handleGames(w http.ResponseWriter, r *http.Request) {
	games, err := app.store.recentGames(groupParam(r), 20)
	if err != nil {
		logError("handleGames", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	writeJSON(w, games)
}

type gameLogResponse struct {
	Game   gameRow       `json:"game"`
	Nights []nightLogRow `json:"nights"`
	Lines  []gameLogRow  `json:"lines"`
}

// handleLogs returns the history of one game. Logs of a running game stay
// hidden.
func (app *App) handleLogs(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game")
	if gameID == "" {
		writeToast(w, http.StatusBadRequest, "error", "game is required")
		return
	}
	g, err := app.store.game(gameID)
	if errors.Is(err, errNotFound) {
		writeToast(w, http.StatusNotFound, "error", "No such game")
		return
	}
	if err != nil {
		logError("handleLogs: game", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	if g.Status == "running" {
		writeToast(w, http.StatusForbidden, "error", "The game is still running")
		return
	}

	resp := gameLogResponse{Game: g}
	if resp.Nights, err = app.store.nightLogs(gameID); err != nil {
		logError("handleLogs: nightLogs", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	if resp.Lines, err = app.store.gameLog(gameID); err != nil {
		logError("handleLogs: gameLog", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	writeJSON(w, resp)
}

func main() {
	flags := registerFlags(flag.CommandLine)
	flag.Parse()

	cfg := loadConfig(*flags.configPath, *flags.dotenvPath)
	flags.applyTo(&cfg)
	if err := cfg.validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	// Set up logging to both stdout and file
	logFile, err := os.OpenFile("dewolf.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	logger, err := NewAppLogger(cfg.toLogConfig())
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	appLogger = logger
	defer CloseAppLogger()

	if appLogger.IsEnabled() {
		log.Println("Extended logging enabled")
	}

	db, err := sqlx.Connect("sqlite3", cfg.DB)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := initDB(db); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	appLogger.WatchDB(db)
	LogDBState("after initDB")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(ctx, cfg, db, newStoryteller(cfg))
	srv := &http.Server{Addr: cfg.Addr, Handler: app.routes()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.hub.run(gctx)
	})
	g.Go(func() error {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server error: %v", err)
	}
	stop()
	if err := app.sessions.Wait(); err != nil {
		log.Printf("Session error: %v", err)
	}
}
