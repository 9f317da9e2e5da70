package main

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"

	"dewolf/internal/engine"
)

// groupGame is the server side of one group's game.
type groupGame struct {
	presenter *hubPresenter
	narrator  *narratingPresenter // nil without a storyteller
	gate      *challengeGate
	ended     bool
}

func (app *App) gameFor(groupID string) (*groupGame, bool) {
	app.mu.Lock()
	defer app.mu.Unlock()
	gg, ok := app.games[groupID]
	return gg, ok
}

// running reports whether the group has a game that has not ended.
func (app *App) running(groupID string) bool {
	app.mu.Lock()
	defer app.mu.Unlock()
	gg, ok := app.games[groupID]
	return ok && !gg.ended
}

// onJoin is called by the hub for every new connection.
func (app *App) onJoin(c *Client) {
	if _, ok := app.sessions.Get(c.groupID); ok {
		app.sendGameState(c)
	}
	if !app.running(c.groupID) {
		app.broadcastLobby(c.groupID)
	}
}

// onLeave is called by the hub when a player's last connection to a group
// closes. Players stay in a running game.
func (app *App) onLeave(c *Client) {
	if app.running(c.groupID) {
		DebugLog("onLeave", "Player '%s' disconnected from running game in %s", c.name, c.groupID)
		return
	}
	app.broadcastLobby(c.groupID)
}

func (app *App) lobbyEvent(groupID string) (ServerEvent, error) {
	counts, err := app.store.roleCounts(groupID)
	if err != nil {
		return ServerEvent{}, err
	}
	players := app.hub.connectedPlayers(groupID)
	roles := make(map[string]int, len(counts))
	total := 0
	for role, n := range counts {
		roles[role.String()] = n
		total += n
	}
	return ServerEvent{
		Type:     "lobby",
		Group:    groupID,
		Players:  players,
		Roles:    roles,
		CanStart: len(players) > 0 && total == len(players),
	}, nil
}

func (app *App) broadcastLobby(groupID string) {
	ev, err := app.lobbyEvent(groupID)
	if err != nil {
		logError("broadcastLobby", err)
		return
	}
	DebugLog("broadcastLobby", "Broadcasting lobby of %s to %d players", groupID, len(ev.Players))
	if data := encodeEvent(ev); data != nil {
		app.hub.sendToGroup(groupID, data)
	}
}

// stateEvent describes the game as one player may see it. Roles stay
// hidden until the game ends, except the player's own.
func stateEvent(v engine.View, playerID string) ServerEvent {
	ev := ServerEvent{
		Type:       "state",
		Group:      v.GroupID,
		Phase:      v.Phase.String(),
		Night:      v.Night,
		DurationMS: v.Remaining.Milliseconds(),
		Paused:     v.Paused,
	}
	if v.Winner != engine.NoWinner {
		ev.Winner = v.Winner.String()
	}
	for _, p := range v.Players {
		pv := playerView{ID: string(p.ID), Name: p.Name, Status: p.Status.String()}
		if string(p.ID) == playerID {
			ev.Role = p.Role.String()
			pv.Role = ev.Role
		} else if v.Phase == engine.PhaseEnded {
			pv.Role = p.Role.String()
		}
		ev.Players = append(ev.Players, pv)
	}
	return ev
}

func (app *App) sendGameState(c *Client) {
	s, ok := app.sessions.Get(c.groupID)
	if !ok {
		return
	}
	if data := encodeEvent(stateEvent(s.View(), c.playerID)); data != nil {
		app.hub.sendToPlayer(c.playerID, data)
	}
}

func (app *App) updateRole(c *Client, msg WSMessage) {
	if app.running(c.groupID) {
		app.hub.sendErrorToast(c.playerID, "Roles cannot change while a game is running")
		return
	}
	role, err := engine.ParseRole(msg.Role)
	if err != nil {
		app.hub.sendErrorToast(c.playerID, err.Error())
		return
	}
	if msg.Delta != 1 && msg.Delta != -1 {
		app.hub.sendErrorToast(c.playerID, "Role counts change by one")
		return
	}

	count, err := app.store.adjustRoleCount(c.groupID, role, msg.Delta)
	if err != nil {
		logError("updateRole: adjustRoleCount", err)
		app.hub.sendErrorToast(c.playerID, "Failed to update role")
		return
	}
	DebugLog("updateRole", "Player '%s' set %s to %d in %s", c.name, role, count, c.groupID)
	LogDBState("after role update: " + role.String())
	app.broadcastLobby(c.groupID)
}

// dealRoles pairs the connected players with a shuffled copy of the
// configured role pool.
func (app *App) dealRoles(groupID string) ([]engine.Player, error) {
	players := app.hub.connectedPlayers(groupID)
	counts, err := app.store.roleCounts(groupID)
	if err != nil {
		return nil, err
	}
	var pool []engine.Role
	for _, role := range engine.AllRoles() {
		for range counts[role] {
			pool = append(pool, role)
		}
	}
	if len(pool) != len(players) {
		return nil, fmt.Errorf("role count (%d) must match player count (%d)", len(pool), len(players))
	}
	if err := shuffleRoles(pool, rand.Reader); err != nil {
		logError("dealRoles", err)
		return nil, errors.New("could not deal the roles, try again")
	}

	roster := make([]engine.Player, len(players))
	for i, p := range players {
		roster[i] = engine.Player{ID: engine.PlayerID(p.ID), Name: p.Name, Role: pool[i]}
	}
	return roster, nil
}

func (app *App) startGame(c *Client) {
	if app.running(c.groupID) {
		app.hub.sendErrorToast(c.playerID, engine.ErrSessionActive.Error())
		return
	}
	roster, err := app.dealRoles(c.groupID)
	if err != nil {
		app.hub.sendErrorToast(c.playerID, err.Error())
		return
	}
	if err := app.launch(c.groupID, roster); err != nil {
		logError("startGame: launch", err)
		app.hub.sendErrorToast(c.playerID, err.Error())
	}
}

// launch records a new game and starts its session.
func (app *App) launch(groupID string, roster []engine.Player) error {
	policy, err := engine.ParseAllDeadPolicy(app.cfg.AllDeadPolicy)
	if err != nil {
		return err
	}
	if _, err := app.store.createGame(groupID, roster); err != nil {
		return err
	}

	gate := newChallengeGate(randomSeed())
	gg := &groupGame{presenter: newHubPresenter(app, groupID, gate, roster), gate: gate}
	var presenter engine.Presenter = gg.presenter
	if app.teller != nil {
		gg.narrator = newNarratingPresenter(gg.presenter, app.teller)
		presenter = gg.narrator
	}

	// Registered first so the exit hook always finds it.
	app.mu.Lock()
	app.games[groupID] = gg
	app.mu.Unlock()

	s, err := app.sessions.Start(engine.Config{
		GroupID:       groupID,
		Players:       roster,
		Timings:       app.cfg.timings(),
		AllDeadPolicy: policy,
		Presenter:     presenter,
		Recorder:      &sqlRecorder{store: app.store},
		Eligibility:   gate,
		Logger:        log.Default(),
	})
	if err != nil {
		app.mu.Lock()
		if app.games[groupID] == gg {
			delete(app.games, groupID)
		}
		app.mu.Unlock()
		if abortErr := app.store.abortGames(groupID); abortErr != nil {
			logError("launch: abortGames", abortErr)
		}
		return err
	}
	gg.presenter.session.Store(s)

	log.Printf("Game started in group %s with %d players", groupID, len(roster))
	LogDBState("after game start: " + groupID)
	app.dealPrivately(gg.presenter, roster)
	return nil
}

// dealPrivately tells each player their own role.
func (app *App) dealPrivately(hp *hubPresenter, roster []engine.Player) {
	for _, p := range roster {
		hp.toPlayer(p.ID, ServerEvent{Type: "role", Role: p.Role.String()})
	}
}

// restartGame replays the group's game with the same roles.
func (app *App) restartGame(c *Client) {
	gg, ok := app.gameFor(c.groupID)
	if !ok {
		app.hub.sendErrorToast(c.playerID, engine.ErrSessionNotFound.Error())
		return
	}
	if _, err := app.store.createGame(c.groupID, gg.presenter.roster); err != nil {
		logError("restartGame: createGame", err)
		app.hub.sendErrorToast(c.playerID, "Failed to restart the game")
		return
	}
	gg.gate.reset()
	if gg.narrator != nil {
		gg.narrator.forget()
	}

	s, err := app.sessions.Restart(c.groupID)
	if err != nil {
		logError("restartGame: Restart", err)
		app.hub.sendErrorToast(c.playerID, err.Error())
		return
	}
	gg.presenter.session.Store(s)
	app.mu.Lock()
	gg.ended = false
	app.mu.Unlock()

	log.Printf("Game in group %s restarted by %s", c.groupID, c.name)
	app.hub.sendGroupToast(c.groupID, "info", c.name+" restarted the game")
	app.dealPrivately(gg.presenter, gg.presenter.roster)
}

// newGame ends whatever the group is playing and deals fresh roles to the
// players connected now.
func (app *App) newGame(c *Client) {
	if err := app.sessions.Stop(c.groupID); err != nil && !errors.Is(err, engine.ErrSessionNotFound) {
		log.Printf("newGame: previous session of %s ended with: %v", c.groupID, err)
	}
	if err := app.store.abortGames(c.groupID); err != nil {
		logError("newGame: abortGames", err)
	}
	app.mu.Lock()
	delete(app.games, c.groupID)
	app.mu.Unlock()

	roster, err := app.dealRoles(c.groupID)
	if err != nil {
		app.hub.sendErrorToast(c.playerID, err.Error())
		app.broadcastLobby(c.groupID)
		return
	}
	if err := app.launch(c.groupID, roster); err != nil {
		logError("newGame: launch", err)
		app.hub.sendErrorToast(c.playerID, err.Error())
	}
}

func (app *App) setPaused(c *Client, pause bool) {
	s, ok := app.sessions.Get(c.groupID)
	if !ok {
		app.hub.sendErrorToast(c.playerID, engine.ErrSessionNotFound.Error())
		return
	}
	verb := "resumed"
	var err error
	if pause {
		verb = "paused"
		err = s.Pause()
	} else {
		err = s.Resume()
	}
	if err != nil {
		app.hub.sendErrorToast(c.playerID, err.Error())
		return
	}

	if data := encodeEvent(ServerEvent{Type: "paused", Group: c.groupID, Paused: pause}); data != nil {
		app.hub.sendToGroup(c.groupID, data)
	}
	app.hub.sendGroupToast(c.groupID, "info", c.name+" "+verb+" the game")
	if gg, ok := app.gameFor(c.groupID); ok {
		gg.presenter.record("Game %s by %s", verb, c.name)
	}
}

// onSessionExit runs after a session's Run returns, including when it is
// stopped for a restart or a new game.
func (app *App) onSessionExit(groupID string, err error) {
	app.mu.Lock()
	if gg, ok := app.games[groupID]; ok {
		gg.ended = true
	}
	app.mu.Unlock()

	if err != nil {
		logError("session "+groupID, err)
		if abortErr := app.store.abortGames(groupID); abortErr != nil {
			logError("onSessionExit: abortGames", abortErr)
		}
		app.hub.sendGroupToast(groupID, "error", "The game stopped: "+err.Error())
		return
	}
	log.Printf("Session for group %s exited", groupID)
}

// shuffleRoles is a Fisher-Yates shuffle driven by src, crypto/rand in
// production, so the deal cannot be predicted. A failing source fails the
// deal.
func shuffleRoles(roles []engine.Role, src io.Reader) error {
	for i := len(roles) - 1; i > 0; i-- {
		jBig, err := rand.Int(src, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("shuffle roles: %w", err)
		}
		j := int(jBig.Int64())
		roles[i], roles[j] = roles[j], roles[i]
	}
	return nil
}

func randomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		log.Printf("randomSeed: %v", err)
	}
	return binary.LittleEndian.Uint64(b[:])
}
