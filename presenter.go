package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"dewolf/internal/engine"
)

// ServerEvent is every message the server pushes over the WebSocket,
// apart from toasts.
type ServerEvent struct {
	Type       string         `json:"type"`
	Group      string         `json:"group,omitempty"`
	Phase      string         `json:"phase,omitempty"`
	Night      int            `json:"night,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Paused     bool           `json:"paused,omitempty"`
	Living     []string       `json:"living,omitempty"`
	Players    []playerView   `json:"players,omitempty"`
	Targets    []string       `json:"targets,omitempty"`
	Reveal     *revealView    `json:"reveal,omitempty"`
	Vote       *voteView      `json:"vote,omitempty"`
	Winner     string         `json:"winner,omitempty"`
	Role       string         `json:"role,omitempty"`
	Problem    *Problem       `json:"problem,omitempty"`
	Text       string         `json:"text,omitempty"`
	Roles      map[string]int `json:"roles,omitempty"`
	CanStart   bool           `json:"can_start,omitempty"`
}

type playerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	Status string `json:"status,omitempty"`
}

type revealView struct {
	Kind     string `json:"kind"`
	Target   string `json:"target"`
	Second   string `json:"second,omitempty"`
	Team     string `json:"team,omitempty"`
	SameTeam bool   `json:"same_team,omitempty"`
}

type voteView struct {
	Counts     map[string]int `json:"counts"`
	Skips      int            `json:"skips"`
	Ineligible []string       `json:"ineligible,omitempty"`
	Eliminated string         `json:"eliminated,omitempty"`
	Tie        bool           `json:"tie,omitempty"`
}

var revealKinds = map[engine.RevealKind]string{
	engine.RevealSeer:      "seer",
	engine.RevealDetective: "detective",
	engine.RevealCurse:     "curse",
}

func encodeEvent(ev ServerEvent) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		logError("encodeEvent "+ev.Type, err)
		return nil
	}
	return data
}

// hubPresenter shows one group's game over the hub and keeps its public
// game log.
type hubPresenter struct {
	app     *App
	groupID string
	gate    *challengeGate
	roster  []engine.Player
	names   map[engine.PlayerID]string
	session atomic.Pointer[engine.Session]
}

func newHubPresenter(app *App, groupID string, gate *challengeGate, roster []engine.Player) *hubPresenter {
	names := make(map[engine.PlayerID]string, len(roster))
	for _, p := range roster {
		names[p.ID] = p.Name
	}
	return &hubPresenter{app: app, groupID: groupID, gate: gate, roster: roster, names: names}
}

func (hp *hubPresenter) name(id engine.PlayerID) string {
	if n, ok := hp.names[id]; ok {
		return n
	}
	return string(id)
}

func (hp *hubPresenter) views(ids []engine.PlayerID) []playerView {
	out := make([]playerView, len(ids))
	for i, id := range ids {
		out[i] = playerView{ID: string(id), Name: hp.name(id)}
	}
	return out
}

func (hp *hubPresenter) toGroup(ev ServerEvent) {
	ev.Group = hp.groupID
	if data := encodeEvent(ev); data != nil {
		hp.app.hub.sendToGroup(hp.groupID, data)
	}
}

func (hp *hubPresenter) toPlayer(id engine.PlayerID, ev ServerEvent) {
	ev.Group = hp.groupID
	if data := encodeEvent(ev); data != nil {
		hp.app.hub.sendToPlayer(string(id), data)
	}
}

// record appends a line to the game log. The session never waits on it.
func (hp *hubPresenter) record(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	ctx, cancel := context.WithTimeout(hp.app.ctx, 2*time.Second)
	defer cancel()
	if err := hp.app.store.appendGameLog(ctx, hp.groupID, line); err != nil {
		log.Printf("Game log for %s: %v", hp.groupID, err)
	}
}

// challengeRoles lists living players who must solve a problem to vote.
func (hp *hubPresenter) challengeRoles(living []engine.PlayerID) []engine.PlayerID {
	roles := make(map[engine.PlayerID]engine.Role, len(hp.roster))
	for _, p := range hp.roster {
		roles[p.ID] = p.Role
	}
	if s := hp.session.Load(); s != nil {
		for _, p := range s.View().Players {
			roles[p.ID] = p.Role
		}
	}
	var out []engine.PlayerID
	for _, id := range living {
		if roles[id].NeedsChallenge() {
			out = append(out, id)
		}
	}
	return out
}

func (hp *hubPresenter) OnPhaseEnter(phase engine.Phase, info engine.PhaseInfo) {
	living := make([]string, len(info.Living))
	for i, id := range info.Living {
		living[i] = string(id)
	}
	hp.toGroup(ServerEvent{
		Type:       "phase",
		Phase:      phase.String(),
		Night:      info.Night,
		DurationMS: info.Duration.Milliseconds(),
		Living:     living,
	})
	hp.record("%s begins (night %d, %d alive)", phase, info.Night, len(info.Living))

	if phase == engine.PhaseNight && hp.gate != nil {
		problems := hp.gate.issue(info.Night, hp.challengeRoles(info.Living))
		for id, p := range problems {
			hp.toPlayer(id, ServerEvent{Type: "challenge", Night: info.Night, Problem: &p})
		}
		DebugLog("hubPresenter", "issued %d problems for %s night %d", len(problems), hp.groupID, info.Night)
	}
}

func (hp *hubPresenter) OnWitchPrompt(witch engine.PlayerID, targets []engine.PlayerID) {
	t := make([]string, len(targets))
	for i, id := range targets {
		t[i] = string(id)
	}
	hp.toPlayer(witch, ServerEvent{Type: "witch_prompt", Targets: t, Players: hp.views(targets)})
}

func (hp *hubPresenter) OnReveal(ev engine.RevealEvent) {
	rv := &revealView{Kind: revealKinds[ev.Kind], Target: string(ev.Target), Second: string(ev.Second)}
	switch ev.Kind {
	case engine.RevealSeer, engine.RevealCurse:
		rv.Team = ev.Team.String()
	case engine.RevealDetective:
		rv.SameTeam = ev.SameTeam
	}
	hp.toPlayer(ev.To, ServerEvent{Type: "reveal", Reveal: rv})
	if ev.Kind == engine.RevealCurse {
		hp.toPlayer(ev.To, ServerEvent{Type: "role", Role: engine.Werewolf.String()})
	}
}

func (hp *hubPresenter) OnDeaths(ids []engine.PlayerID) {
	hp.toGroup(ServerEvent{Type: "deaths", Players: hp.views(ids)})
	if len(ids) == 0 {
		hp.record("Nobody died")
		return
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = hp.name(id)
	}
	hp.record("Died: %s", strings.Join(names, ", "))
}

func (hp *hubPresenter) OnWounded(ids []engine.PlayerID) {
	hp.toGroup(ServerEvent{Type: "wounded", Players: hp.views(ids)})
	for _, id := range ids {
		hp.record("%s was wounded", hp.name(id))
	}
}

func (hp *hubPresenter) OnVoteResult(res engine.VoteResult) {
	vv := &voteView{Counts: make(map[string]int, len(res.Counts)), Skips: res.Skips, Eliminated: string(res.Eliminated), Tie: res.Tie}
	for id, n := range res.Counts {
		vv.Counts[string(id)] = n
	}
	for _, id := range res.Ineligible {
		vv.Ineligible = append(vv.Ineligible, string(id))
	}
	hp.toGroup(ServerEvent{Type: "vote_result", Vote: vv})
	switch {
	case res.Eliminated != "":
		hp.record("The village voted out %s", hp.name(res.Eliminated))
	case res.Tie:
		hp.record("The vote was tied; nobody was voted out")
	default:
		hp.record("Nobody was voted out (%d skips)", res.Skips)
	}
}

func (hp *hubPresenter) OnWinner(w engine.Winner, roster []engine.Player) {
	players := make([]playerView, len(roster))
	for i, p := range roster {
		players[i] = playerView{ID: string(p.ID), Name: p.Name, Role: p.Role.String(), Status: p.Status.String()}
	}
	hp.toGroup(ServerEvent{Type: "winner", Winner: w.String(), Players: players})
	hp.record("Game over: %s", w)
}
