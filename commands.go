package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"dewolf/internal/engine"
)

func (app *App) handleWSMessage(client *Client, message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("WebSocket unmarshal error for player %s: %v", client.playerID, err)
		app.hub.sendErrorToast(client.playerID, "Malformed message")
		return
	}

	LogWSMessage("IN", client.name, string(message))

	switch msg.Action {
	case "join":
		app.onJoin(client)
	case "update_role":
		app.updateRole(client, msg)
	case "start_game":
		app.startGame(client)
	case "new_game":
		app.newGame(client)
	case "reset":
		app.restartGame(client)
	case "pause":
		app.setPaused(client, true)
	case "resume":
		app.setPaused(client, false)
	case "night_action":
		app.handleNightAction(client, msg)
	case "pass":
		app.handlePass(client)
	case "day_vote":
		app.handleDayVote(client, msg)
	case "skip":
		app.handleSkip(client)
	case "answer":
		app.handleAnswer(client, msg)
	default:
		log.Printf("Unknown action: %s for player %s (%s) in group %s", msg.Action, client.playerID, client.name, client.groupID)
		app.hub.sendErrorToast(client.playerID, "Unknown action")
	}
}

// session returns the client's session, telling the client when there is
// none.
func (app *App) session(client *Client) (*engine.Session, bool) {
	s, ok := app.sessions.Get(client.groupID)
	if !ok {
		app.hub.sendErrorToast(client.playerID, engine.ErrSessionNotFound.Error())
	}
	return s, ok
}

// rejectionMessage renders an engine error for the player.
func rejectionMessage(err error) string {
	if engine.RejectionReason(err) != 0 {
		return err.Error()
	}
	if errors.Is(err, engine.ErrAlreadyPaused) || errors.Is(err, engine.ErrNotPaused) {
		return err.Error()
	}
	log.Printf("Unexpected submission error: %v", err)
	return "Something went wrong"
}

// intentFromMessage builds the intent a night action or ballot carries.
func intentFromMessage(msg WSMessage) (engine.Intent, error) {
	intent := engine.Intent{
		Target: engine.PlayerID(msg.Target),
		Second: engine.PlayerID(msg.Second),
		Skip:   msg.Skip,
	}
	if msg.Guess != "" {
		role, err := engine.ParseRole(msg.Guess)
		if err != nil {
			return intent, err
		}
		intent.Role = role
	}
	return intent, nil
}

func (app *App) handleNightAction(client *Client, msg WSMessage) {
	field, ok := engine.ParseField(msg.Field)
	if !ok || field == engine.FieldBallot {
		app.hub.sendErrorToast(client.playerID, fmt.Sprintf("Unknown night action %q", msg.Field))
		return
	}
	intent, err := intentFromMessage(msg)
	if err != nil {
		app.hub.sendErrorToast(client.playerID, err.Error())
		return
	}
	s, ok := app.session(client)
	if !ok {
		return
	}
	if err := s.Submit(engine.PlayerID(client.playerID), field, intent); err != nil {
		DebugLog("handleNightAction", "Player '%s' %s rejected: %v", client.name, field, err)
		app.hub.sendErrorToast(client.playerID, rejectionMessage(err))
		return
	}
	DebugLog("handleNightAction", "Player '%s' submitted %s -> %s", client.name, field, msg.Target)
	app.hub.sendToast(client.playerID, "success", "Action recorded")
}

func (app *App) handlePass(client *Client) {
	s, ok := app.session(client)
	if !ok {
		return
	}
	if err := s.Pass(engine.PlayerID(client.playerID)); err != nil {
		app.hub.sendErrorToast(client.playerID, rejectionMessage(err))
		return
	}
	app.hub.sendToast(client.playerID, "success", "You pass tonight")
}

func (app *App) handleDayVote(client *Client, msg WSMessage) {
	s, ok := app.session(client)
	if !ok {
		return
	}
	ballot := engine.Intent{Target: engine.PlayerID(msg.Target), Skip: msg.Skip}
	if ballot.Target == "" && !ballot.Skip {
		app.hub.sendErrorToast(client.playerID, "Vote for a player or skip")
		return
	}
	if err := s.Submit(engine.PlayerID(client.playerID), engine.FieldBallot, ballot); err != nil {
		DebugLog("handleDayVote", "Player '%s' ballot rejected: %v", client.name, err)
		app.hub.sendErrorToast(client.playerID, rejectionMessage(err))
		return
	}
	app.hub.sendToast(client.playerID, "success", "Vote recorded")
}

func (app *App) handleSkip(client *Client) {
	s, ok := app.session(client)
	if !ok {
		return
	}
	count, required, err := s.VoteSkip(engine.PlayerID(client.playerID))
	if err != nil {
		app.hub.sendErrorToast(client.playerID, rejectionMessage(err))
		return
	}
	app.hub.sendGroupToast(client.groupID, "info", fmt.Sprintf("%s wants to move on (%d/%d)", client.name, count, required))
}

func (app *App) handleAnswer(client *Client, msg WSMessage) {
	s, ok := app.session(client)
	if !ok {
		return
	}
	v := s.View()
	if v.Phase != engine.PhaseNight {
		app.hub.sendErrorToast(client.playerID, "Problems can only be answered at night")
		return
	}
	gg, ok := app.gameFor(client.groupID)
	if !ok {
		app.hub.sendErrorToast(client.playerID, engine.ErrSessionNotFound.Error())
		return
	}
	correct, err := gg.gate.answer(v.Night, engine.PlayerID(client.playerID), msg.Answer)
	if err != nil {
		app.hub.sendErrorToast(client.playerID, err.Error())
		return
	}
	DebugLog("handleAnswer", "Player '%s' answered night %d: correct=%v", client.name, v.Night, correct)
	if correct {
		app.hub.sendToast(client.playerID, "success", "Correct, you may vote tomorrow")
	} else {
		app.hub.sendToast(client.playerID, "warning", "Wrong, you cannot vote tomorrow")
	}
}
