package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
)

const sessionCookieName = "dewolf_session"

func generateSecretCode() (string, error) {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func (app *App) setSessionCookie(w http.ResponseWriter, playerID string) error {
	token, err := app.store.createSession(playerID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (app *App) playerFromRequest(r *http.Request) (playerRow, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return playerRow{}, err
	}
	return app.store.playerBySession(cookie.Value)
}

type authResponse struct {
	PlayerID   string `json:"player_id"`
	Name       string `json:"name"`
	SecretCode string `json:"secret_code,omitempty"`
}

func (app *App) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		writeToast(w, http.StatusBadRequest, "error", "Name is required")
		return
	}

	_, err := app.store.playerByName(name)
	if err == nil {
		writeToast(w, http.StatusConflict, "error", "Name already taken. Use login with secret code if this is you.")
		return
	}
	if !errors.Is(err, errNotFound) {
		logError("handleSignup: playerByName", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	secretCode, err := generateSecretCode()
	if err != nil {
		logError("handleSignup: generateSecretCode", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	player, err := app.store.createPlayer(name, secretCode)
	if err != nil {
		logError("handleSignup: createPlayer", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	log.Printf("New player created: name='%s', id=%s", name, player.ID)
	DebugLog("handleSignup", "Player '%s' signed up with ID %s", name, player.ID)
	LogDBState("after signup: " + name)

	if err := app.setSessionCookie(w, player.ID); err != nil {
		logError("handleSignup: setSessionCookie", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	writeJSON(w, authResponse{PlayerID: player.ID, Name: player.Name, SecretCode: secretCode})
}

func (app *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.FormValue("name")
	secretCode := r.FormValue("secret_code")
	if name == "" || secretCode == "" {
		writeToast(w, http.StatusBadRequest, "error", "Name and secret code are required")
		return
	}

	player, err := app.store.playerByName(name)
	if errors.Is(err, errNotFound) || (err == nil && player.SecretCode != secretCode) {
		writeToast(w, http.StatusUnauthorized, "error", "Invalid name or secret code")
		return
	}
	if err != nil {
		logError("handleLogin: playerByName", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	log.Printf("Player logged in: name='%s', id=%s", name, player.ID)
	if err := app.setSessionCookie(w, player.ID); err != nil {
		logError("handleLogin: setSessionCookie", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	writeJSON(w, authResponse{PlayerID: player.ID, Name: player.Name})
}

func (app *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if err := app.store.deleteSession(cookie.Value); err != nil {
			logError("handleLogout: deleteSession", err)
		}
	}
	DebugLog("handleLogout", "session cleared")

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}
