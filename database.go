package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"dewolf/internal/engine"
)

type playerRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	SecretCode string `db:"secret_code"`
}

type gameRow struct {
	ID        string       `db:"id" json:"id"`
	GroupID   string       `db:"group_id" json:"group_id"`
	Status    string       `db:"status" json:"status"` // running, finished, aborted
	Winner    string       `db:"winner" json:"winner"`
	Nights    int          `db:"nights" json:"nights"`
	StartedAt time.Time    `db:"started_at" json:"started_at"`
	EndedAt   sql.NullTime `db:"ended_at" json:"-"`
}

type nightLogRow struct {
	Night  int    `db:"night" json:"night"`
	Deaths string `db:"deaths" json:"deaths"`
}

type gameLogRow struct {
	Line      string    `db:"line" json:"line"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type LeaderboardEntry struct {
	PlayerID    string `db:"player_id" json:"player_id"`
	Name        string `db:"name" json:"name"`
	Points      int    `db:"points" json:"points"`
	Wins        int    `db:"wins" json:"wins"`
	GamesPlayed int    `db:"games_played" json:"games_played"`
}

// Store wraps every query the server makes.
type Store struct {
	db *sqlx.DB
}

func newStore(db *sqlx.DB) *Store { return &Store{db: db} }

var errNotFound = errors.New("not found")

func (s *Store) createPlayer(name, secretCode string) (playerRow, error) {
	p := playerRow{ID: uuid.NewString(), Name: name, SecretCode: secretCode}
	_, err := s.db.NamedExec("INSERT INTO player (id, name, secret_code) VALUES (:id, :name, :secret_code)", p)
	return p, err
}

func (s *Store) playerByName(name string) (playerRow, error) {
	var p playerRow
	err := s.db.Get(&p, "SELECT id, name, secret_code FROM player WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return p, errNotFound
	}
	return p, err
}

func (s *Store) createSession(playerID string) (string, error) {
	token := uuid.NewString()
	_, err := s.db.Exec("INSERT INTO session (token, player_id) VALUES (?, ?)", token, playerID)
	return token, err
}

func (s *Store) playerBySession(token string) (playerRow, error) {
	var p playerRow
	err := s.db.Get(&p, `SELECT p.id, p.name, p.secret_code
		FROM session s JOIN player p ON s.player_id = p.id
		WHERE s.token = ?`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return p, errNotFound
	}
	return p, err
}

func (s *Store) deleteSession(token string) error {
	_, err := s.db.Exec("DELETE FROM session WHERE token = ?", token)
	return err
}

// roleCounts returns the lobby's role configuration.
func (s *Store) roleCounts(groupID string) (map[engine.Role]int, error) {
	var rows []struct {
		Role  string `db:"role"`
		Count int    `db:"count"`
	}
	if err := s.db.Select(&rows, "SELECT role, count FROM role_config WHERE group_id = ?", groupID); err != nil {
		return nil, err
	}
	counts := make(map[engine.Role]int, len(rows))
	for _, r := range rows {
		role, err := engine.ParseRole(r.Role)
		if err != nil {
			log.Printf("roleCounts: skipping %q for group %s: %v", r.Role, groupID, err)
			continue
		}
		counts[role] = r.Count
	}
	return counts, nil
}

// adjustRoleCount adds delta to a role's count, never going below zero.
func (s *Store) adjustRoleCount(groupID string, role engine.Role, delta int) (int, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var count int
	err = tx.Get(&count, "SELECT count FROM role_config WHERE group_id = ? AND role = ?", groupID, role.String())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	count = max(count+delta, 0)
	if count == 0 {
		_, err = tx.Exec("DELETE FROM role_config WHERE group_id = ? AND role = ?", groupID, role.String())
	} else {
		_, err = tx.Exec(`INSERT INTO role_config (group_id, role, count) VALUES (?, ?, ?)
			ON CONFLICT(group_id, role) DO UPDATE SET count = excluded.count`, groupID, role.String(), count)
	}
	if err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

// createGame aborts any running game of the group and records a new one
// with its dealt roster.
func (s *Store) createGame(groupID string, players []engine.Player) (string, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE game SET status = 'aborted', ended_at = ? WHERE group_id = ? AND status = 'running'",
		time.Now().UTC(), groupID); err != nil {
		return "", err
	}
	gameID := uuid.NewString()
	if _, err := tx.Exec("INSERT INTO game (id, group_id, status, started_at) VALUES (?, ?, 'running', ?)",
		gameID, groupID, time.Now().UTC()); err != nil {
		return "", err
	}
	for _, p := range players {
		if _, err := tx.Exec("INSERT INTO game_player (game_id, player_id, role, status) VALUES (?, ?, ?, ?)",
			gameID, string(p.ID), p.Role.String(), p.Status.String()); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return gameID, nil
}

func (s *Store) abortGames(groupID string) error {
	_, err := s.db.Exec("UPDATE game SET status = 'aborted', ended_at = ? WHERE group_id = ? AND status = 'running'",
		time.Now().UTC(), groupID)
	return err
}

func (s *Store) currentGameID(ctx context.Context, groupID string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT id FROM game
		WHERE group_id = ? AND status = 'running'
		ORDER BY started_at DESC LIMIT 1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errNotFound
	}
	return id, err
}

func (s *Store) appendGameLog(ctx context.Context, groupID, line string) error {
	gameID, err := s.currentGameID(ctx, groupID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO game_log (game_id, line, created_at) VALUES (?, ?, ?)",
		gameID, line, time.Now().UTC())
	return err
}

func (s *Store) game(gameID string) (gameRow, error) {
	var g gameRow
	err := s.db.Get(&g, "SELECT id, group_id, status, winner, nights, started_at, ended_at FROM game WHERE id = ?", gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return g, errNotFound
	}
	return g, err
}

func (s *Store) recentGames(groupID string, limit int) ([]gameRow, error) {
	var games []gameRow
	err := s.db.Select(&games, `SELECT id, group_id, status, winner, nights, started_at, ended_at
		FROM game WHERE group_id = ? ORDER BY started_at DESC LIMIT ?`, groupID, limit)
	return games, err
}

func (s *Store) nightLogs(gameID string) ([]nightLogRow, error) {
	var rows []nightLogRow
	err := s.db.Select(&rows, "SELECT night, deaths FROM night_log WHERE game_id = ? ORDER BY night", gameID)
	return rows, err
}

func (s *Store) gameLog(gameID string) ([]gameLogRow, error) {
	var rows []gameLogRow
	err := s.db.Select(&rows, "SELECT line, created_at FROM game_log WHERE game_id = ? ORDER BY rowid", gameID)
	return rows, err
}

func (s *Store) leaderboard(limit int) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := s.db.Select(&entries, `SELECT player_id, name, points, wins, games_played
		FROM leaderboard ORDER BY points DESC, wins DESC, name ASC LIMIT ?`, limit)
	return entries, err
}

// sqlRecorder persists what a session reports.
type sqlRecorder struct {
	store *Store
}

func (r *sqlRecorder) RecordNightLog(ctx context.Context, groupID string, night int, deaths []engine.PlayerID) error {
	gameID, err := r.store.currentGameID(ctx, groupID)
	if err != nil {
		return fmt.Errorf("night log for %s: %w", groupID, err)
	}
	ids := make([]string, len(deaths))
	for i, id := range deaths {
		ids[i] = string(id)
	}
	_, err = r.store.db.ExecContext(ctx, `INSERT INTO night_log (game_id, night, deaths) VALUES (?, ?, ?)
		ON CONFLICT(game_id, night) DO UPDATE SET deaths = excluded.deaths`,
		gameID, night, strings.Join(ids, ","))
	return err
}

// RecordGameResult closes the game row, stores final statuses and scores
// the leaderboard in one transaction.
func (r *sqlRecorder) RecordGameResult(ctx context.Context, result engine.GameResult) error {
	gameID, err := r.store.currentGameID(ctx, result.GroupID)
	if err != nil {
		return fmt.Errorf("result for %s: %w", result.GroupID, err)
	}

	tx, err := r.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE game SET status = 'finished', winner = ?, nights = ?, ended_at = ? WHERE id = ?",
		result.Winner.String(), result.Nights, time.Now().UTC(), gameID); err != nil {
		return err
	}
	for _, p := range result.Players {
		if _, err := tx.ExecContext(ctx, "UPDATE game_player SET role = ?, status = ? WHERE game_id = ? AND player_id = ?",
			p.Role.String(), p.Status.String(), gameID, string(p.ID)); err != nil {
			return err
		}
		points, won := score(p, result.Winner)
		wins := 0
		if won {
			wins = 1
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO leaderboard (player_id, name, points, wins, games_played)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(player_id) DO UPDATE SET
				name = excluded.name,
				points = points + excluded.points,
				wins = wins + excluded.wins,
				games_played = games_played + 1`,
			string(p.ID), p.Name, points, wins); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	LogDBState("after game result " + gameID)
	return nil
}

// score awards winners 3 points if they survived and 1 if not; losers lose
// one. Nobody scores when there is no winner. Players score with the team
// they play for, so the Illusionist wins with the pack.
func score(p engine.Player, w engine.Winner) (points int, won bool) {
	var team engine.Team
	switch w {
	case engine.VillagersWin:
		team = engine.TeamVillager
	case engine.WerewolvesWin:
		team = engine.TeamWerewolf
	default:
		return 0, false
	}
	if p.Role.Team() != team {
		return -1, false
	}
	if p.IsAlive() {
		return 3, true
	}
	return 1, true
}

func initDB(db *sqlx.DB) error {
	schema := `
	PRAGMA journal_mode=WAL;

	CREATE TABLE IF NOT EXISTS player (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		secret_code TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS session (
		token TEXT PRIMARY KEY,
		player_id TEXT NOT NULL,
		FOREIGN KEY (player_id) REFERENCES player(id)
	);
	CREATE TABLE IF NOT EXISTS role_config (
		group_id TEXT NOT NULL,
		role TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		UNIQUE(group_id, role)
	);
	CREATE TABLE IF NOT EXISTS game (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		winner TEXT NOT NULL DEFAULT '',
		nights INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_game_group ON game(group_id, status);
	CREATE TABLE IF NOT EXISTS game_player (
		game_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Alive',
		FOREIGN KEY (game_id) REFERENCES game(id),
		FOREIGN KEY (player_id) REFERENCES player(id),
		UNIQUE(game_id, player_id)
	);
	CREATE TABLE IF NOT EXISTS night_log (
		game_id TEXT NOT NULL,
		night INTEGER NOT NULL,
		deaths TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (game_id) REFERENCES game(id),
		UNIQUE(game_id, night)
	);
	CREATE TABLE IF NOT EXISTS game_log (
		game_id TEXT NOT NULL,
		line TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (game_id) REFERENCES game(id)
	);
	CREATE INDEX IF NOT EXISTS idx_game_log_game ON game_log(game_id);
	CREATE TABLE IF NOT EXISTS leaderboard (
		player_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		games_played INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := db.Exec(schema)
	if err != nil {
		log.Printf("initDB error: %v", err)
		return err
	}
	log.Printf("Database initialized successfully")
	return nil
}
