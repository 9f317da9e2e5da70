package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"dewolf/internal/engine"
)

var (
	errNoChallenge     = errors.New("you have no problem to solve tonight")
	errAlreadyAnswered = errors.New("you already answered")
	errNotAnOption     = errors.New("that is not one of the options")
)

const (
	maxProblemAttempts = 20
	minChallengeAnswer = 100
)

var (
	challengeOperations = []string{"+", "-"}
	wrongAnswerOffsets  = []int{-100, -50, -10, 10, 50, 100}
	fallbackProblem     = Problem{Text: "100 + 50", Options: [3]int{150, 160, 140}, answer: 150}
)

// Problem is one arithmetic question with three options.
type Problem struct {
	Text    string `json:"problem"`
	Options [3]int `json:"options"`
	answer  int
}

type attempt struct {
	problem  Problem
	answered bool
	passed   bool
}

// challengeGate hands villagers without a night action an arithmetic
// problem each night. Solving it earns a vote the next day.
type challengeGate struct {
	mu     sync.Mutex
	rng    *rand.Rand
	nights map[int]map[engine.PlayerID]*attempt
	used   map[string]bool
}

func newChallengeGate(seed uint64) *challengeGate {
	return &challengeGate{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		nights: make(map[int]map[engine.PlayerID]*attempt),
		used:   make(map[string]bool),
	}
}

// issue deals a fresh problem to each player for the night. Problems are
// not repeated within a game.
func (g *challengeGate) issue(night int, players []engine.PlayerID) map[engine.PlayerID]Problem {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[engine.PlayerID]Problem, len(players))
	attempts := make(map[engine.PlayerID]*attempt, len(players))
	for _, id := range players {
		p := g.generate()
		attempts[id] = &attempt{problem: p}
		out[id] = p
	}
	g.nights[night] = attempts
	return out
}

func (g *challengeGate) generate() Problem {
	for range maxProblemAttempts {
		a := g.rng.IntN(900) + 100
		b := g.rng.IntN(900) + 100
		op := challengeOperations[g.rng.IntN(len(challengeOperations))]
		text := fmt.Sprintf("%d %s %d", a, op, b)
		if g.used[text] {
			continue
		}
		answer := a + b
		if op == "-" {
			answer = a - b
		}
		if answer < minChallengeAnswer {
			continue
		}

		picks := g.rng.Perm(len(wrongAnswerOffsets))[:2]
		options := [3]int{answer, answer + wrongAnswerOffsets[picks[0]], answer + wrongAnswerOffsets[picks[1]]}
		g.rng.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

		g.used[text] = true
		return Problem{Text: text, Options: options, answer: answer}
	}
	return fallbackProblem
}

// answer records a player's single answer for the night.
func (g *challengeGate) answer(night int, id engine.PlayerID, choice int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	at, ok := g.nights[night][id]
	if !ok {
		return false, errNoChallenge
	}
	if at.answered {
		return false, errAlreadyAnswered
	}
	valid := false
	for _, o := range at.problem.Options {
		if o == choice {
			valid = true
		}
	}
	if !valid {
		return false, errNotAnOption
	}
	at.answered = true
	at.passed = choice == at.problem.answer
	return at.passed, nil
}

// VotePassMap reports who solved their problem on the given night.
func (g *challengeGate) VotePassMap(night int) map[engine.PlayerID]bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	passed := make(map[engine.PlayerID]bool)
	for id, at := range g.nights[night] {
		if at.passed {
			passed[id] = true
		}
	}
	return passed
}

// reset forgets every night, for a restarted game.
func (g *challengeGate) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nights = make(map[int]map[engine.PlayerID]*attempt)
	g.used = make(map[string]bool)
}
