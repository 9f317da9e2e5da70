package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Timings are the lengths of each timed window.
type Timings struct {
	FirstDay   time.Duration
	Discussion time.Duration
	Vote       time.Duration
	Night      time.Duration
	Witch      time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		FirstDay:   30 * time.Second,
		Discussion: 120 * time.Second,
		Vote:       45 * time.Second,
		Night:      40 * time.Second,
		Witch:      20 * time.Second,
	}
}

func (t Timings) withDefaults() Timings {
	d := DefaultTimings()
	if t.FirstDay <= 0 {
		t.FirstDay = d.FirstDay
	}
	if t.Discussion <= 0 {
		t.Discussion = d.Discussion
	}
	if t.Vote <= 0 {
		t.Vote = d.Vote
	}
	if t.Night <= 0 {
		t.Night = d.Night
	}
	if t.Witch <= 0 {
		t.Witch = d.Witch
	}
	return t
}

// PhaseInfo accompanies a phase announcement.
type PhaseInfo struct {
	GroupID  string
	Night    int
	Duration time.Duration
	Living   []PlayerID
}

// Presenter shows the game to players. Calls are fire-and-forget and are
// made from the session goroutine.
type Presenter interface {
	OnPhaseEnter(phase Phase, info PhaseInfo)
	OnWitchPrompt(witch PlayerID, targets []PlayerID)
	OnReveal(ev RevealEvent)
	OnDeaths(ids []PlayerID)
	OnWounded(ids []PlayerID)
	OnVoteResult(res VoteResult)
	OnWinner(w Winner, roster []Player)
}

// GameResult is handed to the Recorder when a game ends.
type GameResult struct {
	GroupID string
	Winner  Winner
	Nights  int
	Players []Player
}

// Recorder persists history. Errors are logged and never stop the game.
type Recorder interface {
	RecordNightLog(ctx context.Context, groupID string, night int, deaths []PlayerID) error
	RecordGameResult(ctx context.Context, result GameResult) error
}

// Eligibility reports which challenge roles earned a vote for the day
// after night.
type Eligibility interface {
	VotePassMap(night int) map[PlayerID]bool
}

type Logger interface {
	Printf(format string, args ...any)
}

// Config sets up one session.
type Config struct {
	GroupID       string
	Players       []Player
	Timings       Timings
	AllDeadPolicy AllDeadPolicy
	Presenter     Presenter
	Recorder      Recorder
	Eligibility   Eligibility
	Logger        Logger
}

// Session drives one game through its phases.
type Session struct {
	cfg       Config
	log       Logger
	collector *Collector

	mu        sync.Mutex
	reg       *Registry
	flags     SessionFlags
	countdown *Countdown
	quorum    *SkipQuorum
	resumed   chan struct{}
	winner    Winner
	started   bool
}

// NewSession validates cfg and builds an idle session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.GroupID == "" {
		return nil, &ConfigurationError{Reason: "missing group id"}
	}
	reg, err := NewRegistry(cfg.Players...)
	if err != nil {
		return nil, err
	}
	wolves, villagers := 0, 0
	for _, p := range reg.Players() {
		if p.Role.WinTeam() == TeamWerewolf {
			wolves++
		} else {
			villagers++
		}
	}
	if wolves == 0 || villagers == 0 {
		return nil, &ConfigurationError{Reason: "a game needs at least one werewolf and one villager"}
	}
	if cfg.Presenter == nil {
		cfg.Presenter = NopPresenter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	cfg.Timings = cfg.Timings.withDefaults()
	return &Session{
		cfg:       cfg,
		log:       cfg.Logger,
		collector: NewCollector(),
		reg:       reg,
		flags:     NewSessionFlags(),
	}, nil
}

func (s *Session) GroupID() string { return s.cfg.GroupID }

// Run plays the game to the end. It returns nil when a winner is declared
// and ctx.Err() when cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.started = true
	s.mu.Unlock()

	s.log.Printf("Session %s: starting with %d players", s.cfg.GroupID, len(s.cfg.Players))

	if err := s.discuss(ctx, PhaseFirstMorning, s.cfg.Timings.FirstDay); err != nil {
		return err
	}
	s.mu.Lock()
	s.flags.IsFirstDay = false
	s.mu.Unlock()

	for {
		w, err := s.night(ctx)
		if err != nil {
			return err
		}
		if w != NoWinner {
			return s.finish(ctx, w)
		}
		w, err = s.morning(ctx)
		if err != nil {
			return err
		}
		if w != NoWinner {
			return s.finish(ctx, w)
		}
	}
}

func (s *Session) enter(p Phase, d time.Duration, w *Window) {
	s.mu.Lock()
	s.flags.Phase = p
	if p == PhaseNight {
		s.flags.NightCount++
	}
	if w != nil {
		w.Roster = s.reg.Snapshot()
		w.Flags = s.flags
		s.collector.Open(*w)
	}
	info := PhaseInfo{GroupID: s.cfg.GroupID, Night: s.flags.NightCount, Duration: d}
	for _, pl := range s.reg.Living() {
		info.Living = append(info.Living, pl.ID)
	}
	s.mu.Unlock()

	s.cfg.Presenter.OnPhaseEnter(p, info)
}

// wait blocks until the countdown fires, early is closed, or ctx ends, and
// then until the session is not paused.
func (s *Session) wait(ctx context.Context, d time.Duration, early <-chan struct{}) error {
	cd := StartCountdown(d)
	s.mu.Lock()
	s.countdown = cd
	if s.flags.Paused {
		cd.Pause()
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.countdown = nil
		s.mu.Unlock()
		cd.Cancel()
	}()

	select {
	case <-cd.Done():
	case <-early:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.awaitResume(ctx)
}

func (s *Session) awaitResume(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.flags.Paused {
			s.mu.Unlock()
			return nil
		}
		ch := s.resumed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) discuss(ctx context.Context, p Phase, d time.Duration) error {
	s.mu.Lock()
	q := NewSkipQuorum(len(s.reg.Living()))
	s.quorum = q
	s.mu.Unlock()

	s.enter(p, d, nil)
	err := s.wait(ctx, d, q.Reached())

	s.mu.Lock()
	s.quorum = nil
	s.mu.Unlock()
	return err
}

func (s *Session) night(ctx context.Context) (Winner, error) {
	t := s.cfg.Timings
	s.enter(PhaseNight, t.Night, &Window{Kind: WindowNight, Fields: MainNightFields})
	if err := s.wait(ctx, t.Night, s.collector.Done()); err != nil {
		return NoWinner, err
	}
	s.collector.Close()

	if err := s.witchStage(ctx); err != nil {
		return NoWinner, err
	}
	if err := s.awaitResume(ctx); err != nil {
		return NoWinner, err
	}

	set := s.collector.NightIntents()
	s.mu.Lock()
	out, err := Resolve(set, s.reg, s.flags)
	if err != nil {
		s.mu.Unlock()
		return NoWinner, err
	}
	out.Flags.Paused = s.flags.Paused
	s.reg = out.Registry
	s.flags = out.Flags
	night := s.flags.NightCount
	winner := Evaluate(s.reg, s.flags, s.cfg.AllDeadPolicy)
	s.mu.Unlock()

	for _, ev := range out.Reveals {
		s.cfg.Presenter.OnReveal(ev)
	}
	if len(out.Wounded) > 0 {
		s.cfg.Presenter.OnWounded(out.Wounded)
	}
	s.cfg.Presenter.OnDeaths(out.Deaths)
	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.RecordNightLog(ctx, s.cfg.GroupID, night, out.Deaths); err != nil {
			s.log.Printf("Session %s: record night %d: %v", s.cfg.GroupID, night, err)
		}
	}
	return winner, nil
}

func (s *Session) witchStage(ctx context.Context) error {
	s.mu.Lock()
	witch, ok := s.reg.FindLiving(Witch)
	var witchID PlayerID
	if ok {
		witchID = witch.ID
	}
	flags := s.flags
	s.mu.Unlock()
	if !ok || !flags.WitchHasPower {
		return nil
	}

	targets := PotentialTargets(s.collector.NightIntents(), flags)
	s.collector.Continue(WitchFields...)
	s.cfg.Presenter.OnWitchPrompt(witchID, targets)
	err := s.wait(ctx, s.cfg.Timings.Witch, s.collector.Done())
	s.collector.Close()
	return err
}

func (s *Session) morning(ctx context.Context) (Winner, error) {
	t := s.cfg.Timings

	s.mu.Lock()
	turned, err := ApplyDawn(s.reg, &s.flags)
	winner := Evaluate(s.reg, s.flags, s.cfg.AllDeadPolicy)
	night := s.flags.NightCount
	s.mu.Unlock()
	if err != nil {
		return NoWinner, err
	}
	if turned != "" {
		s.cfg.Presenter.OnReveal(RevealEvent{Kind: RevealCurse, To: turned, Target: turned, Team: TeamWerewolf})
	}
	if winner != NoWinner {
		return winner, nil
	}

	if err := s.discuss(ctx, PhaseDiscussion, t.Discussion); err != nil {
		return NoWinner, err
	}

	pass := s.passMap(night)
	s.enter(PhaseVote, t.Vote, &Window{Kind: WindowVote, Fields: []Field{FieldBallot}, Passed: pass})
	if err := s.wait(ctx, t.Vote, s.collector.Done()); err != nil {
		return NoWinner, err
	}
	s.collector.Close()
	ballots := s.collector.Ballots()

	s.mu.Lock()
	res := Tally(ballots, s.reg, pass)
	var hit HitResult
	if res.Eliminated != "" {
		hit, err = s.reg.Hit(res.Eliminated)
		refreshDemon(s.reg, &s.flags)
	}
	winner = Evaluate(s.reg, s.flags, s.cfg.AllDeadPolicy)
	s.mu.Unlock()
	if err != nil {
		return NoWinner, err
	}

	s.cfg.Presenter.OnVoteResult(res)
	switch {
	case hit.Died():
		s.cfg.Presenter.OnDeaths([]PlayerID{hit.ID})
	case hit.Wounded():
		s.cfg.Presenter.OnWounded([]PlayerID{hit.ID})
	}
	return winner, nil
}

func (s *Session) passMap(night int) map[PlayerID]bool {
	if s.cfg.Eligibility != nil {
		if m := s.cfg.Eligibility.VotePassMap(night); m != nil {
			return m
		}
		return map[PlayerID]bool{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[PlayerID]bool)
	for _, p := range s.reg.Living() {
		m[p.ID] = true
	}
	return m
}

func (s *Session) finish(ctx context.Context, w Winner) error {
	s.mu.Lock()
	s.flags.Phase = PhaseEnded
	s.winner = w
	result := GameResult{
		GroupID: s.cfg.GroupID,
		Winner:  w,
		Nights:  s.flags.NightCount,
		Players: s.reg.Snapshot(),
	}
	s.mu.Unlock()

	s.log.Printf("Session %s: %s win after %d nights", s.cfg.GroupID, w, result.Nights)
	s.cfg.Presenter.OnWinner(w, result.Players)
	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.RecordGameResult(ctx, result); err != nil {
			s.log.Printf("Session %s: record result: %v", s.cfg.GroupID, err)
		}
	}
	return nil
}

// Submit forwards a player's intent to the open window.
func (s *Session) Submit(actor PlayerID, f Field, v Intent) error {
	return s.collector.Submit(actor, f, v)
}

// Pass tells the open window the player is done for this window.
func (s *Session) Pass(actor PlayerID) error {
	return s.collector.Pass(actor)
}

// VoteSkip records a vote to end the current discussion early.
func (s *Session) VoteSkip(actor PlayerID) (count, required int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quorum == nil {
		return 0, 0, reject(WrongPhase, "there is no discussion to skip")
	}
	if s.flags.Paused {
		return 0, 0, reject(SessionPaused, "")
	}
	p, ok := s.reg.Get(actor)
	if !ok || !p.IsAlive() {
		return 0, 0, reject(NotEligible, "only living players can vote to skip")
	}
	count, required = s.quorum.Vote(actor)
	return count, required, nil
}

// Pause freezes the running countdown and rejects submissions.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags.Paused {
		return ErrAlreadyPaused
	}
	s.flags.Paused = true
	s.resumed = make(chan struct{})
	if s.countdown != nil {
		s.countdown.Pause()
	}
	s.collector.SetPaused(true)
	return nil
}

// Resume continues the same window with the time that was left.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.flags.Paused {
		return ErrNotPaused
	}
	s.flags.Paused = false
	s.collector.SetPaused(false)
	if s.countdown != nil {
		s.countdown.Resume()
	}
	close(s.resumed)
	return nil
}

// View is a read-only copy of a session's state.
type View struct {
	GroupID   string
	Phase     Phase
	Night     int
	Paused    bool
	Winner    Winner
	Remaining time.Duration
	Players   []Player
	Flags     SessionFlags
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		GroupID: s.cfg.GroupID,
		Phase:   s.flags.Phase,
		Night:   s.flags.NightCount,
		Paused:  s.flags.Paused,
		Winner:  s.winner,
		Players: s.reg.Snapshot(),
		Flags:   s.flags,
	}
	if s.countdown != nil {
		v.Remaining = s.countdown.Remaining()
	}
	return v
}

// NopPresenter discards every event.
type NopPresenter struct{}

func (NopPresenter) OnPhaseEnter(Phase, PhaseInfo) {}
func (NopPresenter) OnWitchPrompt(PlayerID, []PlayerID) {}
func (NopPresenter) OnReveal(RevealEvent) {}
func (NopPresenter) OnDeaths([]PlayerID) {}
func (NopPresenter) OnWounded([]PlayerID) {}
func (NopPresenter) OnVoteResult(VoteResult) {}
func (NopPresenter) OnWinner(Winner, []Player) {}
