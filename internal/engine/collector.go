package engine

import "sync"

// WindowKind distinguishes night windows from the day vote.
type WindowKind int

const (
	WindowNight WindowKind = iota + 1
	WindowVote
)

// Window describes what a collection window accepts. Roster and Flags are
// snapshots taken when the window opens; the collector never reads the live
// registry.
type Window struct {
	Kind   WindowKind
	Fields []Field
	Roster []Player
	Flags  SessionFlags
	// Passed lists challenge roles allowed to vote. Ignored at night.
	Passed map[PlayerID]bool
}

// Collector accepts at most one intent per field during an open window.
// Submissions may arrive from any goroutine.
type Collector struct {
	mu      sync.Mutex
	open    bool
	paused  bool
	kind    WindowKind
	fields  map[Field]bool
	roster  map[PlayerID]Player
	flags   SessionFlags
	passed  map[PlayerID]bool
	night   NightIntentSet
	ballots Ballots

	// saveable holds the players the Witch may save: tonight's victims as
	// they stood when her stage opened.
	saveable map[PlayerID]bool

	// pending holds, per actor, the fields they could still write. The
	// window completes early once every actor is settled.
	pending map[PlayerID]map[Field]bool
	done    chan struct{}
	settled bool
}

func NewCollector() *Collector {
	c := &Collector{done: make(chan struct{})}
	close(c.done)
	c.settled = true
	return c
}

// Open starts a fresh window, discarding anything collected before.
func (c *Collector) Open(w Window) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.kind = w.Kind
	c.roster = make(map[PlayerID]Player, len(w.Roster))
	for _, p := range w.Roster {
		c.roster[p.ID] = p
	}
	c.flags = w.Flags
	c.passed = w.Passed
	c.night = NightIntentSet{Actors: make(map[Field]PlayerID)}
	c.ballots = make(Ballots)
	c.reopen(w.Fields)
}

// Continue reopens a closed night window for a subset of fields, keeping
// what was already written. The Witch stage uses this.
func (c *Collector) Continue(fields ...Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reopen(fields)
}

func (c *Collector) reopen(fields []Field) {
	c.fields = make(map[Field]bool, len(fields))
	for _, f := range fields {
		c.fields[f] = true
	}
	c.saveable = nil
	if c.fields[FieldWitchSave] {
		c.saveable = make(map[PlayerID]bool)
		for _, id := range PotentialTargets(c.night, c.flags) {
			c.saveable[id] = true
		}
	}
	c.open = true
	c.done = make(chan struct{})
	c.settled = false
	c.pending = make(map[PlayerID]map[Field]bool)
	for id, p := range c.roster {
		if p.Status == Dead {
			continue
		}
		for f := range c.fields {
			if c.alreadyWritten(id, f) || c.eligible(p, f) != nil {
				continue
			}
			if c.pending[id] == nil {
				c.pending[id] = make(map[Field]bool)
			}
			c.pending[id][f] = true
		}
	}
	c.checkSettled()
}

func (c *Collector) alreadyWritten(actor PlayerID, f Field) bool {
	if f == FieldBallot {
		_, ok := c.ballots[actor]
		return ok
	}
	return c.night.written(f)
}

// Close freezes the window. Calling it again does nothing.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

func (c *Collector) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// Done is closed once every eligible actor has submitted or passed.
func (c *Collector) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Collector) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// NightIntents returns a copy of what was collected at night.
func (c *Collector) NightIntents() NightIntentSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.night.clone()
}

// Ballots returns a copy of the day ballots.
func (c *Collector) Ballots() Ballots {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ballots.clone()
}

// Pass marks actor as finished without writing anything.
func (c *Collector) Pass(actor PlayerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return reject(WrongPhase, "no window is open")
	}
	if c.paused {
		return reject(SessionPaused, "")
	}
	if _, ok := c.pending[actor]; !ok {
		return reject(NotEligible, "nothing to pass")
	}
	delete(c.pending, actor)
	c.checkSettled()
	return nil
}

// Submit records one intent or returns an *IneligibleError.
func (c *Collector) Submit(actor PlayerID, f Field, v Intent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return reject(WrongPhase, "no window is open")
	}
	if c.paused {
		return reject(SessionPaused, "")
	}
	if !c.fields[f] {
		return reject(WrongPhase, f.String()+" is not accepted now")
	}
	p, ok := c.roster[actor]
	if !ok || p.Status == Dead {
		return reject(NotEligible, "only living players can act")
	}

	if f == FieldBallot {
		return c.submitBallot(p, v)
	}

	if err := c.capable(p, f); err != nil {
		return err
	}
	if c.night.written(f) {
		return reject(AlreadyActed, "")
	}
	if (f == FieldWitchSave && c.night.written(FieldWitchKill)) ||
		(f == FieldWitchKill && c.night.written(FieldWitchSave)) {
		return reject(AlreadyActed, "the Witch may save or kill, not both")
	}
	if err := c.checkTarget(p, f, v); err != nil {
		return err
	}

	c.night.set(f, actor, v)
	c.settle(actor, f)
	return nil
}

func (c *Collector) eligible(p Player, f Field) error {
	if f != FieldBallot {
		return c.capable(p, f)
	}
	if p.Role.NeedsChallenge() && !c.passed[p.ID] {
		return reject(NotEligible, "solve the night challenge to earn a vote")
	}
	return nil
}

func (c *Collector) submitBallot(p Player, v Intent) error {
	if err := c.eligible(p, FieldBallot); err != nil {
		return err
	}
	if _, ok := c.ballots[p.ID]; ok {
		return reject(AlreadyActed, "")
	}
	if v.Skip {
		c.ballots[p.ID] = Ballot{Skip: true}
	} else {
		if v.Target == p.ID || !c.living(v.Target) {
			return reject(InvalidTarget, "")
		}
		c.ballots[p.ID] = Ballot{Target: v.Target}
	}
	c.settle(p.ID, FieldBallot)
	return nil
}

// capable checks role and power for f, ignoring the target.
func (c *Collector) capable(p Player, f Field) error {
	fl := c.flags
	need := func(r Role) error {
		if p.Role != r {
			return reject(NotEligible, "")
		}
		return nil
	}

	switch f {
	case FieldWerewolfTarget:
		if !p.Role.InPack() {
			return reject(NotEligible, "")
		}
	case FieldGuardTarget:
		return need(Guard)
	case FieldSeerTarget:
		return need(Seer)
	case FieldWitchSave, FieldWitchKill:
		if err := need(Witch); err != nil {
			return err
		}
		if !fl.WitchHasPower {
			return reject(PowerConsumed, "")
		}
	case FieldHunterTarget:
		if err := need(Hunter); err != nil {
			return err
		}
		if !fl.HunterHasPower {
			return reject(PowerConsumed, "")
		}
	case FieldExplorerTarget:
		if err := need(Explorer); err != nil {
			return err
		}
		if fl.NightCount < 2 {
			return reject(WrongPhase, "the Explorer sets out from the second night")
		}
		if !fl.ExplorerCanAct {
			return reject(PowerConsumed, "")
		}
	case FieldDetectivePair:
		if err := need(Detective); err != nil {
			return err
		}
		if fl.DetectiveHasUsed {
			return reject(PowerConsumed, "")
		}
	case FieldAssassinGuess:
		if err := need(AssassinWerewolf); err != nil {
			return err
		}
		if fl.AssassinHasActed {
			return reject(PowerConsumed, "")
		}
	case FieldDemonCurse:
		if err := need(DemonWerewolf); err != nil {
			return err
		}
		if !fl.DemonActivated {
			return reject(NotEligible, "the curse wakes once a werewolf has fallen")
		}
		if fl.DemonHasCursed {
			return reject(PowerConsumed, "")
		}
	default:
		return reject(WrongPhase, "")
	}
	return nil
}

func (c *Collector) checkTarget(p Player, f Field, v Intent) error {
	t := v.Target
	if !c.living(t) {
		return reject(InvalidTarget, "")
	}
	switch f {
	case FieldWerewolfTarget, FieldWitchKill:
		return nil
	case FieldWitchSave:
		if !c.saveable[t] {
			return reject(InvalidTarget, "the witch can only save tonight's victims")
		}
		return nil
	case FieldGuardTarget:
		if t == c.flags.PreviousGuardTarget {
			return reject(InvalidTarget, "cannot guard the same player two nights in a row")
		}
		return nil
	case FieldDetectivePair:
		s := v.Second
		if !c.living(s) || s == t || t == p.ID || s == p.ID {
			return reject(InvalidTarget, "pick two different players other than yourself")
		}
		return nil
	case FieldAssassinGuess:
		if _, ok := roleSpecs[v.Role]; !ok || v.Role == Villager {
			return reject(InvalidTarget, "villagers cannot be assassinated")
		}
	}
	if t == p.ID {
		return reject(InvalidTarget, "cannot target yourself")
	}
	return nil
}

func (c *Collector) living(id PlayerID) bool {
	p, ok := c.roster[id]
	return ok && p.Status != Dead
}

func (c *Collector) settle(actor PlayerID, f Field) {
	drop := func(id PlayerID, fs ...Field) {
		for _, x := range fs {
			delete(c.pending[id], x)
		}
		if len(c.pending[id]) == 0 {
			delete(c.pending, id)
		}
	}
	switch f {
	case FieldWerewolfTarget:
		for id, p := range c.roster {
			if p.Role.InPack() {
				drop(id, f)
			}
		}
	case FieldWitchSave, FieldWitchKill:
		drop(actor, WitchFields...)
	default:
		drop(actor, f)
	}
	c.checkSettled()
}

func (c *Collector) checkSettled() {
	if c.settled || len(c.pending) > 0 {
		return
	}
	c.settled = true
	close(c.done)
}
