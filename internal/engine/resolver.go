package engine

import "fmt"

// RevealKind says what private information a reveal carries.
type RevealKind int

const (
	RevealSeer RevealKind = iota + 1
	RevealDetective
	RevealCurse
)

// RevealEvent is private information for one player.
type RevealEvent struct {
	Kind   RevealKind
	To     PlayerID
	Target PlayerID
	Second PlayerID
	// Team is what the Seer was shown.
	Team Team
	// SameTeam is the Detective's answer.
	SameTeam bool
}

// NightOutcome is the result of one resolution. Registry and Flags are
// working copies; the caller commits them together.
type NightOutcome struct {
	Deaths   []PlayerID
	Wounded  []PlayerID
	Reveals  []RevealEvent
	Registry *Registry
	Flags    SessionFlags
}

type nightState struct {
	set   NightIntentSet
	reg   *Registry
	flags SessionFlags

	guard      PlayerID
	saved      PlayerID
	wolfKill   PlayerID
	hunterKill PlayerID
	witchKill  PlayerID

	deaths  []PlayerID
	wounded []PlayerID
	reveals []RevealEvent
	err     error
}

type nightHandler func(*nightState)

// nightHandlers holds each role's part of the resolution.
var nightHandlers = map[Role]nightHandler{
	Illusionist:      (*nightState).scheduleIllusion,
	Seer:             (*nightState).revealSeer,
	Detective:        (*nightState).revealDetective,
	Guard:            (*nightState).lockGuard,
	DemonWerewolf:    (*nightState).curse,
	Werewolf:         (*nightState).packKill,
	Hunter:           (*nightState).hunterShot,
	Witch:            (*nightState).brew,
	Explorer:         (*nightState).explore,
	AssassinWerewolf: (*nightState).assassinate,
}

// Handlers before the strike only decide who is hit; those after react to
// the strike's results.
var (
	preStrikeOrder  = []Role{Illusionist, Seer, Detective, Guard, DemonWerewolf, Werewolf, Hunter, Witch}
	postStrikeOrder = []Role{Explorer, AssassinWerewolf}
)

// Resolve turns a closed intent set into deaths and reveals. The inputs are
// not modified.
func Resolve(set NightIntentSet, reg *Registry, flags SessionFlags) (NightOutcome, error) {
	if err := checkReferences(set, reg); err != nil {
		return NightOutcome{}, err
	}
	st := &nightState{set: set.clone(), reg: reg.Clone(), flags: flags}
	st.flags.DemonCursedThisNight = false

	for _, r := range preStrikeOrder {
		nightHandlers[r](st)
	}
	st.strike()
	for _, r := range postStrikeOrder {
		nightHandlers[r](st)
	}
	if st.err != nil {
		return NightOutcome{}, st.err
	}

	st.flags.PreviousGuardTarget = st.guard
	refreshDemon(st.reg, &st.flags)

	return NightOutcome{
		Deaths:   st.deaths,
		Wounded:  st.wounded,
		Reveals:  st.reveals,
		Registry: st.reg,
		Flags:    st.flags,
	}, nil
}

func checkReferences(set NightIntentSet, reg *Registry) error {
	ids := []PlayerID{
		set.WerewolfTarget, set.GuardTarget, set.WitchSave, set.WitchKill,
		set.HunterTarget, set.ExplorerTarget, set.DetectivePair[0], set.DetectivePair[1],
		set.AssassinGuess.Target, set.DemonCurseTarget, set.SeerTarget,
	}
	for _, a := range set.Actors {
		ids = append(ids, a)
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := reg.Get(id); !ok {
			return &ConfigurationError{Reason: fmt.Sprintf("night intent names unknown player %s", id)}
		}
	}
	return nil
}

func (st *nightState) role(id PlayerID) Role {
	p, _ := st.reg.Get(id)
	return p.Role
}

func (st *nightState) alive(id PlayerID) bool {
	p, ok := st.reg.Get(id)
	return ok && p.IsAlive()
}

func (st *nightState) usePower(actor PlayerID, pw Power) {
	if p, ok := st.reg.Get(actor); ok {
		p.usePower(pw)
	}
}

func (st *nightState) protected(id PlayerID) bool {
	return id != "" && (id == st.guard || id == st.saved)
}

func (st *nightState) hit(id PlayerID) {
	if id == "" {
		return
	}
	res, err := st.reg.Hit(id)
	if err != nil {
		st.err = err
		return
	}
	switch {
	case res.Died():
		for _, d := range st.deaths {
			if d == id {
				return
			}
		}
		st.deaths = append(st.deaths, id)
	case res.Wounded():
		st.wounded = append(st.wounded, id)
	}
}

func (st *nightState) scheduleIllusion() {
	f := &st.flags
	f.IllusionistEffectActiveThisNight = f.IllusionistScannedLastNight && f.NightCount == f.IllusionistEffectNight
	f.IllusionistScannedLastNight = false
}

func (st *nightState) revealSeer() {
	target := st.set.SeerTarget
	if target == "" {
		return
	}
	active := st.flags.IllusionistEffectActiveThisNight
	var shown Team
	switch r := st.role(target); r {
	case Wolfman:
		shown = TeamVillager
	case Illusionist:
		shown = TeamVillager
		if active {
			shown = TeamWerewolf
		}
		st.flags.IllusionistScannedLastNight = true
		st.flags.IllusionistEffectNight = st.flags.NightCount + 1
	default:
		shown = r.Team()
		if active {
			shown = flipTeam(shown)
		}
	}
	st.reveals = append(st.reveals, RevealEvent{
		Kind:   RevealSeer,
		To:     st.set.Actor(FieldSeerTarget),
		Target: target,
		Team:   shown,
	})
}

func flipTeam(t Team) Team {
	if t == TeamWerewolf {
		return TeamVillager
	}
	return TeamWerewolf
}

func (st *nightState) revealDetective() {
	a, b := st.set.DetectivePair[0], st.set.DetectivePair[1]
	if a == "" || b == "" || st.flags.DetectiveHasUsed {
		return
	}
	actor := st.set.Actor(FieldDetectivePair)
	st.flags.DetectiveHasUsed = true
	st.usePower(actor, PowerDetectiveProbe)
	st.reveals = append(st.reveals, RevealEvent{
		Kind:     RevealDetective,
		To:       actor,
		Target:   a,
		Second:   b,
		SameTeam: st.role(a).Team() == st.role(b).Team(),
	})
}

func (st *nightState) lockGuard() {
	st.guard = st.set.GuardTarget
}

// curse runs before any kill so the curse suppresses the pack's kill the
// same night.
func (st *nightState) curse() {
	f := &st.flags
	target := st.set.DemonCurseTarget
	if target == "" || !f.DemonActivated || f.DemonHasCursed {
		return
	}
	f.DemonHasCursed = true
	f.DemonPendingCursedPlayer = target
	f.DemonCursedThisNight = true
	st.usePower(st.set.Actor(FieldDemonCurse), PowerDemonCurse)
}

func (st *nightState) packKill() {
	t := st.set.WerewolfTarget
	if t == "" || st.flags.DemonCursedThisNight || t == st.guard {
		return
	}
	st.wolfKill = t
}

func (st *nightState) hunterShot() {
	t := st.set.HunterTarget
	if t == "" {
		return
	}
	had := st.flags.HunterHasPower
	st.flags.HunterHasPower = false
	if !had {
		return
	}
	st.usePower(st.set.Actor(FieldHunterTarget), PowerHunterShot)
	if t != st.guard {
		st.hunterKill = t
	}
}

func (st *nightState) brew() {
	save, kill := st.set.WitchSave, st.set.WitchKill
	// A save only lands on someone the kills fall on tonight.
	if save != "" && save != st.wolfKill && save != st.hunterKill {
		save = ""
	}
	if save == "" && kill == "" {
		return
	}
	if !st.flags.WitchHasPower {
		return
	}
	st.flags.WitchHasPower = false
	if save != "" {
		st.usePower(st.set.Actor(FieldWitchSave), PowerWitchPotion)
		st.saved = save
		if st.wolfKill == save {
			st.wolfKill = ""
		}
		if st.hunterKill == save {
			st.hunterKill = ""
		}
		return
	}
	st.usePower(st.set.Actor(FieldWitchKill), PowerWitchPotion)
	if kill != st.guard {
		st.witchKill = kill
	}
}

// strike applies the night's kills, Witch first.
func (st *nightState) strike() {
	st.hit(st.witchKill)
	st.hit(st.wolfKill)
	st.hit(st.hunterKill)
}

func (st *nightState) explore() {
	f := &st.flags
	if f.NightCount < 2 || !f.ExplorerCanAct {
		return
	}
	explorer, ok := st.reg.FindLiving(Explorer)
	if !ok {
		return
	}
	target := st.set.ExplorerTarget
	if target == "" {
		f.ExplorerCanAct = false
		return
	}
	if !st.alive(target) {
		return
	}
	if st.role(target).WinTeam() == TeamWerewolf {
		if !st.protected(target) {
			st.hit(target)
		}
		return
	}
	if !st.protected(explorer.ID) {
		st.hit(explorer.ID)
	}
}

func (st *nightState) assassinate() {
	guess := st.set.AssassinGuess
	if st.flags.AssassinHasActed || guess.Target == "" {
		return
	}
	actor := st.set.Actor(FieldAssassinGuess)
	st.flags.AssassinHasActed = true
	st.usePower(actor, PowerAssassination)
	if !st.alive(guess.Target) {
		return
	}
	if st.role(guess.Target) == guess.Role {
		if !st.protected(guess.Target) {
			st.hit(guess.Target)
		}
		return
	}
	if actor != "" && !st.protected(actor) {
		st.hit(actor)
	}
}

// PotentialTargets lists who the night's kills currently fall on, after the
// Guard. The Witch is shown this list.
func PotentialTargets(set NightIntentSet, flags SessionFlags) []PlayerID {
	cursed := set.DemonCurseTarget != "" && flags.DemonActivated && !flags.DemonHasCursed
	var out []PlayerID
	if t := set.WerewolfTarget; t != "" && !cursed && t != set.GuardTarget {
		out = append(out, t)
	}
	if t := set.HunterTarget; t != "" && flags.HunterHasPower && t != set.GuardTarget {
		if len(out) == 0 || out[0] != t {
			out = append(out, t)
		}
	}
	return out
}

// ApplyDawn turns a pending cursed player into a Werewolf. Powers tied to
// the lost role are stripped. The pending curse is always cleared. It
// returns the transformed player, if any.
func ApplyDawn(reg *Registry, flags *SessionFlags) (PlayerID, error) {
	id := flags.DemonPendingCursedPlayer
	if id == "" {
		return "", nil
	}
	flags.DemonPendingCursedPlayer = ""
	p, ok := reg.Get(id)
	if !ok {
		return "", &ConfigurationError{Reason: fmt.Sprintf("cursed player %s is not registered", id)}
	}
	if !p.IsAlive() {
		return "", nil
	}
	switch p.Role {
	case Witch:
		flags.WitchHasPower = false
	case Hunter:
		flags.HunterHasPower = false
	case Explorer:
		flags.ExplorerCanAct = false
	case Detective:
		flags.DetectiveHasUsed = true
	}
	if err := reg.SetRole(id, Werewolf); err != nil {
		return "", err
	}
	return id, nil
}
