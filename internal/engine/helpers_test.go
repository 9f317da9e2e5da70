package engine_test

import (
	"testing"

	"dewolf/internal/engine"
)

func player(id string, role engine.Role) engine.Player {
	return engine.Player{ID: engine.PlayerID(id), Name: id, Role: role}
}

func mustRegistry(t *testing.T, players ...engine.Player) *engine.Registry {
	t.Helper()
	reg, err := engine.NewRegistry(players...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func nightFlags(night int) engine.SessionFlags {
	f := engine.NewSessionFlags()
	f.NightCount = night
	f.IsFirstDay = false
	f.Phase = engine.PhaseNight
	return f
}

func statusOf(t *testing.T, reg *engine.Registry, id string) engine.Status {
	t.Helper()
	p, ok := reg.Get(engine.PlayerID(id))
	if !ok {
		t.Fatalf("player %s not in registry", id)
	}
	return p.Status
}

// intents builds a set with actors recorded.
type intents struct {
	set engine.NightIntentSet
}

func newIntents() *intents {
	return &intents{set: engine.NightIntentSet{Actors: map[engine.Field]engine.PlayerID{}}}
}

func (in *intents) wolf(actor, target string) *intents {
	in.set.WerewolfTarget = engine.PlayerID(target)
	in.set.Actors[engine.FieldWerewolfTarget] = engine.PlayerID(actor)
	return in
}

func (in *intents) guard(actor, target string) *intents {
	in.set.GuardTarget = engine.PlayerID(target)
	in.set.Actors[engine.FieldGuardTarget] = engine.PlayerID(actor)
	return in
}

func (in *intents) seer(actor, target string) *intents {
	in.set.SeerTarget = engine.PlayerID(target)
	in.set.Actors[engine.FieldSeerTarget] = engine.PlayerID(actor)
	return in
}

func (in *intents) witchSave(actor, target string) *intents {
	in.set.WitchSave = engine.PlayerID(target)
	in.set.Actors[engine.FieldWitchSave] = engine.PlayerID(actor)
	return in
}

func (in *intents) witchKill(actor, target string) *intents {
	in.set.WitchKill = engine.PlayerID(target)
	in.set.Actors[engine.FieldWitchKill] = engine.PlayerID(actor)
	return in
}

func (in *intents) hunter(actor, target string) *intents {
	in.set.HunterTarget = engine.PlayerID(target)
	in.set.Actors[engine.FieldHunterTarget] = engine.PlayerID(actor)
	return in
}

func (in *intents) explorer(actor, target string) *intents {
	in.set.ExplorerTarget = engine.PlayerID(target)
	in.set.Actors[engine.FieldExplorerTarget] = engine.PlayerID(actor)
	return in
}

func (in *intents) detective(actor, a, b string) *intents {
	in.set.DetectivePair = [2]engine.PlayerID{engine.PlayerID(a), engine.PlayerID(b)}
	in.set.Actors[engine.FieldDetectivePair] = engine.PlayerID(actor)
	return in
}

func (in *intents) assassin(actor, target string, guess engine.Role) *intents {
	in.set.AssassinGuess = engine.AssassinGuess{Target: engine.PlayerID(target), Role: guess}
	in.set.Actors[engine.FieldAssassinGuess] = engine.PlayerID(actor)
	return in
}

func (in *intents) curse(actor, target string) *intents {
	in.set.DemonCurseTarget = engine.PlayerID(target)
	in.set.Actors[engine.FieldDemonCurse] = engine.PlayerID(actor)
	return in
}

func ids(list ...string) []engine.PlayerID {
	out := make([]engine.PlayerID, len(list))
	for i, s := range list {
		out[i] = engine.PlayerID(s)
	}
	return out
}

func sameIDs(a, b []engine.PlayerID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
