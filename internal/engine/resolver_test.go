package engine_test

import (
	"errors"
	"testing"
	"testing/quick"

	"dewolf/internal/engine"
)

func TestWerewolfKill(t *testing.T) {
	reg := mustRegistry(t, player("wolf", engine.Werewolf), player("vil", engine.Villager), player("seer", engine.Seer))
	out, err := engine.Resolve(newIntents().wolf("wolf", "vil").set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !sameIDs(out.Deaths, ids("vil")) {
		t.Fatalf("expected deaths [vil], got %v", out.Deaths)
	}
	if statusOf(t, out.Registry, "vil") != engine.Dead {
		t.Errorf("vil should be dead in the outcome registry")
	}
	if statusOf(t, reg, "vil") != engine.Alive {
		t.Errorf("input registry must not change")
	}
}

func TestGuardBlocksWerewolf(t *testing.T) {
	reg := mustRegistry(t, player("wolf", engine.Werewolf), player("vil", engine.Villager), player("guard", engine.Guard))
	set := newIntents().wolf("wolf", "vil").guard("guard", "vil").set
	out, err := engine.Resolve(set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(out.Deaths) != 0 {
		t.Fatalf("expected no deaths, got %v", out.Deaths)
	}
	if out.Flags.PreviousGuardTarget != "vil" {
		t.Errorf("expected previous guard target vil, got %q", out.Flags.PreviousGuardTarget)
	}
}

func TestToughGuyDoubleLife(t *testing.T) {
	reg := mustRegistry(t, player("wolf", engine.Werewolf), player("tough", engine.ToughGuy), player("vil", engine.Villager))
	flags := nightFlags(1)

	out, err := engine.Resolve(newIntents().wolf("wolf", "tough").set, reg, flags)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(out.Deaths) != 0 {
		t.Fatalf("first hit should not kill, got deaths %v", out.Deaths)
	}
	if !sameIDs(out.Wounded, ids("tough")) {
		t.Fatalf("expected wounded [tough], got %v", out.Wounded)
	}
	if s := statusOf(t, out.Registry, "tough"); s != engine.Wounded {
		t.Fatalf("expected Wounded, got %s", s)
	}

	flags = out.Flags
	flags.NightCount = 2
	out, err = engine.Resolve(newIntents().wolf("wolf", "tough").set, out.Registry, flags)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !sameIDs(out.Deaths, ids("tough")) {
		t.Fatalf("second hit should kill, got deaths %v", out.Deaths)
	}
}

func TestToughGuyDiesToTwoHitsInOneNight(t *testing.T) {
	reg := mustRegistry(t,
		player("wolf", engine.Werewolf), player("tough", engine.ToughGuy),
		player("witch", engine.Witch), player("vil", engine.Villager))
	set := newIntents().wolf("wolf", "tough").witchKill("witch", "tough").set
	out, err := engine.Resolve(set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !sameIDs(out.Deaths, ids("tough")) {
		t.Fatalf("expected deaths [tough], got %v", out.Deaths)
	}
}

func TestStatusNeverMovesBackward(t *testing.T) {
	roles := []engine.Role{engine.Villager, engine.ToughGuy, engine.Seer, engine.Werewolf}
	f := func(hits []uint8) bool {
		var players []engine.Player
		for i, r := range roles {
			players = append(players, player(string(rune('a'+i)), r))
		}
		reg, err := engine.NewRegistry(players...)
		if err != nil {
			return false
		}
		prev := map[engine.PlayerID]engine.Status{}
		for _, h := range hits {
			id := players[int(h)%len(players)].ID
			res, err := reg.Hit(id)
			if err != nil || res.To < res.From {
				return false
			}
			for _, p := range reg.Players() {
				if p.Status < prev[p.ID] {
					return false
				}
				prev[p.ID] = p.Status
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Error(err)
	}
}

func TestWitchSaveNullifiesBothSources(t *testing.T) {
	reg := mustRegistry(t,
		player("wolf", engine.Werewolf), player("hunter", engine.Hunter),
		player("witch", engine.Witch), player("vil", engine.Villager))
	set := newIntents().wolf("wolf", "vil").hunter("hunter", "vil").set

	targets := engine.PotentialTargets(set, nightFlags(1))
	if !sameIDs(targets, ids("vil")) {
		t.Fatalf("expected potential targets [vil], got %v", targets)
	}

	set = newIntents().wolf("wolf", "vil").hunter("hunter", "vil").witchSave("witch", "vil").set
	out, err := engine.Resolve(set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(out.Deaths) != 0 {
		t.Fatalf("expected no deaths, got %v", out.Deaths)
	}
	if out.Flags.WitchHasPower {
		t.Errorf("saving should consume the witch's power")
	}
	if out.Flags.HunterHasPower {
		t.Errorf("an attempted shot should consume the hunter's power")
	}
}

func TestWitchSaveOffTheKillListDoesNothing(t *testing.T) {
	reg := mustRegistry(t,
		player("wolf", engine.Werewolf), player("asn", engine.AssassinWerewolf),
		player("witch", engine.Witch), player("seer", engine.Seer), player("a", engine.Villager))
	set := newIntents().wolf("wolf", "a").assassin("asn", "seer", engine.Seer).witchSave("witch", "seer").set
	out, err := engine.Resolve(set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !sameIDs(out.Deaths, ids("a", "seer")) {
		t.Fatalf("expected deaths [a seer], got %v", out.Deaths)
	}
	if !out.Flags.WitchHasPower {
		t.Errorf("a save on someone nobody attacked should not spend the potion")
	}
}

func TestWitchKillAndStrikeOrder(t *testing.T) {
	reg := mustRegistry(t,
		player("wolf", engine.Werewolf), player("witch", engine.Witch),
		player("a", engine.Villager), player("b", engine.Villager), player("c", engine.Seer))
	set := newIntents().wolf("wolf", "a").witchKill("witch", "b").set
	out, err := engine.Resolve(set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !sameIDs(out.Deaths, ids("b", "a")) {
		t.Fatalf("expected witch victim first [b a], got %v", out.Deaths)
	}
}

func TestWitchKillBlockedByGuard(t *testing.T) {
	reg := mustRegistry(t,
		player("wolf", engine.Werewolf), player("witch", engine.Witch),
		player("guard", engine.Guard), player("vil", engine.Villager))
	set := newIntents().guard("guard", "vil").witchKill("witch", "vil").set
	out, err := engine.Resolve(set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(out.Deaths) != 0 {
		t.Fatalf("expected no deaths, got %v", out.Deaths)
	}
	if out.Flags.WitchHasPower {
		t.Errorf("a blocked kill still uses the potion")
	}
}

func TestHunterFlagConsumedWhenGuarded(t *testing.T) {
	reg := mustRegistry(t,
		player("wolf", engine.Werewolf), player("hunter", engine.Hunter),
		player("guard", engine.Guard), player("vil", engine.Villager))
	set := newIntents().hunter("hunter", "wolf").guard("guard", "wolf").set
	out, err := engine.Resolve(set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(out.Deaths) != 0 {
		t.Fatalf("expected no deaths, got %v", out.Deaths)
	}
	if out.Flags.HunterHasPower {
		t.Errorf("hunter power should be spent")
	}
	hunter, _ := out.Registry.Get("hunter")
	if !hunter.UsedPowers[engine.PowerHunterShot] {
		t.Errorf("hunter should have the shot recorded as used")
	}
}

func TestSeerReveals(t *testing.T) {
	reg := mustRegistry(t,
		player("seer", engine.Seer), player("wolf", engine.Werewolf),
		player("wolfman", engine.Wolfman), player("vil", engine.Villager))

	tests := []struct {
		target string
		want   engine.Team
	}{
		{"wolf", engine.TeamWerewolf},
		{"wolfman", engine.TeamVillager},
		{"vil", engine.TeamVillager},
	}
	for _, tt := range tests {
		out, err := engine.Resolve(newIntents().seer("seer", tt.target).set, reg, nightFlags(1))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(out.Reveals) != 1 {
			t.Fatalf("expected 1 reveal, got %d", len(out.Reveals))
		}
		ev := out.Reveals[0]
		if ev.To != "seer" || ev.Kind != engine.RevealSeer {
			t.Errorf("reveal should go to the seer, got %+v", ev)
		}
		if ev.Team != tt.want {
			t.Errorf("seer on %s: expected %s, got %s", tt.target, tt.want, ev.Team)
		}
	}
}

func TestIllusionistDelayedEffect(t *testing.T) {
	reg := mustRegistry(t,
		player("seer", engine.Seer), player("illu", engine.Illusionist),
		player("vil", engine.Villager), player("wolf", engine.Werewolf))

	out, err := engine.Resolve(newIntents().seer("seer", "illu").set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := out.Reveals[0].Team; got != engine.TeamVillager {
		t.Fatalf("night 1: illusionist should look like a villager, got %s", got)
	}
	if !out.Flags.IllusionistScannedLastNight || out.Flags.IllusionistEffectNight != 2 {
		t.Fatalf("night 1: expected effect scheduled for night 2, got %+v", out.Flags)
	}

	flags := out.Flags
	flags.NightCount = 2
	out, err = engine.Resolve(newIntents().seer("seer", "vil").set, out.Registry, flags)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := out.Reveals[0].Team; got != engine.TeamWerewolf {
		t.Fatalf("night 2: villager should look like a werewolf, got %s", got)
	}

	flags = out.Flags
	flags.NightCount = 3
	out, err = engine.Resolve(newIntents().seer("seer", "vil").set, out.Registry, flags)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := out.Reveals[0].Team; got != engine.TeamVillager {
		t.Fatalf("night 3: effect should be over, got %s", got)
	}
}

func TestDetectiveComparesNominalTeams(t *testing.T) {
	reg := mustRegistry(t,
		player("det", engine.Detective), player("wolf", engine.Werewolf),
		player("illu", engine.Illusionist), player("vil", engine.Villager))

	out, err := engine.Resolve(newIntents().detective("det", "wolf", "illu").set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(out.Reveals) != 1 || !out.Reveals[0].SameTeam {
		t.Fatalf("wolf and illusionist share a team, got %+v", out.Reveals)
	}
	if !out.Flags.DetectiveHasUsed {
		t.Errorf("detective power should be spent")
	}

	out, err = engine.Resolve(newIntents().detective("det", "wolf", "vil").set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Reveals[0].SameTeam {
		t.Errorf("wolf and villager are on different teams")
	}
}

func TestDemonCurseSuppressesKillAndTurnsAtDawn(t *testing.T) {
	reg := mustRegistry(t,
		player("demon", engine.DemonWerewolf), player("wolf", engine.Werewolf),
		player("v1", engine.Villager), player("witch", engine.Witch), player("v3", engine.Villager))
	flags := nightFlags(2)
	flags.DemonActivated = true

	set := newIntents().wolf("wolf", "v1").curse("demon", "witch").set
	out, err := engine.Resolve(set, reg, flags)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(out.Deaths) != 0 {
		t.Fatalf("the curse should suppress the pack's kill, got deaths %v", out.Deaths)
	}
	if out.Flags.DemonPendingCursedPlayer != "witch" || !out.Flags.DemonHasCursed || !out.Flags.DemonCursedThisNight {
		t.Fatalf("expected witch pending curse, got %+v", out.Flags)
	}

	flags = out.Flags
	turned, err := engine.ApplyDawn(out.Registry, &flags)
	if err != nil {
		t.Fatalf("ApplyDawn: %v", err)
	}
	if turned != "witch" {
		t.Fatalf("expected witch to turn, got %q", turned)
	}
	p, _ := out.Registry.Get("witch")
	if p.Role != engine.Werewolf {
		t.Errorf("expected Werewolf, got %s", p.Role)
	}
	if flags.DemonPendingCursedPlayer != "" {
		t.Errorf("pending curse should be cleared")
	}
	if flags.WitchHasPower {
		t.Errorf("a turned witch loses her potion")
	}
}

func TestCurseNeedsActivation(t *testing.T) {
	reg := mustRegistry(t, player("demon", engine.DemonWerewolf), player("v1", engine.Villager), player("v2", engine.Villager))
	set := newIntents().wolf("demon", "v1").curse("demon", "v2").set
	out, err := engine.Resolve(set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Flags.DemonHasCursed {
		t.Errorf("an inactive demon cannot curse")
	}
	if !sameIDs(out.Deaths, ids("v1")) {
		t.Errorf("expected the kill to go through, got %v", out.Deaths)
	}
}

func TestDemonActivatesWhenWolfDies(t *testing.T) {
	reg := mustRegistry(t,
		player("demon", engine.DemonWerewolf), player("wolf", engine.Werewolf),
		player("witch", engine.Witch), player("vil", engine.Villager))
	out, err := engine.Resolve(newIntents().witchKill("witch", "wolf").set, reg, nightFlags(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !out.Flags.DemonActivated {
		t.Errorf("demon should wake after a werewolf dies")
	}
}

func TestDawnOnDeadCursedPlayer(t *testing.T) {
	reg := mustRegistry(t, player("wolf", engine.Werewolf), player("vil", engine.Villager))
	if _, err := reg.Hit("vil"); err != nil {
		t.Fatalf("Hit: %v", err)
	}
	flags := nightFlags(1)
	flags.DemonPendingCursedPlayer = "vil"
	turned, err := engine.ApplyDawn(reg, &flags)
	if err != nil {
		t.Fatalf("ApplyDawn: %v", err)
	}
	if turned != "" || flags.DemonPendingCursedPlayer != "" {
		t.Errorf("dead cursed player should only clear the curse, got turned=%q pending=%q", turned, flags.DemonPendingCursedPlayer)
	}
	p, _ := reg.Get("vil")
	if p.Role != engine.Villager {
		t.Errorf("dead player's role should not change, got %s", p.Role)
	}
}

func TestExplorer(t *testing.T) {
	roster := []engine.Player{
		player("exp", engine.Explorer), player("wolf", engine.Werewolf),
		player("illu", engine.Illusionist), player("vil", engine.Villager), player("guard", engine.Guard),
		player("witch", engine.Witch), player("hunter", engine.Hunter),
	}
	tests := []struct {
		name   string
		night  int
		set    engine.NightIntentSet
		deaths []engine.PlayerID
		canAct bool
	}{
		{"first night does nothing", 1, newIntents().explorer("exp", "wolf").set, nil, true},
		{"no choice loses power", 2, newIntents().set, nil, false},
		{"finds a werewolf", 2, newIntents().explorer("exp", "wolf").set, ids("wolf"), true},
		{"guarded werewolf survives", 2, newIntents().explorer("exp", "wolf").guard("guard", "wolf").set, nil, true},
		{"illusionist counts as villager", 2, newIntents().explorer("exp", "illu").set, ids("exp"), true},
		{"wrong guess while guarded", 2, newIntents().explorer("exp", "vil").guard("guard", "exp").set, nil, true},
		{"target already killed", 2, newIntents().wolf("wolf", "vil").explorer("exp", "vil").set, ids("vil"), true},
		{"werewolf already shot", 2, newIntents().hunter("hunter", "wolf").explorer("exp", "wolf").set, ids("wolf"), true},
		{"witch saved the werewolf", 2, newIntents().hunter("hunter", "wolf").witchSave("witch", "wolf").explorer("exp", "wolf").set, nil, true},
		{"witch saved the explorer", 2, newIntents().wolf("wolf", "exp").witchSave("witch", "exp").explorer("exp", "vil").set, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := mustRegistry(t, roster...)
			out, err := engine.Resolve(tt.set, reg, nightFlags(tt.night))
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !sameIDs(out.Deaths, tt.deaths) {
				t.Errorf("expected deaths %v, got %v", tt.deaths, out.Deaths)
			}
			if out.Flags.ExplorerCanAct != tt.canAct {
				t.Errorf("expected ExplorerCanAct=%v, got %v", tt.canAct, out.Flags.ExplorerCanAct)
			}
		})
	}
}

func TestAssassin(t *testing.T) {
	roster := []engine.Player{
		player("asn", engine.AssassinWerewolf), player("seer", engine.Seer),
		player("guard", engine.Guard), player("vil", engine.Villager),
		player("witch", engine.Witch), player("hunter", engine.Hunter),
	}
	tests := []struct {
		name   string
		set    engine.NightIntentSet
		deaths []engine.PlayerID
	}{
		{"correct guess kills", newIntents().assassin("asn", "seer", engine.Seer).set, ids("seer")},
		{"wrong guess backfires", newIntents().assassin("asn", "seer", engine.Witch).set, ids("asn")},
		{"correct guess on guarded target", newIntents().assassin("asn", "seer", engine.Seer).guard("guard", "seer").set, nil},
		{"wrong guess on a target already killed", newIntents().wolf("asn", "seer").assassin("asn", "seer", engine.Guard).set, ids("seer")},
		{"correct guess on a target already killed", newIntents().hunter("hunter", "seer").assassin("asn", "seer", engine.Seer).set, ids("seer")},
		{"witch saved the target", newIntents().hunter("hunter", "seer").witchSave("witch", "seer").assassin("asn", "seer", engine.Seer).set, nil},
		{"witch saved the assassin", newIntents().hunter("hunter", "asn").witchSave("witch", "asn").assassin("asn", "seer", engine.Guard).set, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := mustRegistry(t, roster...)
			out, err := engine.Resolve(tt.set, reg, nightFlags(1))
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !sameIDs(out.Deaths, tt.deaths) {
				t.Errorf("expected deaths %v, got %v", tt.deaths, out.Deaths)
			}
			if !out.Flags.AssassinHasActed {
				t.Errorf("assassin power should be spent")
			}
		})
	}
}

func TestResolveUnknownPlayer(t *testing.T) {
	reg := mustRegistry(t, player("wolf", engine.Werewolf), player("vil", engine.Villager))
	_, err := engine.Resolve(newIntents().wolf("wolf", "ghost").set, reg, nightFlags(1))
	var cfgErr *engine.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
