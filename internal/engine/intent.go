package engine

// Field is one write-once slot in a collection window.
type Field int

const (
	FieldWerewolfTarget Field = iota + 1
	FieldGuardTarget
	FieldWitchSave
	FieldWitchKill
	FieldHunterTarget
	FieldExplorerTarget
	FieldDetectivePair
	FieldAssassinGuess
	FieldDemonCurse
	FieldSeerTarget
	FieldBallot
)

var fieldNames = map[Field]string{
	FieldWerewolfTarget: "werewolf_target",
	FieldGuardTarget:    "guard_target",
	FieldWitchSave:      "witch_save",
	FieldWitchKill:      "witch_kill",
	FieldHunterTarget:   "hunter_target",
	FieldExplorerTarget: "explorer_target",
	FieldDetectivePair:  "detective_pair",
	FieldAssassinGuess:  "assassin_guess",
	FieldDemonCurse:     "demon_curse",
	FieldSeerTarget:     "seer_target",
	FieldBallot:         "ballot",
}

func (f Field) String() string {
	if s, ok := fieldNames[f]; ok {
		return s
	}
	return "unknown"
}

// ParseField maps a wire name back to a Field.
func ParseField(name string) (Field, bool) {
	for f, s := range fieldNames {
		if s == name {
			return f, true
		}
	}
	return 0, false
}

// MainNightFields are open during the first night stage. The Witch acts in a
// later stage once the kills are known.
var MainNightFields = []Field{
	FieldWerewolfTarget,
	FieldGuardTarget,
	FieldHunterTarget,
	FieldExplorerTarget,
	FieldDetectivePair,
	FieldAssassinGuess,
	FieldDemonCurse,
	FieldSeerTarget,
}

var WitchFields = []Field{FieldWitchSave, FieldWitchKill}

// Intent is the value submitted for a field. Only the parts the field uses
// are read: Target for most, Second for the Detective, Role for the
// Assassin, Skip for ballots.
type Intent struct {
	Target PlayerID
	Second PlayerID
	Role   Role
	Skip   bool
}

// AssassinGuess names a target and the role the Assassin believes it holds.
type AssassinGuess struct {
	Target PlayerID
	Role   Role
}

// NightIntentSet is everything submitted during one night. Empty fields mean
// no action.
type NightIntentSet struct {
	WerewolfTarget   PlayerID
	GuardTarget      PlayerID
	WitchSave        PlayerID
	WitchKill        PlayerID
	HunterTarget     PlayerID
	ExplorerTarget   PlayerID
	DetectivePair    [2]PlayerID
	AssassinGuess    AssassinGuess
	DemonCurseTarget PlayerID
	SeerTarget       PlayerID

	// Actors records who wrote each field.
	Actors map[Field]PlayerID
}

// Actor returns who wrote f, or "" if nobody did.
func (s NightIntentSet) Actor(f Field) PlayerID {
	return s.Actors[f]
}

func (s NightIntentSet) written(f Field) bool {
	_, ok := s.Actors[f]
	return ok
}

func (s NightIntentSet) clone() NightIntentSet {
	c := s
	c.Actors = make(map[Field]PlayerID, len(s.Actors))
	for k, v := range s.Actors {
		c.Actors[k] = v
	}
	return c
}

func (s *NightIntentSet) set(f Field, actor PlayerID, v Intent) {
	switch f {
	case FieldWerewolfTarget:
		s.WerewolfTarget = v.Target
	case FieldGuardTarget:
		s.GuardTarget = v.Target
	case FieldWitchSave:
		s.WitchSave = v.Target
	case FieldWitchKill:
		s.WitchKill = v.Target
	case FieldHunterTarget:
		s.HunterTarget = v.Target
	case FieldExplorerTarget:
		s.ExplorerTarget = v.Target
	case FieldDetectivePair:
		s.DetectivePair = [2]PlayerID{v.Target, v.Second}
	case FieldAssassinGuess:
		s.AssassinGuess = AssassinGuess{Target: v.Target, Role: v.Role}
	case FieldDemonCurse:
		s.DemonCurseTarget = v.Target
	case FieldSeerTarget:
		s.SeerTarget = v.Target
	}
	if s.Actors == nil {
		s.Actors = make(map[Field]PlayerID)
	}
	s.Actors[f] = actor
}

// Ballot is one day vote. Skip votes carry no target.
type Ballot struct {
	Target PlayerID
	Skip   bool
}

// Ballots maps voter to ballot.
type Ballots map[PlayerID]Ballot

func (b Ballots) clone() Ballots {
	c := make(Ballots, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}
