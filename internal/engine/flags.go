package engine

// SessionFlags holds state that persists across nights.
type SessionFlags struct {
	PreviousGuardTarget PlayerID

	WitchHasPower  bool
	HunterHasPower bool
	ExplorerCanAct bool

	// The Illusionist's effect lands on the night after the Seer scans it.
	IllusionistScannedLastNight      bool
	IllusionistEffectNight           int
	IllusionistEffectActiveThisNight bool

	DemonActivated           bool
	DemonHasCursed           bool
	DemonPendingCursedPlayer PlayerID
	DemonCursedThisNight     bool

	DetectiveHasUsed bool
	AssassinHasActed bool

	NightCount int
	IsFirstDay bool
	Phase      Phase
	Paused     bool
}

// NewSessionFlags returns the flags of a fresh game.
func NewSessionFlags() SessionFlags {
	return SessionFlags{
		WitchHasPower:  true,
		HunterHasPower: true,
		ExplorerCanAct: true,
		IsFirstDay:     true,
		Phase:          PhaseIdle,
	}
}

// refreshDemon activates the Demon Werewolf once any pack-side player is dead.
func refreshDemon(reg *Registry, flags *SessionFlags) {
	if flags.DemonActivated {
		return
	}
	for _, p := range reg.Players() {
		if p.Status == Dead && p.Role.Team() == TeamWerewolf {
			flags.DemonActivated = true
			return
		}
	}
}
