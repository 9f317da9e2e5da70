package engine

import "fmt"

// Winner is the outcome of a win check.
type Winner int

const (
	NoWinner Winner = iota
	VillagersWin
	WerewolvesWin
)

func (w Winner) String() string {
	switch w {
	case VillagersWin:
		return "Villagers"
	case WerewolvesWin:
		return "Werewolves"
	}
	return "None"
}

// AllDeadPolicy decides the winner when nobody is left alive.
type AllDeadPolicy int

const (
	AllDeadNoWinner AllDeadPolicy = iota
	AllDeadWerewolves
	AllDeadVillagers
)

func ParseAllDeadPolicy(s string) (AllDeadPolicy, error) {
	switch s {
	case "", "none":
		return AllDeadNoWinner, nil
	case "werewolves":
		return AllDeadWerewolves, nil
	case "villagers":
		return AllDeadVillagers, nil
	}
	return 0, fmt.Errorf("unknown all-dead policy %q", s)
}

// Evaluate checks the win condition. Players are counted by win team, so
// the Illusionist counts as a villager. Villagers cannot win while a curse
// is pending, since the cursed player turns at dawn.
func Evaluate(reg *Registry, flags SessionFlags, policy AllDeadPolicy) Winner {
	wolves, villagers := 0, 0
	for _, p := range reg.Living() {
		if p.Role.WinTeam() == TeamWerewolf {
			wolves++
		} else {
			villagers++
		}
	}

	switch {
	case wolves == 0 && villagers == 0:
		switch policy {
		case AllDeadWerewolves:
			return WerewolvesWin
		case AllDeadVillagers:
			return VillagersWin
		}
		return NoWinner
	case wolves == 0 && flags.DemonPendingCursedPlayer == "":
		return VillagersWin
	case wolves > 0 && wolves >= villagers:
		return WerewolvesWin
	}
	return NoWinner
}
