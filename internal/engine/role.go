package engine

import (
	"fmt"
	"strings"
)

// Team is the side a role plays for.
type Team int

const (
	TeamVillager Team = iota
	TeamWerewolf
)

func (t Team) String() string {
	if t == TeamWerewolf {
		return "Werewolf"
	}
	return "Villager"
}

// Role identifies a player's card.
type Role int

const (
	Villager Role = iota
	Werewolf
	Seer
	Guard
	Witch
	Hunter
	ToughGuy
	Illusionist
	Wolfman
	Explorer
	DemonWerewolf
	AssassinWerewolf
	Detective
)

type roleSpec struct {
	name        string
	team        Team
	actsAtNight bool
	singleUse   bool
}

var roleSpecs = map[Role]roleSpec{
	Villager:         {name: "Villager", team: TeamVillager},
	Werewolf:         {name: "Werewolf", team: TeamWerewolf, actsAtNight: true},
	Seer:             {name: "Seer", team: TeamVillager, actsAtNight: true},
	Guard:            {name: "Guard", team: TeamVillager, actsAtNight: true},
	Witch:            {name: "Witch", team: TeamVillager, actsAtNight: true, singleUse: true},
	Hunter:           {name: "Hunter", team: TeamVillager, actsAtNight: true, singleUse: true},
	ToughGuy:         {name: "Tough Guy", team: TeamVillager},
	Illusionist:      {name: "Illusionist", team: TeamWerewolf},
	Wolfman:          {name: "Wolfman", team: TeamWerewolf, actsAtNight: true},
	Explorer:         {name: "Explorer", team: TeamVillager, actsAtNight: true},
	DemonWerewolf:    {name: "Demon Werewolf", team: TeamWerewolf, actsAtNight: true, singleUse: true},
	AssassinWerewolf: {name: "Assassin Werewolf", team: TeamWerewolf, actsAtNight: true, singleUse: true},
	Detective:        {name: "Detective", team: TeamVillager, actsAtNight: true, singleUse: true},
}

// AllRoles lists every role in declaration order.
func AllRoles() []Role {
	roles := make([]Role, 0, len(roleSpecs))
	for r := Villager; r <= Detective; r++ {
		roles = append(roles, r)
	}
	return roles
}

func (r Role) String() string {
	if s, ok := roleSpecs[r]; ok {
		return s.name
	}
	return "Unknown"
}

// Team returns the nominal team. The Illusionist is nominally a werewolf.
func (r Role) Team() Team { return roleSpecs[r].team }

// WinTeam returns the team counted by the win check. The Illusionist counts
// as a villager here even though it plays with the pack.
func (r Role) WinTeam() Team {
	if r == Illusionist {
		return TeamVillager
	}
	return r.Team()
}

func (r Role) ActsAtNight() bool { return roleSpecs[r].actsAtNight }
func (r Role) SingleUse() bool   { return roleSpecs[r].singleUse }

// InPack reports whether the role shares the nightly werewolf kill.
func (r Role) InPack() bool {
	return r.Team() == TeamWerewolf && r != Illusionist
}

// NeedsChallenge reports whether the role has no night action and must pass
// the arithmetic challenge to vote the next day.
func (r Role) NeedsChallenge() bool {
	switch r {
	case Villager, ToughGuy, Illusionist:
		return true
	}
	return false
}

// ParseRole accepts a role's display name, case-insensitively, with or
// without spaces.
func ParseRole(name string) (Role, error) {
	key := normalizeRoleName(name)
	for r, s := range roleSpecs {
		if normalizeRoleName(s.name) == key {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

func normalizeRoleName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "_", "")
}
