package engine

import "fmt"

// PlayerID identifies a player within a session. The empty ID means "nobody".
type PlayerID string

// Status is a player's life state. It only ever moves forward.
type Status int

const (
	Alive Status = iota
	Wounded
	Dead
)

var statusNames = map[Status]string{
	Alive:   "Alive",
	Wounded: "Wounded",
	Dead:    "Dead",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "Unknown"
}

// Power names a single-use ability that has been spent.
type Power string

const (
	PowerWitchPotion    Power = "witch_potion"
	PowerHunterShot     Power = "hunter_shot"
	PowerDetectiveProbe Power = "detective_probe"
	PowerAssassination  Power = "assassination"
	PowerDemonCurse     Power = "demon_curse"
)

// Player is one seat in a session.
type Player struct {
	ID         PlayerID
	Name       string
	Role       Role
	Status     Status
	UsedPowers map[Power]bool
}

func (p *Player) IsAlive() bool { return p.Status != Dead }

func (p *Player) usePower(pw Power) {
	if p.UsedPowers == nil {
		p.UsedPowers = make(map[Power]bool)
	}
	p.UsedPowers[pw] = true
}

func (p Player) clone() Player {
	c := p
	if p.UsedPowers != nil {
		c.UsedPowers = make(map[Power]bool, len(p.UsedPowers))
		for k, v := range p.UsedPowers {
			c.UsedPowers[k] = v
		}
	}
	return c
}

// HitResult describes one status transition caused by a hit.
type HitResult struct {
	ID   PlayerID
	From Status
	To   Status
}

func (h HitResult) Died() bool    { return h.From != Dead && h.To == Dead }
func (h HitResult) Wounded() bool { return h.From == Alive && h.To == Wounded }

// Registry holds a session's players in seating order.
type Registry struct {
	order   []PlayerID
	players map[PlayerID]*Player
}

// NewRegistry builds a registry. Duplicate or empty IDs are a configuration error.
func NewRegistry(players ...Player) (*Registry, error) {
	reg := &Registry{players: make(map[PlayerID]*Player, len(players))}
	for _, p := range players {
		if p.ID == "" {
			return nil, &ConfigurationError{Reason: "player without id"}
		}
		if _, dup := reg.players[p.ID]; dup {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("duplicate player %s", p.ID)}
		}
		if _, ok := roleSpecs[p.Role]; !ok {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("player %s has unknown role %d", p.ID, p.Role)}
		}
		c := p.clone()
		reg.order = append(reg.order, c.ID)
		reg.players[c.ID] = &c
	}
	return reg, nil
}

func (r *Registry) Len() int { return len(r.order) }

// Get returns the live record for id.
func (r *Registry) Get(id PlayerID) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Players returns the live records in seating order.
func (r *Registry) Players() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

// Living returns players that are Alive or Wounded.
func (r *Registry) Living() []*Player {
	var out []*Player
	for _, p := range r.Players() {
		if p.IsAlive() {
			out = append(out, p)
		}
	}
	return out
}

// FindLiving returns the first living player holding role.
func (r *Registry) FindLiving(role Role) (*Player, bool) {
	for _, p := range r.Players() {
		if p.Role == role && p.IsAlive() {
			return p, true
		}
	}
	return nil, false
}

// Snapshot copies every player, in seating order.
func (r *Registry) Snapshot() []Player {
	out := make([]Player, 0, len(r.order))
	for _, p := range r.Players() {
		out = append(out, p.clone())
	}
	return out
}

// Clone returns a deep copy.
func (r *Registry) Clone() *Registry {
	c, _ := NewRegistry(r.Snapshot()...)
	return c
}

// Hit applies one unit of harm. A Tough Guy survives the first hit wounded;
// anyone else dies. Hits on the dead change nothing.
func (r *Registry) Hit(id PlayerID) (HitResult, error) {
	p, ok := r.players[id]
	if !ok {
		return HitResult{}, &ConfigurationError{Reason: fmt.Sprintf("hit on unknown player %s", id)}
	}
	res := HitResult{ID: id, From: p.Status, To: p.Status}
	switch {
	case p.Status == Dead:
	case p.Role == ToughGuy && p.Status == Alive:
		p.Status = Wounded
	default:
		p.Status = Dead
	}
	res.To = p.Status
	return res, nil
}

// SetRole rewrites a player's card. Only the curse does this.
func (r *Registry) SetRole(id PlayerID, role Role) error {
	p, ok := r.players[id]
	if !ok {
		return &ConfigurationError{Reason: fmt.Sprintf("unknown player %s", id)}
	}
	p.Role = role
	return nil
}
