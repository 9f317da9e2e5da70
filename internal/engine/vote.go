package engine

// VoteResult is the tally of one day vote.
type VoteResult struct {
	Counts     map[PlayerID]int
	Skips      int
	Ineligible []PlayerID
	// Eliminated is empty when nobody is voted out.
	Eliminated PlayerID
	Tie        bool
}

// Tally counts ballots from living voters. Challenge roles vote only when
// passed says so. Eligible voters who did not vote count as skips. A target
// is eliminated only if it alone holds the most votes and beats the skips.
func Tally(ballots Ballots, reg *Registry, passed map[PlayerID]bool) VoteResult {
	res := VoteResult{Counts: make(map[PlayerID]int)}
	for _, p := range reg.Living() {
		if p.Role.NeedsChallenge() && !passed[p.ID] {
			res.Ineligible = append(res.Ineligible, p.ID)
			continue
		}
		b, ok := ballots[p.ID]
		if !ok || b.Skip {
			res.Skips++
			continue
		}
		if t, ok := reg.Get(b.Target); !ok || !t.IsAlive() {
			res.Skips++
			continue
		}
		res.Counts[b.Target]++
	}

	best, leaders := 0, 0
	var top PlayerID
	for _, p := range reg.Players() {
		n := res.Counts[p.ID]
		switch {
		case n == 0:
		case n > best:
			best, leaders, top = n, 1, p.ID
		case n == best:
			leaders++
		}
	}
	res.Tie = leaders > 1
	if leaders == 1 && best > res.Skips {
		res.Eliminated = top
	}
	return res
}
