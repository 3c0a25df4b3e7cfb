package grid

import (
	"cmp"
	"slices"
)

// Confirmation is one peer's answer to the obituary exchange for a single
// dying node. A nil ConfirmedRoll means the peer was asked and did NOT
// list the node as dead.
type Confirmation struct {
	ConfirmedRoll *uint64
}

// ballot is one (observer, roll) pair participating in an election.
type ballot struct {
	name string
	roll uint64
}

// Elect decides whether the death of a node is confirmed by quorum and,
// if so, which observer announces it. It is a pure function over its
// inputs: given identical confirmations, localRoll and me, the winner is
// identical across runs and across nodes.
//
// The quorum is a strict majority of the polled observers, always counting
// the local node as a confirming voter (it raised the failure count to the
// threshold before the exchange started). Ties go to "not yet confirmed".
//
// Among confirming observers the highest roll wins; equal rolls resolve in
// favor of the lexicographically greatest name.
func Elect(me string, localRoll uint64, confirmations map[string]Confirmation) (winner string, quorum bool) {
	trueVotes := 1 // the local node is always a confirming voter
	falseVotes := 0

	ballots := make([]ballot, 0, len(confirmations)+1)
	for name, confirmation := range confirmations {
		if confirmation.ConfirmedRoll == nil {
			falseVotes++
			continue
		}
		trueVotes++
		ballots = append(ballots, ballot{name: name, roll: *confirmation.ConfirmedRoll})
	}

	if trueVotes <= falseVotes {
		return "", false
	}

	ballots = append(ballots, ballot{name: me, roll: localRoll})
	slices.SortFunc(ballots, func(a, b ballot) int {
		return cmp.Or(cmp.Compare(a.roll, b.roll), cmp.Compare(a.name, b.name))
	})

	return ballots[len(ballots)-1].name, true
}
