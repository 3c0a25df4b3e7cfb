package grid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/freecasterhq/freecaster-grid/pkg/grid"
)

func rollPtr(v uint64) *uint64 { return &v }

func TestElect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		me            string
		localRoll     uint64
		confirmations map[string]grid.Confirmation
		wantWinner    string
		wantQuorum    bool
	}{
		{
			name:          "no other voters elects self",
			me:            "okarthel",
			localRoll:     42,
			confirmations: map[string]grid.Confirmation{},
			wantWinner:    "okarthel",
			wantQuorum:    true,
		},
		{
			name:      "single dissenter ties and denies quorum",
			me:        "okarthel",
			localRoll: 42,
			confirmations: map[string]grid.Confirmation{
				"brennagh": {ConfirmedRoll: nil},
			},
			wantWinner: "",
			wantQuorum: false,
		},
		{
			name:      "dissenter outvoted by two confirmations",
			me:        "okarthel",
			localRoll: 10,
			confirmations: map[string]grid.Confirmation{
				"brennagh": {ConfirmedRoll: rollPtr(99)},
				"caldris":  {ConfirmedRoll: nil},
			},
			wantWinner: "brennagh",
			wantQuorum: true,
		},
		{
			name:      "highest roll wins",
			me:        "okarthel",
			localRoll: 7,
			confirmations: map[string]grid.Confirmation{
				"brennagh": {ConfirmedRoll: rollPtr(3)},
				"caldris":  {ConfirmedRoll: rollPtr(12)},
			},
			wantWinner: "caldris",
			wantQuorum: true,
		},
		{
			name:      "equal rolls resolve to greatest name",
			me:        "aldwin",
			localRoll: 50,
			confirmations: map[string]grid.Confirmation{
				"brennagh": {ConfirmedRoll: rollPtr(50)},
				"caldris":  {ConfirmedRoll: rollPtr(50)},
			},
			wantWinner: "caldris",
			wantQuorum: true,
		},
		{
			name:      "majority of dissenters denies quorum",
			me:        "okarthel",
			localRoll: 42,
			confirmations: map[string]grid.Confirmation{
				"brennagh": {ConfirmedRoll: nil},
				"caldris":  {ConfirmedRoll: nil},
				"dunhall":  {ConfirmedRoll: rollPtr(1)},
			},
			wantWinner: "",
			wantQuorum: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			winner, quorum := grid.Elect(tt.me, tt.localRoll, tt.confirmations)
			assert.Equal(t, tt.wantQuorum, quorum)
			assert.Equal(t, tt.wantWinner, winner)
		})
	}
}

func TestElectIsDeterministic(t *testing.T) {
	t.Parallel()

	confirmations := map[string]grid.Confirmation{
		"brennagh": {ConfirmedRoll: rollPtr(17)},
		"caldris":  {ConfirmedRoll: rollPtr(17)},
		"dunhall":  {ConfirmedRoll: rollPtr(5)},
	}

	firstWinner, firstQuorum := grid.Elect("okarthel", 17, confirmations)
	for range 100 {
		winner, quorum := grid.Elect("okarthel", 17, confirmations)
		assert.Equal(t, firstWinner, winner)
		assert.Equal(t, firstQuorum, quorum)
	}
}
