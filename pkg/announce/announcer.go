// Package announce delivers the human-visible grid announcements: exactly
// one elected node per death or recovery calls into an Announcer. Nothing
// else is ever escalated here.
package announce

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sierrasoftworks/humane-errors-go"

	"github.com/freecasterhq/freecaster-grid/pkg/grid"
)

// Announcer is the external sink for elected death and recovery messages.
type Announcer interface {
	// AnnounceDeath publishes that target died, announced by this node.
	AnnounceDeath(ctx context.Context, target grid.Node) humane.Error

	// AnnounceRecovery publishes that target returned after having been
	// announced dead by this node.
	AnnounceRecovery(ctx context.Context, target grid.Node) humane.Error
}

// Message renders the announcement template for target. The @handle
// suffix is appended iff the target has a non-empty telegram handle.
func Message(me string, target grid.Node, died bool) string {
	suffix := ""
	if target.TelegramHandle != "" {
		suffix = fmt.Sprintf(" - @%s", target.TelegramHandle)
	}

	if died {
		return fmt.Sprintf("Grid announcement, `%s` has unfortunately died, announced by: `%s`%s", target.Name, me, suffix)
	}
	return fmt.Sprintf("Grid announcement, `%s` has fortunately RETURNED, announced by: `%s`%s", target.Name, me, suffix)
}

// announcementsTotal counts delivered announcements by kind.
var announcementsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "freecaster_announcements_total",
		Help: "Total number of grid announcements delivered by this node",
	},
	[]string{
		"kind",
	},
)

func init() {
	prometheus.MustRegister(announcementsTotal)
}
