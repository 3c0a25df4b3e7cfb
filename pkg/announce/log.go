package announce

import (
	"context"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.uber.org/zap"

	"github.com/freecasterhq/freecaster-grid/pkg/grid"
)

// LogAnnouncer writes announcements to the log at error level so they
// stand out of the regular poll chatter. Used for grids without a chat
// sink and in tests.
type LogAnnouncer struct {
	me string
}

// NewLogAnnouncer creates a log sink announcing as me.
func NewLogAnnouncer(me string) *LogAnnouncer {
	return &LogAnnouncer{me: me}
}

func (a *LogAnnouncer) AnnounceDeath(ctx context.Context, target grid.Node) humane.Error {
	otelzap.L().ErrorContext(ctx, "Announcement!!!",
		zap.String("message", Message(a.me, target, true)),
	)
	announcementsTotal.WithLabelValues("death").Inc()
	return nil
}

func (a *LogAnnouncer) AnnounceRecovery(ctx context.Context, target grid.Node) humane.Error {
	otelzap.L().ErrorContext(ctx, "Announcement!!!",
		zap.String("message", Message(a.me, target, false)),
	)
	announcementsTotal.WithLabelValues("recovery").Inc()
	return nil
}
