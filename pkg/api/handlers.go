package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.uber.org/zap"

	"github.com/freecasterhq/freecaster-grid/pkg/models"
	"github.com/freecasterhq/freecaster-grid/pkg/version"
)

// authorized checks the :secret path segment. On mismatch it answers 406
// and aborts the request.
func (s *GridServer) authorized(c *gin.Context) bool {
	if c.Param("secret") == s.secret {
		return true
	}

	otelzap.L().WarnContext(c.Request.Context(), "Rejected request with wrong secret",
		zap.String("path", c.FullPath()),
		zap.String("remote", c.ClientIP()),
	)
	c.AbortWithStatus(http.StatusNotAcceptable)
	return false
}

// getStatus answers the liveness probe. The User-Agent of grid peers
// carries their name, so it is worth a log line.
func (s *GridServer) getStatus(c *gin.Context) {
	otelzap.L().InfoContext(c.Request.Context(), "Status probed",
		zap.String("user_agent", c.Request.UserAgent()),
	)

	c.JSON(http.StatusOK, models.StatusResponse{
		Version: version.Version,
		Name:    s.registry.Self().Name,
	})
}

func (s *GridServer) getObituary(c *gin.Context) {
	if !s.authorized(c) {
		return
	}

	_, span := s.tracer.Start(c.Request.Context(), "GridServer.getObituary")
	defer span.End()

	c.JSON(http.StatusOK, models.ObituaryResponse{DeadNodes: s.state.Obituary()})
}

func (s *GridServer) postSilenceBroadcast(c *gin.Context) {
	if !s.authorized(c) {
		return
	}

	ctx, span := s.tracer.Start(c.Request.Context(), "GridServer.postSilenceBroadcast")
	defer span.End()

	var req models.SilenceBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		herr := humane.Wrap(err, "failed to parse silence broadcast",
			"send the silence as JSON with id, node_name and silent_until fields")
		c.JSON(http.StatusBadRequest, models.FromHumaneError(herr))
		return
	}

	if s.state.ReceiveSilence(req) {
		otelzap.L().InfoContext(ctx, "Silence received via broadcast",
			zap.String("target", req.NodeName),
			zap.Uint64("id", req.ID),
			zap.Time("silent_until", req.SilentUntil),
		)
	} else {
		otelzap.L().DebugContext(ctx, "Ignoring already-known silence", zap.Uint64("id", req.ID))
	}

	c.Status(http.StatusNoContent)
}

// getSilence creates an operator silence. The :time segment is either
// absolute unix seconds or a relative Go duration such as 90m; with no
// :target segment the silence applies to the responding node itself.
func (s *GridServer) getSilence(c *gin.Context) {
	if !s.authorized(c) {
		return
	}

	_, span := s.tracer.Start(c.Request.Context(), "GridServer.getSilence")
	defer span.End()

	target := c.Param("target")
	if target == "" {
		target = s.registry.Self().Name
	}
	if !s.registry.IsKnown(target) {
		herr := humane.New("unknown silence target "+target,
			"silence targets must be roster names; check GET /grid/{secret} for the roster")
		c.JSON(http.StatusNotFound, models.FromHumaneError(herr))
		return
	}

	until, herr := parseSilenceUntil(c.Param("time"), time.Now().UTC())
	if herr != nil {
		c.JSON(http.StatusBadRequest, models.FromHumaneError(herr))
		return
	}

	silence := s.state.CreateSilence(target, until)
	c.JSON(http.StatusOK, models.SilenceResponse{
		Name:        silence.NodeName,
		SilentUntil: silence.SilentUntil,
	})
}

// parseSilenceUntil turns the raw :time segment into an absolute expiry.
// Plain integers are unix seconds; everything else must parse as a Go
// duration, applied relative to now at second precision.
func parseSilenceUntil(raw string, now time.Time) (time.Time, humane.Error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return time.Time{}, humane.Wrap(err, "failed to parse silence time "+raw,
			"pass unix seconds or a Go duration such as 90m or 1h30m")
	}
	return now.Truncate(time.Second).Add(d), nil
}

// getGrid renders the full roster with per-node status and totals. The
// responding node lists itself as alive; a node that can answer this
// request is, by definition, up.
func (s *GridServer) getGrid(c *gin.Context) {
	if !s.authorized(c) {
		return
	}

	_, span := s.tracer.Start(c.Request.Context(), "GridServer.getGrid")
	defer span.End()

	resp := models.GridResponse{
		Nodes: []models.GridNodeResponse{{
			Name:   s.registry.Self().Name,
			Status: models.StatusAlive,
		}},
	}

	for _, node := range s.state.Snapshot() {
		resp.Nodes = append(resp.Nodes, models.GridNodeResponse{
			Name:     node.Name,
			LastPoll: node.LastPoll,
			Status:   node.Status(),
		})
	}

	slices.SortFunc(resp.Nodes, func(a, b models.GridNodeResponse) int {
		return strings.Compare(a.Name, b.Name)
	})

	for _, node := range resp.Nodes {
		switch node.Status {
		case models.StatusAlive:
			resp.AliveNodes++
		case models.StatusDying:
			resp.DyingNodes++
		case models.StatusDead:
			resp.DeadNodes++
		}
	}
	resp.TotalNodes = len(resp.Nodes)

	c.JSON(http.StatusOK, resp)
}
