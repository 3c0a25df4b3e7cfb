// Package api exposes the grid's HTTP endpoint surface: the status probe,
// the obituary list, silence creation and gossip, and the grid snapshot.
// All administrative endpoints embed the shared secret in the path; a
// mismatched secret answers 406 so that a wrong guess is distinguishable
// from a route that does not exist.
package api

import (
	"context"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/go-otel-utils/otelzap"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/freecasterhq/freecaster-grid/pkg/grid"
	"github.com/freecasterhq/freecaster-grid/pkg/lnhttp"
)

// GridServer is the HTTP server of one grid node. It shares the
// grid.State aggregate with the poller; handlers only ever touch it
// through the aggregate's own locking methods.
type GridServer struct {
	// Options
	debug    bool
	addr     string
	certFile string
	keyFile  string
	prom     *ginprometheus.Prometheus

	router *gin.Engine
	tracer trace.Tracer
	srv    *lnhttp.Server

	registry *grid.Registry
	state    *grid.State
	secret   string
}

// Option customizes a GridServer.
type Option func(*GridServer)

// WithDebug switches gin into debug mode.
func WithDebug(debug bool) Option {
	return func(s *GridServer) { s.debug = debug }
}

// WithAddr sets the bind address.
func WithAddr(addr string) Option {
	return func(s *GridServer) { s.addr = addr }
}

// WithTLS enables TLS termination with the given PEM files.
func WithTLS(certFile string, keyFile string) Option {
	return func(s *GridServer) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// WithPrometheus installs a shared gin-prometheus instance instead of
// creating a fresh one.
func WithPrometheus(prom *ginprometheus.Prometheus) Option {
	return func(s *GridServer) { s.prom = prom }
}

// NewGridServer creates the endpoint surface over the shared state.
func NewGridServer(registry *grid.Registry, state *grid.State, secret string, opts ...Option) *GridServer {
	s := &GridServer{
		addr:     ":8440",
		tracer:   otel.Tracer("freecaster-grid"),
		registry: registry,
		state:    state,
		secret:   secret,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(otelgin.Middleware("freecaster_grid"))
	// Setup ginzap to log everything correctly to zap
	s.router.Use(ginzap.GinzapWithConfig(otelzap.L(), &ginzap.Config{
		UTC:        true,
		TimeFormat: time.RFC3339,
		Context: func(c *gin.Context) []zapcore.Field {
			var fields []zapcore.Field
			if trace.SpanFromContext(c.Request.Context()).SpanContext().IsValid() {
				fields = append(fields, zap.String("trace_id", trace.SpanFromContext(c.Request.Context()).SpanContext().TraceID().String()))
				fields = append(fields, zap.String("span_id", trace.SpanFromContext(c.Request.Context()).SpanContext().SpanID().String()))
			}
			return fields
		},
	}))

	if s.prom == nil {
		s.prom = ginprometheus.NewPrometheus("freecaster_grid")
	}
	s.prom.Use(s.router)

	s.loadRoutes()
	return s
}

func (s *GridServer) loadRoutes() {
	s.router.GET("/", s.getStatus)
	s.router.GET("/obituary/:secret", s.getObituary)
	s.router.POST("/silence-broadcast/:secret", s.postSilenceBroadcast)
	s.router.GET("/silence/:secret/:time", s.getSilence)
	s.router.GET("/silence/:secret/:time/:target", s.getSilence)
	s.router.GET("/grid/:secret", s.getGrid)
}

// Serve starts the HTTP server and blocks until it stops. It returns nil
// on graceful shutdown.
func (s *GridServer) Serve(ctx context.Context) humane.Error {
	s.srv = lnhttp.NewServer(&http.Server{
		Addr:              s.addr,
		ReadHeaderTimeout: 5 * time.Second,
	}, &lnhttp.TCPProvider{})
	s.srv.CertFile = s.certFile
	s.srv.KeyFile = s.keyFile

	otelzap.L().InfoContext(ctx, "Starting grid server",
		zap.String("addr", s.addr),
		zap.Bool("tls", s.certFile != ""),
	)

	if err := s.srv.Serve(ctx, s.router); err != nil {
		return humane.Wrap(err, "grid server failed",
			"check that the bind address is free and the TLS material is readable")
	}
	return nil
}

// Shutdown gracefully stops the server if it is running.
func (s *GridServer) Shutdown(ctx context.Context) humane.Error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return humane.Wrap(err, "failed to shutdown grid server")
	}
	return nil
}

// Engine returns the underlying gin.Engine, primarily for tests.
func (s *GridServer) Engine() *gin.Engine { return s.router }
