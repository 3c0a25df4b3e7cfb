// Package lnhttp provides a thin abstraction layer over Go's standard
// http.Server that decouples listener creation from server operation.
// Grid nodes commonly terminate TLS with self-signed certificates, so the
// package also wraps the provided listener in TLS when certificate
// material is configured.
//
// The key abstraction is the ListenerProvider interface, which lets tests
// inject in-memory or ephemeral-port listeners while production uses the
// plain TCP provider.
package lnhttp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ListenerProvider abstracts how the HTTP server obtains a net.Listener.
// Implementations should handle the context appropriately - cancellation
// should abort listener creation, but the returned listener's lifetime is
// managed separately by the HTTP server.
type ListenerProvider interface {
	// Listen creates a listener for the given network and address.
	// The context is used for the listener creation process only.
	Listen(ctx context.Context, network string, address string) (net.Listener, error)
}

// TCPProvider is the default ListenerProvider, listening on plain TCP.
type TCPProvider struct{}

func (p *TCPProvider) Listen(ctx context.Context, network string, address string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, network, address)
}

// Server is a thin wrapper around *http.Server that obtains its listener
// from a pluggable ListenerProvider and optionally terminates TLS.
//
// The Server embeds *http.Server, so all standard HTTP server methods and
// fields are available.
type Server struct {
	*http.Server

	// Provider supplies the network listener for this server.
	// Must not be nil when calling Serve.
	Provider ListenerProvider

	// CertFile and KeyFile hold PEM paths for TLS termination. When both
	// are set, Serve wraps the listener in TLS.
	CertFile string
	KeyFile  string
}

// NewServer constructs a new lnhttp Server with an embedded http.Server
// and the given ListenerProvider. If the http.Server parameter is nil, a
// default server with no configuration is created.
func NewServer(s *http.Server, provider ListenerProvider) *Server {
	if s == nil {
		s = &http.Server{}
	}
	return &Server{Server: s, Provider: provider}
}

// Serve starts the HTTP server using a listener obtained from Provider,
// wrapped in TLS when certificate material is configured. The context is
// passed to Provider.Listen for listener creation; it does not control
// the server lifecycle (use Shutdown for graceful termination).
//
// Returns nil when the server shuts down gracefully, or an error if
// listener creation, certificate loading, or server operation fails.
func (s *Server) Serve(ctx context.Context, handler http.Handler) error {
	if s.Provider == nil {
		return fmt.Errorf("lnhttp: Provider is nil")
	}

	address := s.Addr
	if address == "" {
		address = ":http"
	}

	ln, err := s.Provider.Listen(ctx, "tcp", address)
	if err != nil {
		return err
	}

	if s.CertFile != "" && s.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.CertFile, s.KeyFile)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("lnhttp: loading TLS material: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	s.Handler = handler
	if err := s.Server.Serve(ln); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

// ListenAndServe starts the server using the configured Addr and the
// embedded http.Server's Handler. This provides compatibility with the
// standard http.Server interface.
func (s *Server) ListenAndServe() error {
	return s.Serve(context.Background(), s.Handler)
}

// Shutdown gracefully shuts down the server by delegating to the embedded
// http.Server's Shutdown method. This will close the listener and wait
// for existing connections to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
