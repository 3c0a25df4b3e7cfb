// Package gridclient implements the outbound half of the grid protocol:
// status probes, obituary fetches, silence broadcasts and the internet
// connectivity gate. One shared http.Client with a 5 second timeout backs
// every call and is safe for concurrent use.
package gridclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.uber.org/zap"

	"github.com/freecasterhq/freecaster-grid/pkg/grid"
	"github.com/freecasterhq/freecaster-grid/pkg/models"
	"github.com/freecasterhq/freecaster-grid/pkg/version"
)

const (
	// DefaultTimeout bounds every outbound call, probe and gate alike.
	DefaultTimeout = 5 * time.Second

	// DefaultConnectivityURL is the captive-portal endpoint used by the
	// internet gate. It must answer 204 for the grid to trust its own
	// observations.
	DefaultConnectivityURL = "http://clients3.google.com/generate_204"
)

// Client performs all outbound HTTP calls of a grid node.
type Client struct {
	http            *http.Client
	me              string
	secret          string
	connectivityURL string

	timeout       time.Duration
	rootCA        []byte
	verifyServers bool
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithRootCA adds a PEM-encoded root certificate trusted for peer
// connections, on top of the system pool.
func WithRootCA(pem []byte) Option {
	return func(c *Client) { c.rootCA = pem }
}

// WithServerVerification enables regular TLS server certificate
// validation. By default validation is deliberately relaxed: grids are
// closed rosters that commonly run on self-signed certificates.
func WithServerVerification(verify bool) Option {
	return func(c *Client) { c.verifyServers = verify }
}

// WithConnectivityURL overrides the internet-gate endpoint, mainly for
// tests.
func WithConnectivityURL(url string) Option {
	return func(c *Client) { c.connectivityURL = url }
}

// New creates the shared peer client for the node named me. The secret is
// embedded in the path of every administrative call.
func New(me string, secret string, opts ...Option) (*Client, humane.Error) {
	c := &Client{
		me:              me,
		secret:          secret,
		connectivityURL: DefaultConnectivityURL,
		timeout:         DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	tlsConfig := &tls.Config{
		// Self-signed peer certificates are accepted unless verification
		// was explicitly enabled (see WithServerVerification).
		InsecureSkipVerify: !c.verifyServers, //nolint:gosec
	}

	if len(c.rootCA) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(c.rootCA) {
			return nil, humane.New("failed to parse root certificate",
				"ensure client.rootCA points to a PEM-encoded certificate")
		}
		tlsConfig.RootCAs = pool
	}

	c.http = &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}

	return c, nil
}

// UserAgent returns the product/version/self-name triple sent on every
// outbound call.
func (c *Client) UserAgent() string {
	return fmt.Sprintf("freecaster-grid/%s/%s", version.Version, c.me)
}

// get performs one authenticated-by-path GET against a peer and returns
// the raw body. Any non-2xx status or transport failure is an error.
func (c *Client) get(ctx context.Context, node grid.Node, path string) ([]byte, humane.Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, node.Address+path, nil)
	if err != nil {
		return nil, humane.Wrap(err, "failed to create request",
			"this indicates a bug in the peer client; please report it")
	}
	req.Header.Set("User-Agent", c.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, humane.Wrap(err, fmt.Sprintf("failed to reach peer %q", node.Name))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, humane.Wrap(err, fmt.Sprintf("failed to read response from peer %q", node.Name))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, humane.New(fmt.Sprintf("peer %q returned status %d", node.Name, resp.StatusCode))
	}

	return body, nil
}

// decodeLenient unmarshals a 2xx body into out. A body that does not
// decode is logged and reported as (false, nil): a reachable peer serving
// an unexpected shape is "up but weird", not proof of death.
func decodeLenient(body []byte, out any, peer string, purpose string) bool {
	if err := json.Unmarshal(body, out); err != nil {
		otelzap.L().Error("Failed to parse peer response",
			zap.String("peer", peer),
			zap.String("purpose", purpose),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Status fetches a peer's status endpoint. The three outcomes mirror the
// probe classification: (resp, nil) is up, (nil, nil) is up-but-weird
// (2xx with an undecodable body), and (nil, err) is a failed probe.
func (c *Client) Status(ctx context.Context, node grid.Node) (*models.StatusResponse, humane.Error) {
	body, herr := c.get(ctx, node, "/")
	if herr != nil {
		return nil, herr
	}

	var status models.StatusResponse
	if !decodeLenient(body, &status, node.Name, "poll status") {
		return nil, nil
	}
	return &status, nil
}

// Probe performs one liveness probe and classifies the outcome. It
// returns true when the probe FAILED.
func (c *Client) Probe(ctx context.Context, node grid.Node) bool {
	status, herr := c.Status(ctx, node)
	if herr != nil {
		otelzap.L().Error("Peer probe failed",
			zap.String("peer", node.Name),
			zap.Error(herr),
		)
		return true
	}

	if status == nil {
		otelzap.L().Warn("Peer is up but weird", zap.String("peer", node.Name))
		return false
	}

	otelzap.L().Info("Peer is up",
		zap.String("peer", status.Name),
		zap.String("peer_version", status.Version),
	)
	if status.Name != node.Name {
		otelzap.L().Warn("Peer name mismatch",
			zap.String("expected", node.Name),
			zap.String("reported", status.Name),
		)
	}
	return false
}

// Obituary fetches a peer's obituary list. A nil response with nil error
// means the peer answered with an undecodable body; the peer simply does
// not vote this cycle.
func (c *Client) Obituary(ctx context.Context, node grid.Node) (*models.ObituaryResponse, humane.Error) {
	body, herr := c.get(ctx, node, "/obituary/"+c.secret)
	if herr != nil {
		return nil, herr
	}

	var obituary models.ObituaryResponse
	if !decodeLenient(body, &obituary, node.Name, "obituary") {
		return nil, nil
	}
	return &obituary, nil
}

// BroadcastSilence pushes one silence record to a peer. Any non-2xx
// response or transport failure is an error; the caller retries with the
// next peer.
func (c *Client) BroadcastSilence(ctx context.Context, node grid.Node, silence models.SilenceBroadcastRequest) humane.Error {
	payload, err := json.Marshal(silence)
	if err != nil {
		return humane.Wrap(err, "failed to marshal silence broadcast")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		node.Address+"/silence-broadcast/"+c.secret, bytes.NewReader(payload))
	if err != nil {
		return humane.Wrap(err, "failed to create silence broadcast request")
	}
	req.Header.Set("User-Agent", c.UserAgent())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return humane.Wrap(err, fmt.Sprintf("failed to reach peer %q", node.Name))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return humane.New(fmt.Sprintf("peer %q rejected silence broadcast with status %d", node.Name, resp.StatusCode))
	}
	return nil
}

// HasConnectivity probes the captive-portal endpoint and reports whether
// the sentinel 204 came back. Without it the whole poll cycle is skipped,
// so a local network outage never declares the entire grid dead.
func (c *Client) HasConnectivity(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.connectivityURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusNoContent
}
