// Package forwarder sends a transformed, re-signed request upstream over
// a shared *http.Client and returns the raw response for the handler to
// relay back to the caller.
package forwarder

import (
	"log/slog"
	"net/http"

	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
)

// Forwarder relays requests using one shared, keep-alive-enabled client,
// grounded on the teacher's pattern of reusing a single outbound client
// across requests rather than building one per call.
type Forwarder struct {
	client *http.Client
	logger *slog.Logger
}

// New builds a Forwarder around client, which callers are expected to
// configure with sane transport timeouts/pooling.
func New(client *http.Client, logger *slog.Logger) *Forwarder {
	return &Forwarder{client: client, logger: logger}
}

// Forward sends req and returns the upstream response unread and unclosed;
// the caller owns resp.Body.
func (f *Forwarder) Forward(req *http.Request) (*http.Response, error) {
	f.logger.Debug("forwarding request", "method", req.Method, "host", req.Host, "url", req.URL.String())
	// A server-received request always carries a non-empty RequestURI, which
	// net/http's client-side Transport refuses to send.
	req.RequestURI = ""
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, proxyerrors.NewOtherInternal("proxy forwarding error: %v", err)
	}
	return resp, nil
}
