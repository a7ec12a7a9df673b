package platform

import (
	"context"
	"net/http"
	"time"
)

// Prober answers whether the network is likely available.
type Prober interface {
	Online(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Online(ctx context.Context) bool { return f(ctx) }

// HTTPProber treats any HTTP response from URL, whatever its status, as
// proof of connectivity.
type HTTPProber struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

func (p *HTTPProber) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
