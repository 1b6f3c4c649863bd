package ingest

import (
	"log/slog"
	"net/http"
	"time"
)

type (
	// ClientOption represents a single option for the client.
	ClientOption interface{ client(*ClientOptions) }

	// ClientOptions are the resolved options for the client.
	ClientOptions struct {
		Timeout     time.Duration
		HTTPClient  *http.Client
		MaxInFlight int
		Logger      *slog.Logger
	}

	// WithTimeout bounds each request, from dial to the end of the response
	// body. It should exceed the window duration so a slow classifier is not
	// cut off while the next window accumulates. Defaults to DefaultTimeout.
	WithTimeout time.Duration

	// WithMaxInFlight caps concurrent transmissions. Windows that would
	// exceed the cap are dropped. Zero or less means unbounded (the default).
	WithMaxInFlight int

	// This option is not used directly; see WithHTTPClient below.
	withHTTPClient struct{ *http.Client }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// DefaultTimeout is a 5 s window plus a 1 s margin.
const DefaultTimeout = 6 * time.Second

// WithHTTPClient sends requests through c instead of a private client.
// The per-request timeout still applies.
func WithHTTPClient(c *http.Client) ClientOption {
	return withHTTPClient{c}
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return withLogger{logger}
}

// Apply resolves the provided list of options.
func (o *ClientOptions) Apply(opts []ClientOption, rest ...ClientOption) {
	for _, opt := range opts {
		if opt != nil {
			opt.client(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.client(o)
		}
	}
}

func (o *ClientOptions) client(opt *ClientOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithTimeout) client(opt *ClientOptions) {
	opt.Timeout = time.Duration(o)
}

func (o WithMaxInFlight) client(opt *ClientOptions) {
	opt.MaxInFlight = int(o)
}

func (o withHTTPClient) client(opt *ClientOptions) {
	opt.HTTPClient = o.Client
}

func (o withLogger) client(opt *ClientOptions) {
	opt.Logger = o.Logger
}
