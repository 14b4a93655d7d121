package instrumentation

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/GriffinCanCode/apmcore/internal/apm"
	"github.com/GriffinCanCode/apmcore/internal/tracecontext"
)

// Transport is an http.RoundTripper that records each request as an exit
// span and propagates the trace in its headers
type Transport struct {
	tracer *apm.Tracer
	base   http.RoundTripper
}

// NewTransport wraps base, http.DefaultTransport when nil
func NewTransport(tracer *apm.Tracer, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{tracer: tracer, base: base}
}

// RoundTrip implements http.RoundTripper. The request is cloned before
// headers are added.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var (
		resp *http.Response
		err  error
	)
	mgr := t.tracer.Manager()
	mgr.With(req.Context(), mgr.Active(req.Context()), func(ctx context.Context) {
		ctx, span := t.tracer.StartSpan(ctx, req.Method+" "+req.URL.Host, "external",
			apm.Subtype("http"), apm.WithDestination(destination(req.URL)))
		if span == nil {
			resp, err = t.base.RoundTrip(req)
			return
		}

		out := req.Clone(ctx)
		span.SetHTTPRequest(out.Method, redact(out.URL))
		span.Inject(tracecontext.HeaderCarrier(out.Header))

		resp, err = t.base.RoundTrip(out)
		if err != nil {
			span.RecordError(err)
		} else {
			span.SetOutcomeFromHTTPStatus(resp.StatusCode)
		}
		span.End()
	})
	return resp, err
}

func destination(u *url.URL) apm.Destination {
	host := u.Hostname()
	port := 0
	if p := u.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	} else {
		switch u.Scheme {
		case "https":
			port = 443
		case "http":
			port = 80
		}
	}
	resource := host
	if port != 0 {
		resource = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return apm.Destination{Address: host, Port: port, Resource: resource}
}

func redact(u *url.URL) string {
	c := *u
	c.User = nil
	return c.String()
}
