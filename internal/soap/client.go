// Package soap invokes UPnP actions over SOAP 1.1.
package soap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/upnp-control-go/internal/version"
	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// CallOptions are transport settings applied to every call.
type CallOptions struct {
	Headers map[string]string // set verbatim on the request, after the SOAP headers
	Timeout time.Duration     // 0 leaves the call bounded only by the caller's context
}

// Options configure a Client for one service.
type Options struct {
	Endpoint            string // control URL
	ServiceType         string // service URN
	CallOptions         CallOptions
	AdvancedTypecasting bool
	Cookies             []*http.Cookie
}

// Client sends action calls to one service endpoint. It does not validate
// arguments and never retries.
type Client struct {
	opts Options
	http *http.Client
}

// NewClient returns a Client. A nil httpClient selects an instrumented default.
func NewClient(opts Options, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = helper.NewHTTPClient(0)
	}
	return &Client{opts: opts, http: httpClient}
}

// Options returns the client's configuration.
func (c *Client) Options() Options {
	return c.opts
}

// Call invokes action with args and returns its output arguments.
func (c *Client) Call(ctx context.Context, action string, args Args) (*Response, error) {
	body, err := BuildEnvelope(c.opts.ServiceType, action, args)
	if err != nil {
		return nil, err
	}

	if c.opts.CallOptions.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallOptions.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &model.TransportError{URL: c.opts.Endpoint, Err: err}
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", SOAPAction(c.opts.ServiceType, action))
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range c.opts.CallOptions.Headers {
		req.Header.Set(k, v)
	}
	for _, cookie := range c.opts.Cookies {
		req.AddCookie(cookie)
	}

	log.Debug().
		Str("endpoint", c.opts.Endpoint).
		Str("service_type", c.opts.ServiceType).
		Str("action", action).
		Int("args", len(args)).
		Msg("Invoking action")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.TransportError{URL: c.opts.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, helper.MaxBodySize))
	if err != nil {
		return nil, &model.TransportError{URL: c.opts.Endpoint, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}

	env, decodeErr := decodeEnvelope(raw)
	if decodeErr == nil && env.Body.Fault != nil {
		fe := env.Body.Fault.toError()
		log.Debug().
			Str("action", action).
			Int("status", resp.StatusCode).
			Str("fault", fe.FaultString).
			Int("upnp_error", fe.UPnPErrorCode).
			Msg("Device returned SOAP fault")
		return nil, fe
	}

	if !helper.IsSuccess(resp.StatusCode) {
		return nil, &model.TransportError{URL: c.opts.Endpoint, StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}
	if decodeErr != nil {
		return nil, &model.TransportError{
			URL:        c.opts.Endpoint,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Err:        fmt.Errorf("failed to decode %s response: %w", action, decodeErr),
		}
	}

	return parseResponse(action, env, raw, c.opts.AdvancedTypecasting)
}
