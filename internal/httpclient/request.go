package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorHandler maps an HTTP error response to a domain error. A nil return
// means the status is acceptable.
type ErrorHandler func(statusCode int, body []byte) error

// Request builds one HTTP call. It is not safe for reuse after execution.
type Request struct {
	client  *Client
	headers map[string]string
	query   url.Values
	body    any
	result  any
	onError ErrorHandler
}

// Header sets a request header.
func (r *Request) Header(key, value string) *Request {
	r.headers[key] = value
	return r
}

// Query adds a query parameter.
func (r *Request) Query(key, value string) *Request {
	if r.query == nil {
		r.query = url.Values{}
	}
	r.query.Set(key, value)
	return r
}

// Body sets the request body. Byte slices and strings pass through;
// anything else is JSON encoded.
func (r *Request) Body(body any) *Request {
	r.body = body
	return r
}

// Result sets the target for JSON decoding of a successful response.
func (r *Request) Result(result any) *Request {
	r.result = result
	return r
}

// OnError installs a handler for 4xx/5xx responses.
func (r *Request) OnError(h ErrorHandler) *Request {
	r.onError = h
	return r
}

// Get executes a GET against path (joined with the client base URL).
func (r *Request) Get(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodGet, path)
}

// Post executes a POST against path.
func (r *Request) Post(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodPost, path)
}

// Response carries the raw body alongside the standard response.
type Response struct {
	*http.Response
	body []byte
}

// Bytes returns the response body.
func (r *Response) Bytes() []byte { return r.body }

// String returns the response body as a string.
func (r *Response) String() string { return string(r.body) }

// IsError reports whether the status code is 4xx or 5xx.
func (r *Response) IsError() bool { return r.StatusCode >= 400 }

func (r *Request) execute(ctx context.Context, method, path string) (*Response, error) {
	c := r.client
	fullURL := path
	if c.baseURL != "" && !strings.HasPrefix(path, "http") {
		fullURL = strings.TrimSuffix(c.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	if len(r.query) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + r.query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, "http.request", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", fullURL),
		attribute.String("provider", c.provider),
	))
	defer span.End()

	bodyReader, err := r.encodeBody()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode body")
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.record(ctx, start, false)
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		c.record(ctx, start, false)
		return nil, fmt.Errorf("read response body: %w", err)
	}

	response := &Response{Response: resp, body: raw}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if response.IsError() {
		c.record(ctx, start, false)
		if r.onError != nil {
			if herr := r.onError(resp.StatusCode, raw); herr != nil {
				span.SetStatus(codes.Error, herr.Error())
				return response, herr
			}
		}
		return response, nil
	}

	if r.result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, r.result); err != nil {
			span.RecordError(err)
			c.record(ctx, start, false)
			return response, fmt.Errorf("decode response: %w", err)
		}
	}

	c.record(ctx, start, true)
	return response, nil
}

func (r *Request) encodeBody() (io.Reader, error) {
	switch b := r.body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	case io.Reader:
		return b, nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		if _, ok := r.headers["Content-Type"]; !ok {
			r.headers["Content-Type"] = "application/json"
		}
		return bytes.NewReader(raw), nil
	}
}
