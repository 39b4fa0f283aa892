package xclient

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Request is the transport-neutral shape of one HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
}

// Response carries what the fetcher needs from an HTTP exchange.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Requester sends one request. A non-nil error means no status was received.
type Requester interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// HTTPRequester is the net/http backed Requester.
type HTTPRequester struct {
	Client *http.Client
}

func NewHTTPRequester(timeout time.Duration) *HTTPRequester {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRequester{Client: &http.Client{Timeout: timeout}}
}

func (r *HTTPRequester) Send(ctx context.Context, req Request) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	hr, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return Response{}, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	if hr.Header.Get("Accept") == "" {
		hr.Header.Set("Accept", "application/json")
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hr)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
