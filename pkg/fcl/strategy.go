package fcl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

// HTTPExecutor runs HTTP/POST services: the signable is posted to the
// service endpoint and PENDING answers are polled on their updates service
// until the service approves or declines.
type HTTPExecutor struct {
	Client  *http.Client
	MinPoll time.Duration
	MaxPoll time.Duration
	// Header is sent with every request, e.g. a bearer token for a backend
	// authz service.
	Header http.Header
}

func NewHTTPExecutor(client *http.Client) *HTTPExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExecutor{
		Client:  client,
		MinPoll: 500 * time.Millisecond,
		MaxPoll: 5 * time.Second,
	}
}

func (e *HTTPExecutor) Exec(ctx context.Context, service Service, signable Signable) (*Response, error) {
	return e.post(ctx, service, signable)
}

// PreAuthz sends preSignable to a pre-authz service and waits for its
// answer the same way Exec does.
func (e *HTTPExecutor) PreAuthz(ctx context.Context, service Service, preSignable PreSignable) (*Response, error) {
	return e.post(ctx, service, preSignable)
}

func (e *HTTPExecutor) post(ctx context.Context, service Service, payload any) (*Response, error) {
	if service.Method != MethodHTTPPost {
		return nil, fmt.Errorf("%w: unsupported service method %q", ErrMissingAuthz, service.Method)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", payload, err)
	}

	response, err := e.call(ctx, http.MethodPost, service, body)
	if err != nil {
		return nil, err
	}

	b := &backoff.Backoff{
		Min:    e.MinPoll,
		Max:    e.MaxPoll,
		Factor: 2,
		Jitter: true,
	}
	for response.Status == ResponsePending {
		updates := response.Updates
		if updates == nil || updates.Endpoint == "" {
			return nil, &DecodeError{Field: "updates", Err: errors.New("pending response has no updates service")}
		}

		wait := b.Duration()
		log.Trace().
			Str("endpoint", updates.Endpoint).
			Dur("wait", wait).
			Msg("Authz service pending, polling")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		response, err = e.call(ctx, http.MethodGet, *updates, nil)
		if err != nil {
			return nil, err
		}
	}
	return response, nil
}

func (e *HTTPExecutor) call(ctx context.Context, method string, service Service, body []byte) (*Response, error) {
	endpoint, err := serviceURL(service)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	for k, values := range e.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("authz service %s responded %d: %s", endpoint, res.StatusCode, string(data))
	}
	return DecodeResponse(data)
}

func serviceURL(service Service) (string, error) {
	u, err := url.Parse(service.Endpoint)
	if err != nil {
		return "", fmt.Errorf("service endpoint %q: %w", service.Endpoint, err)
	}
	if len(service.Params) > 0 {
		query := u.Query()
		for k, v := range service.Params {
			query.Set(k, v)
		}
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}
