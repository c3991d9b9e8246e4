// Package client calls the motor, sensor and coordinator nodes over HTTP
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/calvinmclean/babyapi"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/retry"
)

// ErrFailed is returned when a node answers FAIL or a non-200 status
var ErrFailed = errors.New("node replied FAIL")

// resource only exists so babyapi can build URLs and send requests for endpoints that are not CRUD
type resource struct {
	// include NilResource so we don't implement Render/Bind which are not needed
	*babyapi.NilResource
}

func (resource) GetID() string {
	return ""
}

type caller struct {
	addr   string
	client *babyapi.Client[*resource]
	retry  retry.Config
}

func newCaller(addr string, cfg retry.Config) caller {
	addr = strings.TrimSuffix(addr, "/")
	return caller{
		addr:   addr,
		client: babyapi.NewClient[*resource](addr, ""),
		retry:  cfg,
	}
}

// url builds addr+path with any params as the query string
func (c caller) url(path string, params url.Values) string {
	u := c.addr + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// do sends the request with the retry policy. Transport failures wrap sortcell.ErrRemoteUnreachable
// and are retried. Any answer other than 200 is final
func (c caller) do(ctx context.Context, method, u string, target *json.RawMessage) (string, error) {
	return retry.DoWithResult(ctx, c.retry, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, method, u, http.NoBody)
		if err != nil {
			return "", retry.NonRetryable(fmt.Errorf("error creating request: %w", err))
		}

		var t any
		if target != nil {
			t = target
		}
		resp, err := c.client.MakeGenericRequest(req, t)
		var urlErr *url.Error
		switch {
		case errors.As(err, &urlErr):
			return "", fmt.Errorf("%w: error making request: %w", sortcell.ErrRemoteUnreachable, err)
		case err != nil:
			return "", retry.NonRetryable(fmt.Errorf("%w: error making request: %w", ErrFailed, err))
		}
		if resp.Response.StatusCode != http.StatusOK {
			return "", retry.NonRetryable(fmt.Errorf("%w: unexpected status code: %d, response: %v", ErrFailed, resp.Response.StatusCode, resp.Body))
		}

		return resp.Body, nil
	})
}

// action sends a command and interprets the plain-text reply
func (c caller) action(ctx context.Context, method, u string) error {
	body, err := c.do(ctx, method, u, nil)
	if err != nil {
		return err
	}

	switch strings.TrimSpace(body) {
	case "OK":
		return nil
	case "ALREADY RUNNING":
		return sortcell.ErrAlreadyRunning
	default:
		return fmt.Errorf("%w: %s", ErrFailed, body)
	}
}

// read sends a GET and decodes the JSON reply into out
func (c caller) read(ctx context.Context, u string, out any) error {
	var raw json.RawMessage
	body, err := c.do(ctx, http.MethodGet, u, &raw)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		raw = json.RawMessage(body)
	}

	err = json.Unmarshal(raw, out)
	if err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// Ping fetches the node's index page
func (c caller) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.url("/", nil), nil)
	return err
}

// Addr is the base URL of the node
func (c caller) Addr() string {
	return c.addr
}

// resourceURL builds the URL for id under a babyapi client's base path
func resourceURL(c *babyapi.Client[*resource], id int, params url.Values) string {
	u, _ := c.URL(strconv.Itoa(id))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}
