// Package dirclient is the typed HTTP client the peer client (PC) uses
// to call the six RPC-shaped endpoints the directory package exposes
// at POST /rpc/{Method}. It is the peer side of the same contract
// internal/directory/http.go serves.
package dirclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inventor7/p2p/internal/apierr"
	"github.com/inventor7/p2p/internal/directory"
)

// Client talks to a single directory server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client bound to baseURL (e.g. "http://127.0.0.1:8080"),
// with an explicit bounded per-call timeout instead of the zero-value
// http.Client default of no timeout at all.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "could not encode request", err)
	}

	url := c.baseURL + "/rpc/" + method
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "could not build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return apierr.Wrap(apierr.KindUnavailable, fmt.Sprintf("directory unreachable for %s", method), err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "could not read directory response", err)
	}

	if httpResp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &errBody)
		if errBody.Error == "" {
			errBody.Error = fmt.Sprintf("directory returned status %d", httpResp.StatusCode)
		}
		return apierr.New(kindForStatus(httpResp.StatusCode), errBody.Error)
	}

	if err := json.Unmarshal(raw, resp); err != nil {
		return apierr.Wrap(apierr.KindInternal, "could not decode directory response", err)
	}
	return nil
}

func kindForStatus(status int) apierr.Kind {
	switch status {
	case http.StatusUnauthorized:
		return apierr.KindAuth
	case http.StatusConflict:
		return apierr.KindConflict
	case http.StatusTooManyRequests:
		return apierr.KindRateLimited
	case http.StatusBadRequest:
		return apierr.KindBadRequest
	case http.StatusNotFound:
		return apierr.KindNotFound
	case http.StatusServiceUnavailable:
		return apierr.KindUnavailable
	default:
		return apierr.KindInternal
	}
}

func (c *Client) Login(ctx context.Context, req directory.LoginRequest) (*directory.LoginResponse, error) {
	var resp directory.LoginResponse
	if err := c.call(ctx, "Login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context, req directory.LogoutRequest) (*directory.LogoutResponse, error) {
	var resp directory.LogoutResponse
	if err := c.call(ctx, "Logout", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Index(ctx context.Context, req directory.IndexRequest) (*directory.IndexResponse, error) {
	var resp directory.IndexResponse
	if err := c.call(ctx, "Index", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Search(ctx context.Context, req directory.SearchRequest) (*directory.SearchResponse, error) {
	var resp directory.SearchResponse
	if err := c.call(ctx, "Search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetPeerInfo(ctx context.Context, req directory.PeerInfoRequest) (*directory.PeerInfoResponse, error) {
	var resp directory.PeerInfoResponse
	if err := c.call(ctx, "GetPeerInfo", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Heartbeat(ctx context.Context, req directory.HeartbeatRequest) (*directory.HeartbeatResponse, error) {
	var resp directory.HeartbeatResponse
	if err := c.call(ctx, "Heartbeat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
