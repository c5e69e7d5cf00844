package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/prismwall/prismd/internal/prism/service"
	"github.com/prismwall/prismd/internal/prism/types"
)

// Client talks to a running daemon over its unix socket.
type Client struct {
	http *http.Client
	base string
}

func NewClient(socketPath string) *Client {
	tr := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		http: &http.Client{Transport: tr, Timeout: 10 * time.Second},
		base: "http://prismd",
	}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("prismd: %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *Client) Wallpapers(ctx context.Context) ([]types.WallpaperRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/wallpapers", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", contentTypeProtobuf)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var lv structpb.ListValue
	if err := proto.Unmarshal(body, &lv); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rowsFromProto(&lv), nil
}

func (c *Client) Approve(ctx context.Context, msg types.ApprovalMessage) error {
	data, err := proto.Marshal(approvalToProto(msg))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/approvals", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentTypeProtobuf)
	_, err = c.do(req)
	return err
}

func (c *Client) Grants(ctx context.Context) ([]types.CallerGrant, error) {
	var out []types.CallerGrant
	return out, c.getJSON(ctx, "/v1/grants", &out)
}

func (c *Client) SetAccess(ctx context.Context, identity string, allowed bool) (types.CallerGrant, error) {
	var out types.CallerGrant
	err := c.sendJSON(ctx, http.MethodPut, "/v1/grants/"+url.PathEscape(identity), types.SetAccessRequest{Allowed: allowed}, &out)
	return out, err
}

func (c *Client) State(ctx context.Context) (service.State, error) {
	var out service.State
	return out, c.getJSON(ctx, "/v1/state", &out)
}

func (c *Client) Sync(ctx context.Context) error {
	return c.sendJSON(ctx, http.MethodPost, "/v1/state/sync", nil, nil)
}

func (c *Client) SetNotifications(ctx context.Context, enabled bool) error {
	return c.sendJSON(ctx, http.MethodPut, "/v1/settings/notifications", notificationsRequest{Enabled: enabled}, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var rd io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	body, err := c.do(req)
	if err != nil || out == nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		return nil, &APIError{Status: resp.StatusCode, Code: eb.Error.Code, Message: eb.Error.Message}
	}
	return body, nil
}
