package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jcdickinson/symdex/internal/rpc"
)

const (
	spawnWait = 5 * time.Second
	dialProbe = 100 * time.Millisecond

	// Doxygen imports of large remote sites take minutes.
	requestTimeout = 10 * time.Minute
)

// Client talks to a daemon over its unix socket.
type Client struct {
	socketPath string
	httpClient *http.Client
}

func NewClient(socketPath string) *Client {
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", socketPath)
	}
	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Transport: &http.Transport{DialContext: dial},
			Timeout:   requestTimeout,
		},
	}
}

// ConnectOrSpawn returns a client for the daemon listening on socketPath,
// starting a daemon process first when nothing answers there.
func ConnectOrSpawn(socketPath string) (*Client, error) {
	c := NewClient(socketPath)
	if c.IsAvailable() {
		return c, nil
	}
	if err := Spawn(); err != nil {
		return nil, fmt.Errorf("spawning daemon: %w", err)
	}
	if !c.WaitReady(spawnWait) {
		return nil, fmt.Errorf("daemon not listening on %s after %s", socketPath, spawnWait)
	}
	return c, nil
}

// WaitReady polls the socket until it accepts connections or limit passes.
func (c *Client) WaitReady(limit time.Duration) bool {
	tick := time.NewTicker(dialProbe)
	defer tick.Stop()
	timeout := time.After(limit)
	for {
		select {
		case <-tick.C:
			if c.IsAvailable() {
				return true
			}
		case <-timeout:
			return false
		}
	}
}

// IsAvailable reports whether something accepts connections on the socket.
func (c *Client) IsAvailable() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, dialProbe)
	if err != nil {
		return false
	}
	return conn.Close() == nil
}

// Build asks the daemon to build snapshots, passing progress messages to
// onProgress as they stream in.
func (c *Client) Build(ctx context.Context, snapshots []rpc.SnapshotSpec, onProgress func(string)) (*rpc.BuildResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/build", rpc.BuildRequest{Snapshots: snapshots})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result rpc.BuildResponse
	dec := json.NewDecoder(resp.Body)
	for dec.More() {
		var line rpc.ProgressLine
		if err := dec.Decode(&line); err != nil {
			return nil, fmt.Errorf("decoding progress: %w", err)
		}
		switch line.Type {
		case "progress":
			if onProgress != nil {
				onProgress(line.Message)
			}
		case "result":
			if line.Result != nil {
				result.Results = append(result.Results, *line.Result)
			}
		}
	}
	return &result, nil
}

func (c *Client) Lookup(ctx context.Context, req rpc.LookupRequest) (*rpc.LookupResponse, error) {
	return call[rpc.LookupResponse](ctx, c, http.MethodPost, "/lookup", req)
}

func (c *Client) Path(ctx context.Context, req rpc.PathRequest) (*rpc.PathResponse, error) {
	return call[rpc.PathResponse](ctx, c, http.MethodPost, "/path", req)
}

func (c *Client) Inheritance(ctx context.Context, req rpc.InheritanceRequest) (*rpc.InheritanceResponse, error) {
	return call[rpc.InheritanceResponse](ctx, c, http.MethodPost, "/inheritance", req)
}

func (c *Client) GetDoc(ctx context.Context, req rpc.GetDocRequest) (*rpc.GetDocResponse, error) {
	return call[rpc.GetDocResponse](ctx, c, http.MethodPost, "/get-doc", req)
}

func (c *Client) Remove(ctx context.Context, ref rpc.SnapshotRef) (*rpc.RemoveResponse, error) {
	return call[rpc.RemoveResponse](ctx, c, http.MethodPost, "/remove", rpc.RemoveRequest{SnapshotRef: ref})
}

func (c *Client) Status(ctx context.Context) (*rpc.StatusResponse, error) {
	return call[rpc.StatusResponse](ctx, c, http.MethodGet, "/status", nil)
}

// ClearCache drops the daemon's in-memory indexes and fetched scripts. all
// also deletes every stored snapshot.
func (c *Client) ClearCache(ctx context.Context, all bool) error {
	_, err := call[map[string]string](ctx, c, http.MethodPost, "/clear-cache", rpc.ClearCacheRequest{All: all})
	return err
}

func (c *Client) Shutdown(ctx context.Context) error {
	_, err := call[map[string]string](ctx, c, http.MethodPost, "/shutdown", nil)
	return err
}

// StatusError is returned for non-200 daemon responses. Message is the
// daemon's error text when it sent one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(body))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

// do sends a request with body encoded as JSON, or no body when it is nil.
// The caller closes the body of a 200 response; any other status is
// returned as a *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func call[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", path, err)
	}
	return &out, nil
}
