package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lifosh/lifosh/version"
)

func appBaseDirSocketPath(appBaseDir string) string {
	return filepath.Join(appBaseDir, defaultSocketFile)
}

func dialTimeout(socketPath string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", socketPath, timeout)
}

// Client is a CLI-side handle to a running daemon, reached over its unix
// socket.
type Client struct {
	server     *Server
	httpClient *http.Client
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var req *http.Request
	var err error

	if body != nil {
		reqBody, merr := json.Marshal(body)
		if merr != nil {
			return merr
		}
		req, err = http.NewRequestWithContext(ctx, method, "http://unix"+path, strings.NewReader(string(reqBody)))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, "http://unix"+path, nil)
		if err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// Ping checks that the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var resp map[string]string
	return c.doRequest(ctx, http.MethodGet, "/ping", nil, &resp)
}

// Version fetches the daemon's build version.
func (c *Client) Version(ctx context.Context) (version.Info, error) {
	var info version.Info
	if err := c.doRequest(ctx, http.MethodGet, "/version", nil, &info); err != nil {
		return version.Info{}, err
	}
	return info, nil
}

// Status fetches the daemon's pid and host key fingerprint, for `lifosh
// daemon status`.
func (c *Client) Status(ctx context.Context) (StatusInfo, error) {
	var info StatusInfo
	if err := c.doRequest(ctx, http.MethodGet, "/status", nil, &info); err != nil {
		return StatusInfo{}, err
	}
	return info, nil
}

// PS fetches the daemon's process table.
func (c *Client) PS(ctx context.Context) ([]ProcessInfo, error) {
	var procs []ProcessInfo
	if err := c.doRequest(ctx, http.MethodGet, "/ps/list", nil, &procs); err != nil {
		return nil, err
	}
	return procs, nil
}

// KillProcess asks the daemon to signal pid, defaulting signal to "TERM".
func (c *Client) KillProcess(ctx context.Context, pid int, signal string) error {
	if signal == "" {
		signal = "TERM"
	}
	var resp map[string]string
	return c.doRequest(ctx, http.MethodPost, "/ps/kill", KillRequest{PID: pid, Signal: signal}, &resp)
}

// Jobs fetches the daemon's job table.
func (c *Client) Jobs(ctx context.Context) ([]JobInfo, error) {
	var jobs []JobInfo
	if err := c.doRequest(ctx, http.MethodGet, "/jobs/list", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// JobFg blocks until jobID completes, returning its final status.
func (c *Client) JobFg(ctx context.Context, jobID int) (JobInfo, error) {
	var info JobInfo
	if err := c.doRequest(ctx, http.MethodPost, "/jobs/fg", JobIDRequest{JobID: jobID}, &info); err != nil {
		return JobInfo{}, err
	}
	return info, nil
}

// JobBg resumes a stopped job in the background, returning its new status.
func (c *Client) JobBg(ctx context.Context, jobID int) (JobInfo, error) {
	var info JobInfo
	if err := c.doRequest(ctx, http.MethodPost, "/jobs/bg", JobIDRequest{JobID: jobID}, &info); err != nil {
		return JobInfo{}, err
	}
	return info, nil
}

// Ports fetches the daemon's open virtual HTTP ports.
func (c *Client) Ports(ctx context.Context) ([]int, error) {
	var ports []int
	if err := c.doRequest(ctx, http.MethodGet, "/ports/list", nil, &ports); err != nil {
		return nil, err
	}
	return ports, nil
}

// PortLookup reports whether a virtual port has a listener bound.
func (c *Client) PortLookup(ctx context.Context, port int) (PortLookupResult, error) {
	var result PortLookupResult
	path := fmt.Sprintf("/ports/lookup?port=%d", port)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return PortLookupResult{}, err
	}
	return result, nil
}

// FSStat fetches VFS metadata for path from the daemon's shared kernel.
func (c *Client) FSStat(ctx context.Context, path string) (FSStatResult, error) {
	var result FSStatResult
	reqPath := fmt.Sprintf("/fs/stat?path=%s", urlQueryEscape(path))
	if err := c.doRequest(ctx, http.MethodGet, reqPath, nil, &result); err != nil {
		return FSStatResult{}, err
	}
	return result, nil
}

// FSRead fetches the raw bytes of path from the daemon's shared kernel VFS.
func (c *Client) FSRead(ctx context.Context, path string) ([]byte, error) {
	reqURL := "http://unix/fs/read?path=" + urlQueryEscape(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon not running: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("%s", errResp.Error)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FSWrite writes data to path in the daemon's shared kernel VFS.
func (c *Client) FSWrite(ctx context.Context, path string, data []byte) error {
	var resp map[string]string
	return c.doRequest(ctx, http.MethodPost, "/fs/write", FSWriteRequest{Path: path, Data: data}, &resp)
}

// Run submits a shell line to a fresh session against the daemon's shared
// kernel and returns its captured output.
func (c *Client) Run(ctx context.Context, cwd, line string) (RunResult, error) {
	var result RunResult
	if err := c.doRequest(ctx, http.MethodPost, "/run", RunRequest{Line: line, Cwd: cwd}, &result); err != nil {
		return RunResult{}, err
	}
	return result, nil
}

func urlQueryEscape(s string) string {
	return url.QueryEscape(s)
}

// Shutdown asks the daemon to stop and waits for its socket to disappear.
func (c *Client) Shutdown(ctx context.Context) error {
	var resp map[string]string
	if err := c.doRequest(ctx, http.MethodPost, "/shutdown", nil, &resp); err != nil {
		return err
	}
	time.Sleep(200 * time.Millisecond)
	if _, err := os.Stat(c.server.SocketPath); err == nil {
		return fmt.Errorf("daemon may not have shut down cleanly")
	}
	return nil
}

// EnsureDaemon connects to the daemon at appBaseDir, starting it in the
// background if it isn't already running or is running a stale version. A
// fresh CLI invocation racing the daemon's own startup retries the ping
// with exponential backoff rather than failing outright.
func EnsureDaemon(ctx context.Context, appBaseDir, logFile string) error {
	socketPath := appBaseDirSocketPath(appBaseDir)

	if pingSocket(socketPath) {
		if err := checkDaemonVersion(ctx, appBaseDir); err == nil {
			return nil
		}
		if err := shutdownDaemon(appBaseDir); err != nil {
			// continue; the new daemon will fail to bind if the old one
			// is still alive, surfacing a clearer error than swallowing
			// this one.
			_ = err
		}
	}

	cmd := exec.Command(os.Args[0], "daemon", "start", "--log-file", logFile, "--app-base-dir", appBaseDir)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return err
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if pingSocket(socketPath) {
			return struct{}{}, nil
		}
		return struct{}{}, fmt.Errorf("daemon not ready yet")
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(20))
	if err != nil {
		return fmt.Errorf("daemon failed to start: %w", err)
	}
	return nil
}

func pingSocket(socketPath string) bool {
	conn, err := dialTimeout(socketPath, 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func checkDaemonVersion(ctx context.Context, appBaseDir string) error {
	srv := &Server{AppBaseDir: appBaseDir, SocketPath: appBaseDirSocketPath(appBaseDir)}
	client, err := srv.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	daemonVersion, err := client.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get daemon version: %w", err)
	}
	cliVersion := version.Get()
	if !cliVersion.Equal(daemonVersion) {
		return fmt.Errorf("version mismatch: CLI=%s, Daemon=%s", cliVersion.GitCommit, daemonVersion.GitCommit)
	}
	return nil
}

func shutdownDaemon(appBaseDir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := &Server{AppBaseDir: appBaseDir, SocketPath: appBaseDirSocketPath(appBaseDir)}
	client, err := srv.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return client.Shutdown(ctx)
}
