// Package daemon implements the mux transport: a unix-socket JSON-over-HTTP
// server exposing one Kernel to every CLI invocation on the host, and a
// client the CLI uses to reach it. A CLI command that wants to touch the
// same virtual filesystem and process table as a long-running REPL talks
// to the daemon instead of constructing its own Kernel.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lifosh/lifosh"
	"github.com/lifosh/lifosh/identity"
	"github.com/lifosh/lifosh/job"
	"github.com/lifosh/lifosh/shell"
	"github.com/lifosh/lifosh/version"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	defaultSocketFile = "lifoshd.sock"
	defaultLockFile   = "lifoshd.lock"
	hostKeyFilename   = "host_key"
)

// Server is the daemon process: one Kernel, reachable over one unix
// socket, for the lifetime of the daemon.
type Server struct {
	AppBaseDir string
	SocketPath string

	kernel    *lifosh.Kernel
	hostKey   *identity.HostKey
	startedAt time.Time

	listener net.Listener
	lockFile *os.File
	shutdown chan any
	tracer   *sdktrace.TracerProvider
}

// NewServer wires a daemon around kernel, storing its socket and lock
// files under appBaseDir.
func NewServer(appBaseDir string, kernel *lifosh.Kernel) (*Server, error) {
	hostKey, err := identity.LoadOrCreateHostKey(identity.RealKeyStore{}, filepath.Join(appBaseDir, hostKeyFilename))
	if err != nil {
		return nil, fmt.Errorf("loading host key: %w", err)
	}
	return &Server{
		AppBaseDir: appBaseDir,
		SocketPath: filepath.Join(appBaseDir, defaultSocketFile),
		kernel:     kernel,
		hostKey:    hostKey,
		startedAt:  time.Now(),
	}, nil
}

// NewClient builds a client that dials this daemon's socket.
func (s *Server) NewClient(ctx context.Context) (*Client, error) {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return net.Dial("unix", s.SocketPath)
			},
		},
	}
	return &Client{server: s, httpClient: httpClient}, nil
}

// ServeUnix acquires the lock file, opens the unix socket, and blocks
// until shutdown.
func (s *Server) ServeUnix(ctx context.Context) error {
	lockFilePath := filepath.Join(s.AppBaseDir, defaultLockFile)
	slog.InfoContext(ctx, "Server.ServeUnix", "socketPath", s.SocketPath, "pid", os.Getpid(), "lockFilePath", lockFilePath)
	lockFile, err := acquireLock(lockFilePath)
	if err != nil {
		return err
	}
	s.lockFile = lockFile

	if err := s.startDaemonServer(ctx); err != nil {
		slog.ErrorContext(ctx, "Server.ServeUnix startDaemonServer", "error", err)
		return err
	}
	return nil
}

func (s *Server) startDaemonServer(ctx context.Context) error {
	slog.InfoContext(ctx, "Server.startDaemonServer", "socketPath", s.SocketPath)
	os.Remove(s.SocketPath)

	listener, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.SocketPath, 0o600); err != nil {
		listener.Close()
		return err
	}

	if tp, err := initTracer(ctx); err != nil {
		slog.WarnContext(ctx, "Server.startDaemonServer initTracer", "error", err)
	} else {
		s.tracer = tp
	}

	s.listener = listener
	s.shutdown = make(chan any)

	go s.waitForShutdown(ctx)
	go s.serveHTTP(ctx)

	<-s.shutdown
	return nil
}

func (s *Server) waitForShutdown(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-sigChan:
		s.Shutdown(ctx)
	case <-s.shutdown:
	}
}

// Shutdown closes the listener, removes the socket and lock files, and the
// trace exporter concurrently (each touches a distinct fd, none depend on
// the others finishing first), then signals ServeUnix to return.
func (s *Server) Shutdown(ctx context.Context) {
	lockFilePath := filepath.Join(s.AppBaseDir, defaultLockFile)

	slog.InfoContext(ctx, "Server.Shutdown", "pid", os.Getpid())

	var g errgroup.Group
	g.Go(func() error {
		if s.listener != nil {
			s.listener.Close()
		}
		return os.Remove(s.SocketPath)
	})
	g.Go(func() error {
		if s.lockFile == nil {
			return nil
		}
		syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN)
		s.lockFile.Close()
		return os.Remove(lockFilePath)
	})
	g.Go(func() error {
		shutdownTracer(ctx, s.tracer)
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Server.Shutdown", "error", err)
	}
	close(s.shutdown)
}

func (s *Server) serveHTTP(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/shutdown", traced("daemon.shutdown", s.handleShutdown))
	mux.HandleFunc("/ping", traced("daemon.ping", s.handlePing))
	mux.HandleFunc("/version", traced("daemon.version", s.handleVersion))
	mux.HandleFunc("/status", traced("daemon.status", s.handleStatus))
	mux.HandleFunc("/ps/list", traced("daemon.ps.list", s.handlePS))
	mux.HandleFunc("/ps/kill", traced("daemon.ps.kill", s.handlePSKill))
	mux.HandleFunc("/jobs/list", traced("daemon.jobs.list", s.handleJobs))
	mux.HandleFunc("/jobs/fg", traced("daemon.jobs.fg", s.handleJobsFg))
	mux.HandleFunc("/jobs/bg", traced("daemon.jobs.bg", s.handleJobsBg))
	mux.HandleFunc("/ports/list", traced("daemon.ports.list", s.handlePorts))
	mux.HandleFunc("/ports/lookup", traced("daemon.ports.lookup", s.handlePortLookup))
	mux.HandleFunc("/fs/stat", traced("daemon.fs.stat", s.handleFSStat))
	mux.HandleFunc("/fs/read", traced("daemon.fs.read", s.handleFSRead))
	mux.HandleFunc("/fs/write", traced("daemon.fs.write", s.handleFSWrite))
	mux.HandleFunc("/run", traced("daemon.run", s.handleRun))

	server := &http.Server{Handler: mux}
	server.Serve(s.listener)
}

func writeJSONError(w http.ResponseWriter, err error, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.Shutdown(r.Context())
	}()
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "pong"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, version.Get())
}

// StatusInfo is what `lifosh daemon status` prints: the daemon's pid and
// its host key fingerprint, so a user can confirm which daemon instance
// (and which key) a CLI session is talking to.
type StatusInfo struct {
	PID             int       `json:"pid"`
	HostFingerprint string    `json:"hostFingerprint"`
	StartedAt       time.Time `json:"startedAt"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	fp, err := s.hostKey.Fingerprint()
	if err != nil {
		writeJSONError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, StatusInfo{PID: os.Getpid(), HostFingerprint: fp, StartedAt: s.startedAt})
}

// ProcessInfo is the wire shape of one process.Process row for `ps`.
type ProcessInfo struct {
	PID      int    `json:"pid"`
	PPID     int    `json:"ppid"`
	Nickname string `json:"nickname"`
	Command  string `json:"command"`
	Status   string `json:"status"`
}

func (s *Server) handlePS(w http.ResponseWriter, r *http.Request) {
	procs := s.kernel.Processes().GetAll()
	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		out = append(out, ProcessInfo{PID: p.PID, PPID: p.PPID, Nickname: p.Nickname, Command: p.Command, Status: p.Status.String()})
	}
	writeJSON(w, out)
}

// JobInfo is the wire shape of one job.Job row for `jobs`.
type JobInfo struct {
	ID      int    `json:"id"`
	PID     int    `json:"pid"`
	Command string `json:"command"`
	Status  string `json:"status"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.kernel.Jobs().List()
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, JobInfo{ID: j.ID, PID: j.PID, Command: j.Command, Status: j.Status.String()})
	}
	writeJSON(w, out)
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.kernel.Ports().List())
}

// PortLookupResult reports whether a virtual port has a listener bound,
// for `lifosh ports lookup <port>` against a daemon-held kernel.
type PortLookupResult struct {
	Port  int  `json:"port"`
	Bound bool `json:"bound"`
}

func (s *Server) handlePortLookup(w http.ResponseWriter, r *http.Request) {
	port, err := strconv.Atoi(r.URL.Query().Get("port"))
	if err != nil {
		writeJSONError(w, fmt.Errorf("invalid port: %w", err), http.StatusBadRequest)
		return
	}
	_, bound := s.kernel.Ports().Lookup(port)
	writeJSON(w, PortLookupResult{Port: port, Bound: bound})
}

// KillRequest is the wire shape of a `/ps/kill` body.
type KillRequest struct {
	PID    int    `json:"pid"`
	Signal string `json:"signal"`
}

func (s *Server) handlePSKill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req KillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	if req.Signal == "" {
		req.Signal = "TERM"
	}
	if err := s.kernel.Processes().Kill(req.PID, req.Signal); err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// JobIDRequest is the wire shape of a `/jobs/fg` or `/jobs/bg` body.
type JobIDRequest struct {
	JobID int `json:"jobId"`
}

func (s *Server) handleJobsFg(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req JobIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	for {
		j, ok := s.kernel.Jobs().Get(req.JobID)
		if !ok {
			writeJSONError(w, fmt.Errorf("no such job: %d", req.JobID), http.StatusNotFound)
			return
		}
		if j.Status == job.Done {
			writeJSON(w, JobInfo{ID: j.ID, PID: j.PID, Command: j.Command, Status: j.Status.String()})
			return
		}
		select {
		case <-r.Context().Done():
			writeJSONError(w, r.Context().Err(), http.StatusRequestTimeout)
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (s *Server) handleJobsBg(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req JobIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	j, ok := s.kernel.Jobs().Get(req.JobID)
	if !ok {
		writeJSONError(w, fmt.Errorf("no such job: %d", req.JobID), http.StatusNotFound)
		return
	}
	s.kernel.Jobs().SetStatus(req.JobID, job.Running)
	writeJSON(w, JobInfo{ID: j.ID, PID: j.PID, Command: j.Command, Status: job.Running.String()})
}

// FSStatResult is the wire shape of a `/fs/stat` response.
type FSStatResult struct {
	Path  string    `json:"path"`
	Type  string    `json:"type"`
	Size  int64     `json:"size"`
	Mtime time.Time `json:"mtime"`
}

func (s *Server) handleFSStat(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	st, err := s.kernel.VFS().Stat(p)
	if err != nil {
		writeJSONError(w, err, http.StatusNotFound)
		return
	}
	writeJSON(w, FSStatResult{Path: p, Type: st.Type.String(), Size: st.Size, Mtime: st.Mtime})
}

func (s *Server) handleFSRead(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	data, err := s.kernel.VFS().ReadFile(p)
	if err != nil {
		writeJSONError(w, err, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// FSWriteRequest is the wire shape of a `/fs/write` body.
type FSWriteRequest struct {
	Path string `json:"path"`
	Data []byte `json:"data"`
}

func (s *Server) handleFSWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req FSWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	if err := s.kernel.VFS().WriteFile(req.Path, req.Data); err != nil {
		writeJSONError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// RunRequest is the wire shape of a `/run` body: one shell line submitted
// to a fresh session against the daemon's shared kernel.
type RunRequest struct {
	Line string `json:"line"`
	Cwd  string `json:"cwd"`
}

// RunResult is the wire shape of a `/run` response.
type RunResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}

	sess := s.kernel.NewSession(noHistory{})
	if req.Cwd != "" {
		sess.Interp.Cwd = req.Cwd
	}

	var stdout, stderr bytes.Buffer
	code, err := sess.Interp.RunLine(r.Context(), req.Line, nil, &stdout, &stderr)
	if err != nil {
		var exitReq *shell.ExitRequested
		if errors.As(err, &exitReq) {
			code = exitReq.Code
		} else {
			fmt.Fprintf(&stderr, "lifosh: %v\n", err)
			code = 1
		}
	}
	writeJSON(w, RunResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code})
}

// noHistory is a shell.History that keeps nothing, for the stateless
// sessions `/run` creates per request.
type noHistory struct{}

func (noHistory) Entries() []string { return nil }

func acquireLock(lockFile string) (*os.File, error) {
	file, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return nil, fmt.Errorf("daemon already running")
	}

	file.Truncate(0)
	fmt.Fprintf(file, "%d", os.Getpid())
	return file, nil
}
