package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/lifosh/lifosh"
	"github.com/lifosh/lifosh/process"
)

func startTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	dir := t.TempDir()
	kernel := lifosh.NewKernel()
	srv, err := NewServer(dir, kernel)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.ServeUnix(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pingSocket(srv.SocketPath) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return srv, func() { srv.Shutdown(context.Background()) }
}

func TestServerPingAndVersion(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	client, err := srv.NewClient(context.Background())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := client.Version(context.Background()); err != nil {
		t.Fatalf("Version: %v", err)
	}
}

func TestServerStatusReportsHostFingerprint(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	client, err := srv.NewClient(context.Background())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.PID == 0 {
		t.Fatalf("expected nonzero pid")
	}
	if status.HostFingerprint[:7] != "SHA256:" {
		t.Fatalf("got fingerprint %q", status.HostFingerprint)
	}
}

func TestServerPSAndJobsStartEmpty(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	client, err := srv.NewClient(context.Background())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	procs, err := client.PS(context.Background())
	if err != nil {
		t.Fatalf("PS: %v", err)
	}
	if len(procs) != 1 || procs[0].Command != "shell" {
		t.Fatalf("expected the reserved shell process, got %v", procs)
	}
	jobs, err := client.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs yet, got %v", jobs)
	}
}

func TestServerRunExecutesShellLine(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	client, err := srv.NewClient(context.Background())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	result, err := client.Run(context.Background(), "/", "echo hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 || result.Stdout != "hello\n" {
		t.Fatalf("got %+v", result)
	}
}

func TestServerFSWriteThenReadRoundTrips(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	client, err := srv.NewClient(context.Background())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.FSWrite(context.Background(), "/greeting.txt", []byte("hi there")); err != nil {
		t.Fatalf("FSWrite: %v", err)
	}
	data, err := client.FSRead(context.Background(), "/greeting.txt")
	if err != nil {
		t.Fatalf("FSRead: %v", err)
	}
	if string(data) != "hi there" {
		t.Fatalf("got %q", data)
	}
	st, err := client.FSStat(context.Background(), "/greeting.txt")
	if err != nil {
		t.Fatalf("FSStat: %v", err)
	}
	if st.Size != int64(len("hi there")) {
		t.Fatalf("got size %d", st.Size)
	}
}

func TestServerPortLookupReportsUnbound(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	client, err := srv.NewClient(context.Background())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	result, err := client.PortLookup(context.Background(), 8080)
	if err != nil {
		t.Fatalf("PortLookup: %v", err)
	}
	if result.Bound {
		t.Fatalf("expected port 8080 to be unbound")
	}
}

func TestServerPSKillStopsProcess(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	result := make(chan process.Result, 1)
	pid := srv.kernel.Processes().Spawn(process.SpawnRequest{
		Command: "spin",
		Promise: result,
	})
	proc, _ := srv.kernel.Processes().Get(pid)

	client, err := srv.NewClient(context.Background())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.KillProcess(context.Background(), pid, "TERM"); err != nil {
		t.Fatalf("KillProcess: %v", err)
	}
	select {
	case <-proc.Context().Done():
	case <-time.After(time.Second):
		t.Fatalf("killed process context was never cancelled")
	}
}

func TestServerShutdownRemovesSocket(t *testing.T) {
	srv, _ := startTestServer(t)
	client, err := srv.NewClient(context.Background())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if pingSocket(srv.SocketPath) {
		t.Fatalf("expected socket to be gone after shutdown")
	}
}
