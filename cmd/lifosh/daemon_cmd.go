package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lifosh/lifosh"
	"github.com/lifosh/lifosh/daemon"
)

// DaemonCmd manages the background daemon process, the same
// start/stop/restart/status action set the mux this repo's transport is
// grounded on exposes.
type DaemonCmd struct {
	Action string `arg:"" optional:"" default:"status" enum:"start,stop,restart,status" help:"action to perform: start, stop, restart, or status (default)"`
}

func (c *DaemonCmd) Run(cctx *Context) error {
	ctx := context.Background()

	switch c.Action {
	case "start":
		return c.startDaemon(ctx, cctx)
	case "stop":
		return c.stopDaemon(ctx, cctx)
	case "restart":
		return c.restartDaemon(ctx, cctx)
	case "status":
		fallthrough
	default:
		return c.checkStatus(ctx, cctx)
	}
}

func (c *DaemonCmd) newServer(cctx *Context) (*daemon.Server, error) {
	return daemon.NewServer(cctx.AppBaseDir, lifosh.NewKernel())
}

func (c *DaemonCmd) checkStatus(ctx context.Context, cctx *Context) error {
	srv, err := c.newServer(cctx)
	if err != nil {
		return err
	}
	client, err := srv.NewClient(ctx)
	if err != nil {
		fmt.Println("Daemon is not running")
		return nil
	}
	status, err := client.Status(ctx)
	if err != nil {
		fmt.Println("Daemon is not running")
		return nil
	}
	fmt.Printf("Daemon is running (pid %d, started %s)\n", status.PID, humanize.Time(status.StartedAt))
	fmt.Printf("Host key fingerprint: %s\n", status.HostFingerprint)
	return nil
}

func (c *DaemonCmd) startDaemon(ctx context.Context, cctx *Context) error {
	srv, err := c.newServer(cctx)
	if err != nil {
		return err
	}
	if client, err := srv.NewClient(ctx); err == nil {
		if err := client.Ping(ctx); err == nil {
			fmt.Println("Daemon is already running")
			return nil
		}
	}
	return srv.ServeUnix(ctx)
}

func (c *DaemonCmd) stopDaemon(ctx context.Context, cctx *Context) error {
	srv, err := c.newServer(cctx)
	if err != nil {
		return err
	}
	client, err := srv.NewClient(ctx)
	if err != nil {
		fmt.Println("Daemon is not running")
		return nil
	}
	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Println("Daemon stopped")
	return nil
}

func (c *DaemonCmd) restartDaemon(ctx context.Context, cctx *Context) error {
	srv, err := c.newServer(cctx)
	if err != nil {
		return err
	}
	if client, err := srv.NewClient(ctx); err == nil {
		if err := client.Shutdown(ctx); err == nil {
			fmt.Println("Daemon stopped")
		}
	}

	cmd := exec.CommandContext(ctx, os.Args[0], "daemon", "start", "--log-file", cctx.LogFile, "--app-base-dir", cctx.AppBaseDir)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		conn, err := net.DialTimeout("unix", srv.SocketPath, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			fmt.Println("Daemon restarted successfully")
			return nil
		}
	}
	return fmt.Errorf("daemon failed to start")
}
