package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lifosh/lifosh"
	"github.com/lifosh/lifosh/job"
)

type noopHistory struct{}

func (noopHistory) Entries() []string { return nil }

func TestCollectAndReportDonePrintsFinishedJob(t *testing.T) {
	kernel := lifosh.NewKernel()
	if err := kernel.VFS().Mkdir("/root", true); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	sess := kernel.NewSession(noopHistory{})
	sess.Interp.Cwd = "/root"

	var stdout, stderr strings.Builder
	if _, err := sess.Interp.RunLine(context.Background(), "node -e 'process.exit(0)' &", nil, &stdout, &stderr); err != nil {
		t.Fatalf("RunLine: %v", err)
	}

	jobs := sess.Interp.Jobs.List()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job registered, got %d", len(jobs))
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if j, ok := sess.Interp.Jobs.Get(jobs[0].ID); ok && j.Status == job.Done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	var out strings.Builder
	collectAndReportDone(sess, &out)
	if !strings.Contains(out.String(), "Done") {
		t.Fatalf("expected a Done line, got %q", out.String())
	}
}
