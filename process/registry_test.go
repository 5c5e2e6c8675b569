package process

import "testing"

func TestNewRegistryReservesPID1ForShell(t *testing.T) {
	r := NewRegistry()
	p, ok := r.Get(1)
	if !ok || p.Command != "shell" {
		t.Fatalf("Get(1) = %+v, %v, want shell process", p, ok)
	}
	if err := r.Kill(1, "KILL"); err != ErrShellProcess {
		t.Fatalf("Kill(1) = %v, want ErrShellProcess", err)
	}
	if err := r.Reap(1); err != ErrShellProcess {
		t.Fatalf("Reap(1) = %v, want ErrShellProcess", err)
	}
}

func TestSpawnAllocatesFromTwo(t *testing.T) {
	r := NewRegistry()
	pid1 := r.Spawn(SpawnRequest{Command: "echo"})
	pid2 := r.Spawn(SpawnRequest{Command: "ls"})
	if pid1 != 2 || pid2 != 3 {
		t.Fatalf("Spawn() pids = %d, %d, want 2, 3", pid1, pid2)
	}
}

func TestSpawnObservesPromiseAndBecomesZombie(t *testing.T) {
	r := NewRegistry()
	ch := make(chan Result, 1)
	pid := r.Spawn(SpawnRequest{Command: "sleep", Promise: ch})

	exited := make(chan struct{})
	p, _ := r.Get(pid)
	p.OnExit(func(code int, err error) { close(exited) })

	ch <- Result{ExitCode: 7}
	<-exited

	p, _ = r.Get(pid)
	if p.Status != Zombie || p.ExitCode == nil || *p.ExitCode != 7 {
		t.Fatalf("process after exit = %+v", p)
	}
}

func TestKillStopSignalOnlyStops(t *testing.T) {
	r := NewRegistry()
	pid := r.Spawn(SpawnRequest{Command: "cat"})
	if err := r.Kill(pid, "STOP"); err != nil {
		t.Fatalf("Kill(STOP) = %v", err)
	}
	p, _ := r.Get(pid)
	if p.Status != Stopped {
		t.Fatalf("status after STOP = %v, want Stopped", p.Status)
	}
	select {
	case <-p.Context().Done():
		t.Fatalf("context cancelled after STOP signal")
	default:
	}
}

func TestKillAbortsContext(t *testing.T) {
	r := NewRegistry()
	pid := r.Spawn(SpawnRequest{Command: "cat"})
	p, _ := r.Get(pid)
	if err := r.Kill(pid, "KILL"); err != nil {
		t.Fatalf("Kill() = %v", err)
	}
	select {
	case <-p.Context().Done():
	default:
		t.Fatalf("context not cancelled after KILL")
	}
}

func TestReapRequiresZombieOrStopped(t *testing.T) {
	r := NewRegistry()
	pid := r.Spawn(SpawnRequest{Command: "cat"})
	if err := r.Reap(pid); err == nil {
		t.Fatalf("Reap() on running process should fail")
	}
	r.UpdateStatus(pid, Zombie)
	if err := r.Reap(pid); err != nil {
		t.Fatalf("Reap() on zombie = %v", err)
	}
	if _, ok := r.Get(pid); ok {
		t.Fatalf("process still present after Reap()")
	}
}

func TestCollectZombiesRemovesOnlyZombies(t *testing.T) {
	r := NewRegistry()
	running := r.Spawn(SpawnRequest{Command: "cat"})
	zombie := r.Spawn(SpawnRequest{Command: "echo"})
	r.UpdateStatus(zombie, Zombie)

	collected := r.CollectZombies()
	if len(collected) != 1 || collected[0].PID != zombie {
		t.Fatalf("CollectZombies() = %+v, want just pid %d", collected, zombie)
	}
	if _, ok := r.Get(zombie); ok {
		t.Fatalf("zombie still tracked after collect")
	}
	if _, ok := r.Get(running); !ok {
		t.Fatalf("running process removed by collect")
	}
}

func TestBulkReaders(t *testing.T) {
	r := NewRegistry()
	fg := r.Spawn(SpawnRequest{Command: "vim", IsForeground: true})
	bg := r.Spawn(SpawnRequest{Command: "sleep", IsForeground: false})
	r.SetJobID(bg, 1)
	r.UpdateStatus(fg, Running)

	// the reserved shell (PID 1) is running too
	if got := r.GetRunning(); len(got) != 3 {
		t.Fatalf("GetRunning() = %d, want 3", len(got))
	}
	bgJobs := r.GetBackgroundJobs()
	if len(bgJobs) != 1 || bgJobs[0].PID != bg {
		t.Fatalf("GetBackgroundJobs() = %+v", bgJobs)
	}
	if p, ok := r.GetByJobID(1); !ok || p.PID != bg {
		t.Fatalf("GetByJobID(1) = %+v, %v", p, ok)
	}
}

func TestKillAllChildrenOf(t *testing.T) {
	r := NewRegistry()
	parent := r.Spawn(SpawnRequest{Command: "node"})
	child1 := r.Spawn(SpawnRequest{Command: "server-thread", PPID: parent})
	child2 := r.Spawn(SpawnRequest{Command: "server-thread", PPID: parent})

	if err := r.KillAllChildrenOf(parent, "KILL"); err != nil {
		t.Fatalf("KillAllChildrenOf() = %v", err)
	}
	p1, _ := r.Get(child1)
	p2, _ := r.Get(child2)
	select {
	case <-p1.Context().Done():
	default:
		t.Fatalf("child1 context not cancelled")
	}
	select {
	case <-p2.Context().Done():
	default:
		t.Fatalf("child2 context not cancelled")
	}
}
