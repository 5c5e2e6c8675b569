package process

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goombaio/namegenerator"
	multierror "github.com/hashicorp/go-multierror"
)

// SpawnRequest mirrors the argument shape passed to spawn({...}).
type SpawnRequest struct {
	Command      string
	Args         []string
	Cwd          string
	Env          map[string]string
	IsForeground bool
	PPID         int
	// Promise is the Go analogue of the JS promise a spawned command returns: a
	// channel-backed future the registry observes to learn the exit code.
	Promise <-chan Result
}

// Result is what a spawned command's Promise resolves or rejects with.
type Result struct {
	ExitCode int
	Err      error
}

// Registry is the process-wide PID table. PIDs are allocated monotonically
// from 2 (PID 1 is reserved for the first shell).
type Registry struct {
	mu       sync.Mutex
	next     int
	procs    map[int]*Process
	namer    namegenerator.Generator
	shellPID int
}

// NewRegistry creates an empty registry and reserves PID 1 for shellCommand.
func NewRegistry() *Registry {
	r := &Registry{
		next:  2,
		procs: map[int]*Process{},
		namer: namegenerator.NewNameGenerator(time.Now().UnixNano()),
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	r.procs[1] = &Process{
		PID:      1,
		Command:  "shell",
		Status:   Running,
		Nickname: r.namer.Generate(),
		ctx:      ctx,
		cancel:   cancel,
	}
	r.shellPID = 1
	return r
}

// Spawn registers a new process and returns its PID. An observer goroutine
// watches req.Promise and transitions the process to Zombie on settlement,
// an observer is attached to the promise as soon as the process is spawned.
func (r *Registry) Spawn(req SpawnRequest) int {
	r.mu.Lock()
	pid := r.next
	r.next++
	ctx, cancel := context.WithCancelCause(context.Background())
	p := &Process{
		PID:          pid,
		PPID:         req.PPID,
		Command:      req.Command,
		Args:         req.Args,
		Cwd:          req.Cwd,
		Env:          req.Env,
		StartTime:    time.Now(),
		Status:       Running,
		IsForeground: req.IsForeground,
		Nickname:     r.namer.Generate(),
		ctx:          ctx,
		cancel:       cancel,
	}
	r.procs[pid] = p
	r.mu.Unlock()

	if req.Promise != nil {
		go func() {
			res, ok := <-req.Promise
			r.mu.Lock()
			defer r.mu.Unlock()
			proc, exists := r.procs[pid]
			if !exists {
				return
			}
			code := res.ExitCode
			if res.Err != nil && code == 0 {
				code = 1
			}
			proc.ExitCode = &code
			proc.Status = Zombie
			if !ok {
				zero := 1
				proc.ExitCode = &zero
			}
			for _, hook := range proc.onExit {
				hook(code, res.Err)
			}
		}()
	}
	return pid
}

// Get returns the process record for pid, if present.
func (r *Registry) Get(pid int) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[pid]
	return p, ok
}

// GetByJobID returns the foreground/background process owning jobID.
func (r *Registry) GetByJobID(jobID int) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.procs {
		if p.JobID == jobID {
			return p, true
		}
	}
	return nil, false
}

// SetJobID associates pid with a job table entry.
func (r *Registry) SetJobID(pid, jobID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.procs[pid]; ok {
		p.JobID = jobID
	}
}

// UpdateStatus sets pid's status directly, used for STOP/TSTP: a
// STOP/TSTP signal only flips status to stopped and does not
// abort").
func (r *Registry) UpdateStatus(pid int, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.procs[pid]; ok {
		p.Status = status
	}
}

// ErrShellProcess is returned by Kill/Reap when the target is a shell
// process, which must never be killed or reaped.
var ErrShellProcess = fmt.Errorf("refusing to operate on a shell process")

// Kill aborts pid's context. signal "STOP"/"TSTP" only flips status to
// Stopped without aborting.
func (r *Registry) Kill(pid int, signal string) error {
	r.mu.Lock()
	p, ok := r.procs[pid]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such process: %d", pid)
	}
	if p.Command == "shell" {
		return ErrShellProcess
	}
	if signal == "STOP" || signal == "TSTP" {
		r.UpdateStatus(pid, Stopped)
		return nil
	}
	p.cancel(fmt.Errorf("killed by signal %s", signal))
	return nil
}

// Reap deletes pid if it is a zombie or stopped, refusing shell processes.
func (r *Registry) Reap(pid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[pid]
	if !ok {
		return nil
	}
	if p.Command == "shell" {
		return ErrShellProcess
	}
	if p.Status != Zombie && p.Status != Stopped {
		return fmt.Errorf("process %d is not reapable (status=%s)", pid, p.Status)
	}
	delete(r.procs, pid)
	return nil
}

// CollectZombies removes every zombie process and returns the records that
// were removed, so the shell prompt cycle can print "[n] Done cmd" lines.
// The reserved shell process is never collected.
func (r *Registry) CollectZombies() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zombies []*Process
	for pid, p := range r.procs {
		if p.Status == Zombie && p.Command != "shell" {
			zombies = append(zombies, p)
			delete(r.procs, pid)
		}
	}
	return zombies
}

// GetAll returns every tracked process.
func (r *Registry) GetAll() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	return out
}

// GetRunning returns processes currently in the Running state.
func (r *Registry) GetRunning() []*Process {
	return r.filter(func(p *Process) bool { return p.Status == Running })
}

// GetBackgroundJobs returns non-foreground processes that still have a job id.
func (r *Registry) GetBackgroundJobs() []*Process {
	return r.filter(func(p *Process) bool { return !p.IsForeground && p.JobID != 0 })
}

// GetZombies returns processes awaiting reap.
func (r *Registry) GetZombies() []*Process {
	return r.filter(func(p *Process) bool { return p.Status == Zombie })
}

func (r *Registry) filter(pred func(*Process) bool) []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Process
	for _, p := range r.procs {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out
}

// KillAllChildrenOf sends signal to every process whose PPID is pid.
// Errors from individual Kill calls are aggregated rather than stopping at
// the first failure.
func (r *Registry) KillAllChildrenOf(pid int, signal string) error {
	var result error
	for _, p := range r.GetAll() {
		if p.PPID == pid {
			if err := r.Kill(p.PID, signal); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result
}
