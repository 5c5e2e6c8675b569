package noderuntime

import (
	"sync"
	"time"

	"github.com/dop251/goja"
)

// timerEntry is a single setTimeout/setInterval registration.
type timerEntry struct {
	fn       goja.Callable
	args     []goja.Value
	fireAt   time.Time
	interval time.Duration
	repeat   bool
}

// timerQueue is a cooperative, single-threaded timer wheel: since there is
// no real event loop, setTimeout/setInterval just register a future
// callback that tick() fires when its own deadline has passed. The module
// executor drives tick() from its post-run poll.
type timerQueue struct {
	mu     sync.Mutex
	nextID int
	timers map[int]*timerEntry
}

func newTimerQueue() *timerQueue {
	return &timerQueue{timers: map[int]*timerEntry{}}
}

func (q *timerQueue) add(fn goja.Callable, args []goja.Value, delay time.Duration, repeat bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	id := q.nextID
	q.timers[id] = &timerEntry{
		fn:       fn,
		args:     args,
		fireAt:   time.Now().Add(delay),
		interval: delay,
		repeat:   repeat,
	}
	return id
}

func (q *timerQueue) cancel(id int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.timers, id)
}

// pending reports how many timers are still registered.
func (q *timerQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// tick fires every timer whose deadline has passed, rescheduling repeating
// ones and dropping one-shot ones, then returns the number still pending.
func (q *timerQueue) tick() int {
	q.mu.Lock()
	now := time.Now()
	var due []*timerEntry
	for id, t := range q.timers {
		if !t.fireAt.After(now) {
			due = append(due, t)
			if t.repeat {
				t.fireAt = now.Add(t.interval)
			} else {
				delete(q.timers, id)
			}
		}
	}
	remaining := len(q.timers)
	q.mu.Unlock()

	for _, t := range due {
		_, _ = t.fn(goja.Undefined(), t.args...)
	}
	return remaining
}

// installTimerFuncs builds the setTimeout/setInterval/clearTimeout/
// clearInterval values injected into every module's function scope.
func installTimerFuncs(vm *goja.Runtime, q *timerQueue) (setTimeout, setInterval, clearTimeout, clearInterval goja.Value) {
	register := func(repeat bool) goja.Value {
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				return goja.Undefined()
			}
			delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
			var extra []goja.Value
			if len(call.Arguments) > 2 {
				extra = call.Arguments[2:]
			}
			id := q.add(fn, extra, delay, repeat)
			return vm.ToValue(id)
		})
	}
	clear := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		q.cancel(int(call.Argument(0).ToInteger()))
		return goja.Undefined()
	})
	return register(false), register(true), clear, clear
}
