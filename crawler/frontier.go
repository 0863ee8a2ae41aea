package crawler

import "sync"

// task is one URL waiting to be crawled
type task struct {
	url   string
	depth int
}

type pushResult int

const (
	pushAdded pushResult = iota
	pushDuplicate
	pushRejected // page budget exhausted
	pushStopped
)

// frontier is a BFS queue that also owns the seen-set and the in-flight
// counter. A URL is marked seen when it is queued, so no two workers can
// ever claim it.
type frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []task
	seen     map[string]bool
	maxPages int
	admitted int
	inFlight int
	stopped  bool

	rejected    bool
	interrupted bool
}

func newFrontier(maxPages int) *frontier {
	f := &frontier{
		items:    make([]task, 0),
		seen:     make(map[string]bool),
		maxPages: maxPages,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// push enqueues t unless its URL was already seen or the page budget is spent
func (f *frontier) push(t task) pushResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return pushStopped
	}
	if f.seen[t.url] {
		return pushDuplicate
	}
	if f.maxPages > 0 && f.admitted >= f.maxPages {
		f.rejected = true
		return pushRejected
	}

	f.seen[t.url] = true
	f.admitted++
	f.items = append(f.items, t)
	f.cond.Signal()
	return pushAdded
}

// markSeen records url as visited without queueing it or spending budget
func (f *frontier) markSeen(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[url] = true
}

// pop blocks until a task is available. It returns false once the frontier
// is stopped, or when it is empty and no worker could still add to it.
func (f *frontier) pop() (task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.stopped {
			return task{}, false
		}
		if len(f.items) > 0 {
			t := f.items[0]
			f.items = f.items[1:]
			f.inFlight++
			return t, true
		}
		if f.inFlight == 0 {
			// Drained: wake the other waiters so they exit as well
			f.cond.Broadcast()
			return task{}, false
		}
		f.cond.Wait()
	}
}

// done marks a popped task as finished. Links discovered by the task must
// be pushed before calling done.
func (f *frontier) done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight--
	if f.inFlight == 0 && len(f.items) == 0 {
		f.cond.Broadcast()
	}
}

// stop discards queued work and releases every waiting worker
func (f *frontier) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return
	}
	if len(f.items) > 0 || f.inFlight > 0 {
		f.interrupted = true
	}
	f.stopped = true
	f.items = nil
	f.cond.Broadcast()
}

// state reports whether a discovery was rejected for budget reasons and
// whether stop cut off outstanding work.
func (f *frontier) state() (rejected, interrupted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejected, f.interrupted
}

func (f *frontier) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
