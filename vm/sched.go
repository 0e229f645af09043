package vm

import "sync"

// MaxPrio is the number of priority levels; 0 is the highest.
const MaxPrio = 139

// mlq is the multi-level ready queue shared by the CPU workers. Queue prio
// may hand out MaxPrio-prio turns per round; once every waiting queue has
// used its share the slots reset and selection restarts at priority 0.
type mlq struct {
	mu   sync.Mutex
	cond *sync.Cond

	queues  [MaxPrio][]*Process
	slots   [MaxPrio]int
	current int

	// processes added and not yet finished, queued or running
	live int
}

func newMLQ() *mlq {
	q := &mlq{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// add queues a new process.
func (q *mlq) add(p *Process) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.live++
	q.enqueue(p)
}

// put queues a process back after its turn.
func (q *mlq) put(p *Process) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueue(p)
}

func (q *mlq) enqueue(p *Process) {
	q.queues[p.Priority] = append(q.queues[p.Priority], p)
	q.cond.Signal()
}

// done retires a process taken with get that will not be put back.
func (q *mlq) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.live--
	q.cond.Broadcast()
}

// get blocks until a process is ready. It returns nil once every added
// process is done.
func (q *mlq) get() *Process {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if p := q.pick(); p != nil {
			return p
		}
		if q.live == 0 {
			return nil
		}
		q.cond.Wait()
	}
}

func (q *mlq) pick() *Process {
	for pass := 0; pass < 2; pass++ {
		waiting := false
		for n := 0; n < MaxPrio; n++ {
			prio := (q.current + n) % MaxPrio
			if len(q.queues[prio]) == 0 {
				continue
			}
			waiting = true
			if q.slots[prio] == MaxPrio-prio {
				continue
			}
			q.current = prio
			p := q.queues[prio][0]
			q.queues[prio] = q.queues[prio][1:]
			q.slots[prio]++
			return p
		}
		if !waiting {
			return nil
		}
		q.resetSlots()
	}
	return nil
}

func (q *mlq) resetSlots() {
	for prio := range q.slots {
		q.slots[prio] = 0
	}
	q.current = 0
}
