package vm

import (
	"testing"
	"time"
)

func TestSchedulerSlotsPerPriority(t *testing.T) {
	q := newMLQ()
	high := &Process{PID: 1, Priority: 0}
	low := &Process{PID: 2, Priority: 10}
	q.add(low)
	q.add(high)

	// one full round: MaxPrio turns for priority 0, MaxPrio-10 for priority 10
	turns := map[int]int{}
	round := MaxPrio + MaxPrio - 10
	for i := 0; i < round+50; i++ {
		p := q.get()
		if p == nil {
			t.Fatalf("turn %d: no process", i)
		}
		if i < round {
			turns[p.PID]++
		}
		if i == round && p != high {
			t.Errorf("expected priority 0 first after the slots reset, got pid %d", p.PID)
		}
		q.put(p)
	}
	if turns[1] != MaxPrio || turns[2] != MaxPrio-10 {
		t.Errorf("expected %d and %d turns in a round, got %v", MaxPrio, MaxPrio-10, turns)
	}
}

func TestSchedulerFavoursHigherPriority(t *testing.T) {
	q := newMLQ()
	q.add(&Process{PID: 1, Priority: 10})
	q.add(&Process{PID: 2, Priority: 0})

	turns := map[int]int{}
	for i := 0; i < 200; i++ {
		p := q.get()
		turns[p.PID]++
		q.put(p)
	}
	if turns[2] <= turns[1] {
		t.Errorf("priority 0 got %d turns, priority 10 got %d", turns[2], turns[1])
	}
}

func TestSchedulerGetWaitsForRunningProcesses(t *testing.T) {
	q := newMLQ()
	p := &Process{PID: 1}
	q.add(p)
	if got := q.get(); got != p {
		t.Fatalf("expected pid 1, got %v", got)
	}

	got := make(chan *Process)
	go func() { got <- q.get() }()

	select {
	case <-got:
		t.Fatal("get returned while the only process was still running")
	case <-time.After(50 * time.Millisecond):
	}

	q.done()
	select {
	case p := <-got:
		if p != nil {
			t.Errorf("expected nil once every process is done, got pid %d", p.PID)
		}
	case <-time.After(time.Second):
		t.Fatal("get did not return after the last process finished")
	}
}
