package autotest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func newInput(commitURL, delivID string) *ContainerInput {
	return &ContainerInput{
		ExecutionID: uuid.New(),
		Target: CommitTarget{
			CommitSHA: "sha-" + commitURL,
			CommitURL: commitURL,
			RepoID:    "repo1",
			DelivID:   delivID,
		},
		Image: "grader:latest",
	}
}

func TestPush_FIFOOrder(t *testing.T) {
	q := NewJobQueue("standard", 2)

	q.Push(newInput("c1", "d1"))
	q.Push(newInput("c2", "d1"))
	q.Push(newInput("c3", "d1"))

	for i, want := range []string{"c1", "c2", "c3"} {
		got, err := q.Pop()
		if err != nil {
			t.Fatalf("pop %d failed: %v", i, err)
		}
		if got.Target.CommitURL != want {
			t.Errorf("pop %d: got %s, want %s", i, got.Target.CommitURL, want)
		}
	}
}

func TestPush_DropsDuplicates(t *testing.T) {
	q := NewJobQueue("standard", 2)

	q.Push(newInput("c1", "d1"))
	if n := q.Push(newInput("c1", "d1")); n != 1 {
		t.Errorf("duplicate push: got length %d, want 1", n)
	}

	// Same commit, different deliverable is distinct work.
	if n := q.Push(newInput("c1", "d2")); n != 2 {
		t.Errorf("different deliv push: got length %d, want 2", n)
	}
}

func TestPush_DropsDuplicateOfRunning(t *testing.T) {
	q := NewJobQueue("standard", 2)
	q.Push(newInput("c1", "d1"))

	if _, err := q.ScheduleNext(); err != nil {
		t.Fatalf("scheduleNext failed: %v", err)
	}

	if n := q.Push(newInput("c1", "d1")); n != 0 {
		t.Errorf("push of running pair: got length %d, want 0", n)
	}
}

func TestPushFirst_InsertsAtHead(t *testing.T) {
	q := NewJobQueue("express", 1)
	q.Push(newInput("c1", "d1"))
	q.PushFirst(newInput("c0", "d1"))

	if idx := q.IndexOf("c0"); idx != 0 {
		t.Errorf("c0 at index %d, want 0", idx)
	}
	if idx := q.IndexOf("c1"); idx != 1 {
		t.Errorf("c1 at index %d, want 1", idx)
	}
}

func TestPop_EmptyFails(t *testing.T) {
	q := NewJobQueue("express", 1)
	if _, err := q.Pop(); err == nil {
		t.Error("expected error popping empty queue")
	}
}

func TestScheduleNext_RespectsCapacity(t *testing.T) {
	q := NewJobQueue("standard", 2)
	for i := 0; i < 4; i++ {
		q.Push(newInput(fmt.Sprintf("c%d", i), "d1"))
	}

	if _, err := q.ScheduleNext(); err != nil {
		t.Fatalf("first schedule failed: %v", err)
	}
	if _, err := q.ScheduleNext(); err != nil {
		t.Fatalf("second schedule failed: %v", err)
	}

	if q.HasCapacity() {
		t.Error("queue at capacity should not report free slots")
	}
	if _, err := q.ScheduleNext(); err == nil {
		t.Error("expected error scheduling past capacity")
	}
	if q.NumRunning() != 2 {
		t.Errorf("got %d running, want 2", q.NumRunning())
	}
}

func TestScheduleNext_EmptyFails(t *testing.T) {
	q := NewJobQueue("express", 1)
	if _, err := q.ScheduleNext(); err == nil {
		t.Error("expected error scheduling empty queue")
	}
}

func TestClearExecution_FreesSlotAndIsIdempotent(t *testing.T) {
	q := NewJobQueue("express", 1)
	q.Push(newInput("c1", "d1"))

	in, err := q.ScheduleNext()
	if err != nil {
		t.Fatalf("scheduleNext failed: %v", err)
	}
	if !q.IsCommitExecuting(in.Target.CommitURL, in.Target.DelivID) {
		t.Error("scheduled pair not reported executing")
	}

	q.ClearExecution("c1", "d1")
	if q.IsCommitExecuting("c1", "d1") {
		t.Error("cleared pair still reported executing")
	}
	if !q.HasCapacity() {
		t.Error("slot not freed after clear")
	}

	// Second clear is a no-op.
	q.ClearExecution("c1", "d1")
	if q.NumRunning() != 0 {
		t.Errorf("got %d running after double clear, want 0", q.NumRunning())
	}
}

func TestRemove_WaitingOnly(t *testing.T) {
	q := NewJobQueue("standard", 2)
	q.Push(newInput("c1", "d1"))
	q.Push(newInput("c2", "d1"))

	if in := q.Remove("c1"); in == nil || in.Target.CommitURL != "c1" {
		t.Fatalf("remove returned %v, want c1", in)
	}
	if q.Len() != 1 {
		t.Errorf("got length %d after remove, want 1", q.Len())
	}
	if in := q.Remove("missing"); in != nil {
		t.Errorf("remove of absent commit returned %v, want nil", in)
	}

	// Running entries are not removable.
	if _, err := q.ScheduleNext(); err != nil {
		t.Fatalf("scheduleNext failed: %v", err)
	}
	if in := q.Remove("c2"); in != nil {
		t.Errorf("remove of running commit returned %v, want nil", in)
	}
}

func TestIndexOf(t *testing.T) {
	q := NewJobQueue("standard", 2)
	q.Push(newInput("c1", "d1"))
	q.Push(newInput("c2", "d1"))

	if idx := q.IndexOf("c2"); idx != 1 {
		t.Errorf("got index %d, want 1", idx)
	}
	if idx := q.IndexOf("missing"); idx != -1 {
		t.Errorf("got index %d for absent commit, want -1", idx)
	}
}

// Running never exceeds capacity under arbitrary operation sequences.
func TestRunningBoundInvariant(t *testing.T) {
	q := NewJobQueue("standard", 2)

	check := func(step string) {
		if q.NumRunning() > 2 {
			t.Fatalf("%s: running %d exceeds capacity", step, q.NumRunning())
		}
	}

	for i := 0; i < 20; i++ {
		q.Push(newInput(fmt.Sprintf("c%d", i), "d1"))
		check("push")
		if q.HasCapacity() && q.Len() > 0 {
			if _, err := q.ScheduleNext(); err != nil {
				t.Fatalf("scheduleNext failed: %v", err)
			}
		}
		check("schedule")
		if i%3 == 0 {
			q.ClearExecution(fmt.Sprintf("c%d", i-1), "d1")
			check("clear")
		}
	}
}
