package autotest

import (
	"fmt"
)

// executionKey identifies a grading run. A key appears at most once
// across waiting and running, per queue and across queues.
type executionKey struct {
	commitURL string
	delivID   string
}

// JobQueue is one priority tier: an ordered waiting list plus a bounded
// set of running executions. It is not safe for concurrent use; the
// dispatcher serializes all access.
type JobQueue struct {
	name     string
	capacity int
	waiting  []*ContainerInput
	running  map[executionKey]*ContainerInput
}

// NewJobQueue creates a tier with the given name and slot capacity.
func NewJobQueue(name string, capacity int) *JobQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &JobQueue{
		name:     name,
		capacity: capacity,
		running:  make(map[executionKey]*ContainerInput),
	}
}

func keyOf(input *ContainerInput) executionKey {
	return executionKey{commitURL: input.Target.CommitURL, delivID: input.Target.DelivID}
}

// contains reports whether the key is anywhere in the queue.
func (q *JobQueue) contains(key executionKey) bool {
	if _, ok := q.running[key]; ok {
		return true
	}
	for _, in := range q.waiting {
		if keyOf(in) == key {
			return true
		}
	}
	return false
}

// Push appends the input to the waiting list. Duplicate
// (commitURL, delivID) pairs already waiting or running are dropped.
// Returns the resulting waiting length.
func (q *JobQueue) Push(input *ContainerInput) int {
	if q.contains(keyOf(input)) {
		return len(q.waiting)
	}
	q.waiting = append(q.waiting, input)
	return len(q.waiting)
}

// PushFirst inserts the input at the head of the waiting list. Used by
// cross-tier promotion to honour earlier arrival.
func (q *JobQueue) PushFirst(input *ContainerInput) int {
	if q.contains(keyOf(input)) {
		return len(q.waiting)
	}
	q.waiting = append([]*ContainerInput{input}, q.waiting...)
	return len(q.waiting)
}

// Pop removes and returns the head of the waiting list.
func (q *JobQueue) Pop() (*ContainerInput, error) {
	if len(q.waiting) == 0 {
		return nil, fmt.Errorf("queue %s: pop on empty queue", q.name)
	}
	head := q.waiting[0]
	q.waiting = q.waiting[1:]
	return head, nil
}

// ScheduleNext pops the head and marks it running. The caller must have
// checked HasCapacity and Len first.
func (q *JobQueue) ScheduleNext() (*ContainerInput, error) {
	if len(q.waiting) == 0 {
		return nil, fmt.Errorf("queue %s: schedule on empty queue", q.name)
	}
	if len(q.running) >= q.capacity {
		return nil, fmt.Errorf("queue %s: schedule with no free slot (%d/%d running)",
			q.name, len(q.running), q.capacity)
	}
	head, err := q.Pop()
	if err != nil {
		return nil, err
	}
	q.running[keyOf(head)] = head
	return head, nil
}

// HasCapacity reports whether a free slot exists.
func (q *JobQueue) HasCapacity() bool {
	return len(q.running) < q.capacity
}

// Len returns the waiting length.
func (q *JobQueue) Len() int {
	return len(q.waiting)
}

// NumRunning returns the number of occupied slots.
func (q *JobQueue) NumRunning() int {
	return len(q.running)
}

// Capacity returns the slot budget.
func (q *JobQueue) Capacity() int {
	return q.capacity
}

// Name returns the tier name.
func (q *JobQueue) Name() string {
	return q.name
}

// IndexOf returns the waiting position of the commit, or -1.
func (q *JobQueue) IndexOf(commitURL string) int {
	for i, in := range q.waiting {
		if in.Target.CommitURL == commitURL {
			return i
		}
	}
	return -1
}

// Remove removes the commit from the waiting list (not from running)
// and returns it, or nil if absent.
func (q *JobQueue) Remove(commitURL string) *ContainerInput {
	for i, in := range q.waiting {
		if in.Target.CommitURL == commitURL {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return in
		}
	}
	return nil
}

// IsCommitExecuting reports whether the pair occupies a slot.
func (q *JobQueue) IsCommitExecuting(commitURL, delivID string) bool {
	_, ok := q.running[executionKey{commitURL: commitURL, delivID: delivID}]
	return ok
}

// ClearExecution frees the slot held by the pair. Idempotent.
func (q *JobQueue) ClearExecution(commitURL, delivID string) {
	delete(q.running, executionKey{commitURL: commitURL, delivID: delivID})
}
