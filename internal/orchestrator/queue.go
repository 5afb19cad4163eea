package orchestrator

import (
	"container/heap"
	"time"

	"github.com/nexuslabs/conductor/pkg/models"
)

// queueItem is a heap entry for a ready task.
type queueItem struct {
	task       *models.Task
	enqueuedAt time.Time
	seq        uint64
	index      int
}

// taskQueue is a priority queue ordered by (priority desc, enqueue time asc).
// The seq counter breaks exact-time ties so ordering stays FIFO within a
// priority level. Not safe for concurrent use; the scheduler serializes
// access under its own lock.
type taskQueue struct {
	items []*queueItem
	byID  map[string]*queueItem
	seq   uint64
}

func newTaskQueue() *taskQueue {
	return &taskQueue{byID: make(map[string]*queueItem)}
}

func (q *taskQueue) Len() int { return len(q.items) }

func (q *taskQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.task.Priority != b.task.Priority {
		return a.task.Priority > b.task.Priority
	}
	if !a.enqueuedAt.Equal(b.enqueuedAt) {
		return a.enqueuedAt.Before(b.enqueuedAt)
	}
	return a.seq < b.seq
}

func (q *taskQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *taskQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(q.items)
	q.items = append(q.items, item)
}

func (q *taskQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	q.items = old[:n-1]
	return item
}

// push enqueues a task at the given time. A task already queued is left in
// place at its original position.
func (q *taskQueue) push(task *models.Task, at time.Time) {
	if _, queued := q.byID[task.ID]; queued {
		return
	}
	q.seq++
	item := &queueItem{task: task, enqueuedAt: at, seq: q.seq}
	q.byID[task.ID] = item
	heap.Push(q, item)
}

// pop removes and returns the highest-priority task, or nil if empty.
func (q *taskQueue) pop() *models.Task {
	if len(q.items) == 0 {
		return nil
	}
	item := heap.Pop(q).(*queueItem)
	delete(q.byID, item.task.ID)
	return item.task
}

// popItem removes and returns the highest-priority entry, or nil if empty.
// The returned item keeps its enqueue time and sequence, so pushItem can
// restore it at its original position.
func (q *taskQueue) popItem() *queueItem {
	if len(q.items) == 0 {
		return nil
	}
	item := heap.Pop(q).(*queueItem)
	delete(q.byID, item.task.ID)
	return item
}

// pushItem reinserts a previously popped entry without advancing the
// sequence counter.
func (q *taskQueue) pushItem(item *queueItem) {
	if _, queued := q.byID[item.task.ID]; queued {
		return
	}
	q.byID[item.task.ID] = item
	heap.Push(q, item)
}

// remove drops a task from the queue if present.
func (q *taskQueue) remove(taskID string) bool {
	item, ok := q.byID[taskID]
	if !ok {
		return false
	}
	heap.Remove(q, item.index)
	delete(q.byID, taskID)
	return true
}

// contains reports whether the task is currently queued.
func (q *taskQueue) contains(taskID string) bool {
	_, ok := q.byID[taskID]
	return ok
}
