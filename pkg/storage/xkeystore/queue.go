package xkeystore

import "container/heap"

// Priority 事务优先级，数值越大越先出队。
type Priority int8

const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
	PriorityUrgent Priority = 2
)

// String 返回优先级名称
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// task 是一次入队的事务。done 为 nil 表示 Cast。
type task[V any] struct {
	fn   TxFunc[V]
	prio Priority
	seq  uint64
	done chan error
}

func (t *task[V]) finish(err error) {
	if t.done != nil {
		t.done <- err
	}
}

// taskHeap 按 (优先级降序, 入队序号升序) 排列。
type taskHeap[V any] []*task[V]

func (h taskHeap[V]) Len() int { return len(h) }

func (h taskHeap[V]) Less(i, j int) bool {
	if h[i].prio != h[j].prio {
		return h[i].prio > h[j].prio
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap[V]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap[V]) Push(x any) { *h = append(*h, x.(*task[V])) }

func (h *taskHeap[V]) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// queue 是单个 key 的待执行队列。存在于 shard.queues 中即表示有执行者在运行。
type queue[V any] struct {
	tasks taskHeap[V]
}

func (q *queue[V]) push(t *task[V]) { heap.Push(&q.tasks, t) }

func (q *queue[V]) pop() *task[V] { return heap.Pop(&q.tasks).(*task[V]) }

func (q *queue[V]) len() int { return q.tasks.Len() }
