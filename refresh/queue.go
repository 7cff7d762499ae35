package refresh

import "time"

// item is one tracked key inside the due-time heap.
type item[K comparable] struct {
	key      K
	interval time.Duration
	due      time.Time
	index    int
}

// dueQueue implements container/heap.Interface ordered by due time.
type dueQueue[K comparable] []*item[K]

func (q dueQueue[K]) Len() int { return len(q) }

func (q dueQueue[K]) Less(i, j int) bool { return q[i].due.Before(q[j].due) }

func (q dueQueue[K]) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *dueQueue[K]) Push(x any) {
	it := x.(*item[K])
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *dueQueue[K]) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}
