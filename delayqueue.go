package transactions

// delayQueue is a min-heap of cleanup requests keyed on their ready time,
// driven through container/heap.
type delayQueue []*CleanupRequest

func (q delayQueue) Len() int           { return len(q) }
func (q delayQueue) Less(i, j int) bool { return q[i].readyTime.Before(q[j].readyTime) }
func (q delayQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *delayQueue) Push(x interface{}) {
	*q = append(*q, x.(*CleanupRequest))
}

func (q *delayQueue) Pop() interface{} {
	n := len(*q) - 1
	req := (*q)[n]
	(*q)[n] = nil
	*q = (*q)[:n]
	return req
}

// peek returns the request which becomes ready first.
func (q delayQueue) peek() *CleanupRequest {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
