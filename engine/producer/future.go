package producer

import "github.com/mohsanabbas/kflow/engine/topic"

// Future is the handle returned by Send. Get suspends the caller until the
// delivery report for the submitted record arrives.
type Future struct {
	done chan struct{}
	rep  topic.DeliveryReport
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(rep topic.DeliveryReport) {
	f.rep = rep
	close(f.done)
}

// Get blocks until the delivery report is available.
func (f *Future) Get() topic.DeliveryReport {
	<-f.done
	return f.rep
}

// Done returns a channel closed once the report is available, for use in a
// select alongside a context deadline.
func (f *Future) Done() <-chan struct{} {
	return f.done
}
