package behaviour

import "sync"

// notifier wakes up every waiter on each change. Waiters take the channel
// before checking their condition so no change is missed.
type notifier struct {
	mtx sync.Mutex
	ch  chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

func (n *notifier) Wait() <-chan struct{} {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.ch
}

func (n *notifier) Notify() {
	n.mtx.Lock()
	close(n.ch)
	n.ch = make(chan struct{})
	n.mtx.Unlock()
}
