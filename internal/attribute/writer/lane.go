package writer

import "sync"

// lane is a sequenced, single-goroutine task executor: tasks submitted to
// one lane run in strict submission order, while different lanes run
// concurrently. Two tasks on the same lane never overlap.
type lane struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
}

func newLane(queueDepth int) *lane {
	l := &lane{
		tasks: make(chan func(), queueDepth),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *lane) run() {
	defer l.wg.Done()
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.done:
			// Drain remaining queued tasks before exiting so a Close
			// doesn't silently drop already-accepted work.
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues a task, blocking if the lane's queue is full.
func (l *lane) Submit(task func()) {
	l.tasks <- task
}

// SubmitAndWait enqueues a task and blocks until it has run.
func (l *lane) SubmitAndWait(task func()) {
	doneCh := make(chan struct{})
	l.Submit(func() {
		task()
		close(doneCh)
	})
	<-doneCh
}

// Close stops accepting new work after draining what is already queued.
func (l *lane) Close() {
	close(l.done)
	l.wg.Wait()
}
