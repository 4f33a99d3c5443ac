package match

import "sync"

// Communicator is the coroutine-like rendezvous point shared by every
// thread in one query's thread bundle: a barrier with a partial-reduction
// step; each call site passes its own reduce function. Its only user is the
// match-phase limiter's estimate_match_frequency step, which builds a fresh
// Communicator per query. selectBest is computed by RunQuery after every
// thread has finished the first phase, and there is no rangeCover step.
type Communicator struct {
	n int

	mu         sync.Mutex
	cond       *sync.Cond
	generation int
	arrived    int
	values     []any
	result     any
}

// NewCommunicator returns a barrier for n participating threads.
func NewCommunicator(n int) *Communicator {
	c := &Communicator{n: n, values: make([]any, 0, n)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Rendezvous blocks the calling thread until all n threads have called
// Rendezvous for the current generation, then returns the result of reduce
// applied to every thread's contributed value. Exactly one caller (whichever
// arrives last) runs reduce; every caller sees the same result.
func (c *Communicator) Rendezvous(value any, reduce func([]any) any) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.generation
	c.values = append(c.values, value)
	c.arrived++

	if c.arrived == c.n {
		c.result = reduce(c.values)
		c.values = c.values[:0]
		c.arrived = 0
		c.generation++
		c.cond.Broadcast()
		return c.result
	}

	for c.generation == gen {
		c.cond.Wait()
	}
	return c.result
}
