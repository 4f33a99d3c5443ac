package maintenance

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kartikbazzad/bunbase/searchcore/internal/metrics"
)

// Job is one registered background task.
type Job interface {
	Name() string
	Delay() time.Duration
	Interval() time.Duration
	// Run executes one tick of work. Returning false means the job has more
	// work queued for this tick and should be re-run immediately
	// (cooperative split); true means this tick is done.
	Run() bool
	Blocked() bool
	SetBlocked(bool)
}

// BaseJob supplies the Blocked/SetBlocked bookkeeping every Job embeds.
type BaseJob struct {
	mu      sync.Mutex
	blocked bool
}

func (b *BaseJob) Blocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocked
}

func (b *BaseJob) SetBlocked(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocked = v
}

// Controller owns a JobList and dispatches each job on its own (delay,
// interval) schedule, respecting Blocked.
type Controller struct {
	mu      sync.Mutex
	jobs    []Job
	cancel  []chan struct{}
	wg      sync.WaitGroup
	started bool
	log     zerolog.Logger
	metrics *metrics.Registry
}

// New returns an empty, unstarted controller.
func New() *Controller {
	return &Controller{log: zerolog.Nop()}
}

// SetLogger attaches structured logging for job scheduling events. A
// Controller built via New logs nowhere until this is called.
func (c *Controller) SetLogger(log zerolog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = log
}

// SetMetrics attaches the observable-counters registry. Nil is valid
// and leaves metrics recording a no-op.
func (c *Controller) SetMetrics(reg *metrics.Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = reg
}

// RegisterJob appends job to the JobList. Must be called before Start.
func (c *Controller) RegisterJob(job Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
}

// Jobs returns the currently registered jobs.
func (c *Controller) Jobs() []Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Job(nil), c.jobs...)
}

// Start schedules every registered job according to its own (delay,
// interval); different jobs may run concurrently, but no job overlaps with
// itself.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	jobs := append([]Job(nil), c.jobs...)
	c.mu.Unlock()

	c.log.Info().Int("jobs", len(jobs)).Msg("maintenance controller starting")

	for _, job := range jobs {
		stop := make(chan struct{})
		c.cancel = append(c.cancel, stop)
		c.wg.Add(1)
		go c.runJob(job, stop)
	}
}

func (c *Controller) runJob(job Job, stop chan struct{}) {
	defer c.wg.Done()

	timer := time.NewTimer(job.Delay())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			c.tick(job, stop)
			timer.Reset(job.Interval())
		}
	}
}

// tick runs job.Run repeatedly without delay while it keeps returning
// false (cooperative split), unless the job is blocked or stop fires.
func (c *Controller) tick(job Job, stop chan struct{}) {
	if job.Blocked() {
		return
	}
	for {
		select {
		case <-stop:
			return
		default:
		}
		if job.Blocked() {
			return
		}
		done := job.Run()
		c.metrics.JobRan(job.Name())
		if done {
			return
		}
	}
}

// KillJobs stops every pending execution and drops all registered jobs,
// used by reconfigure.
func (c *Controller) KillJobs() {
	c.mu.Lock()
	cancels := c.cancel
	c.cancel = nil
	c.jobs = nil
	c.started = false
	c.mu.Unlock()

	for _, ch := range cancels {
		close(ch)
	}
	c.wg.Wait()
}
