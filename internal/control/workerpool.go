package control

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// workerFunc processes one queued task; returning a non-nil error kills
// the owning tomb.
type workerFunc = func(t *tomb.Tomb, task any) error

// workerPool maintains a fixed number of goroutines draining a shared task
// channel, here used to service control-channel connections.
type workerPool struct {
	n     int
	tasks chan any
}

func newWorkerPool(size int) workerPool {
	return workerPool{tasks: make(chan any, taskChanSize), n: size}
}

func (p *workerPool) addTask(task any) {
	p.tasks <- task
}

// setup keeps n workers alive until the tomb dies, replacing any worker
// that exits (a connection handler always exits after one request/response
// cycle, by design, so this constantly respawns). Capacity is tracked with
// a buffered semaphore channel rather than a polled counter: spawning
// blocks on receiving a slot, and a finished worker's deferred release is
// what wakes the next spawn, so the pool is idle (blocked in select) with
// zero CPU use whenever it is already at capacity.
func (p *workerPool) setup(t *tomb.Tomb, work workerFunc) {
	log.Info().Int("workers", p.n).Msg("control: starting worker pool")
	slots := make(chan struct{}, p.n)
	for i := 0; i < p.n; i++ {
		slots <- struct{}{}
	}
	for {
		select {
		case <-t.Dying():
			return
		case <-slots:
			t.Go(func() error {
				defer func() { slots <- struct{}{} }()
				return p.worker(t, work)
			})
		}
	}
}

func (p *workerPool) worker(t *tomb.Tomb, work workerFunc) error {
	select {
	case <-t.Dying():
		return nil
	case task := <-p.tasks:
		if err := work(t, task); err != nil {
			log.Error().Err(err).Msg("control: worker exiting on error")
			return err
		}
	}
	return nil
}
