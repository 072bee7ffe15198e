package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/connexus-ai/ediscovery-core/internal/index/workerproto"
)

// WorkerPool runs extraction in a pool of OS processes (spec §5: native
// per-format parsers are not safe to share an address space with the index
// writer). The coordinator submits jobs and pulls completed results via a
// bounded queue; submission blocks once 2*workers jobs are outstanding.
type WorkerPool struct {
	jobs    chan workerproto.Job
	results chan workerproto.Result

	mu      sync.Mutex
	workers []*workerProc
	live    int32

	// slotFailures tracks consecutive failures per slot, not per workerProc
	// instance: a respawned worker keeps its slot's count, so two failures
	// for the same slot in a row retire it even though each failure was
	// handled by a different workerProc/goroutine.
	slotFailures []int32

	binary string
}

type workerProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	slot  int
}

// NewWorkerPool spawns n extraction worker subprocesses of binary. n is
// clamped to at least 1.
func NewWorkerPool(binary string, n int) (*WorkerPool, error) {
	if n < 1 {
		n = 1
	}
	p := &WorkerPool{
		jobs:         make(chan workerproto.Job, 2*n),
		results:      make(chan workerproto.Result, 2*n),
		slotFailures: make([]int32, n),
		binary:       binary,
	}
	for i := 0; i < n; i++ {
		if err := p.spawn(i); err != nil {
			p.shutdownAll()
			return nil, fmt.Errorf("index.NewWorkerPool: spawn worker %d: %w", i, err)
		}
	}
	return p, nil
}

func (p *WorkerPool) spawn(slot int) error {
	cmd := exec.Command(p.binary)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	wp := &workerProc{cmd: cmd, stdin: stdin, slot: slot}
	p.mu.Lock()
	p.workers = append(p.workers, wp)
	p.mu.Unlock()
	atomic.AddInt32(&p.live, 1)

	go p.run(wp, stdout)
	return nil
}

// run owns one worker subprocess for its lifetime: pulls jobs, writes them
// to the subprocess's stdin, reads exactly one result line back. It returns
// as soon as the subprocess fails — the pool either hands the slot to a
// freshly spawned goroutine or retires it for good, and either way this
// goroutine must stop touching the now-dead stdin/stdout pipes.
func (p *WorkerPool) run(wp *workerProc, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)

	for job := range p.jobs {
		line, err := json.Marshal(job)
		if err != nil {
			p.results <- workerproto.Result{SHA256: job.SHA256, SkipReason: fmt.Sprintf("marshal job: %v", err)}
			continue
		}
		line = append(line, '\n')

		if _, err := wp.stdin.Write(line); err != nil {
			p.onFailure(wp, job, fmt.Errorf("write job: %w", err))
			return
		}
		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			p.onFailure(wp, job, fmt.Errorf("read result: %w", err))
			return
		}

		var res workerproto.Result
		if err := json.Unmarshal(scanner.Bytes(), &res); err != nil {
			p.onFailure(wp, job, fmt.Errorf("decode result: %w", err))
			return
		}
		atomic.StoreInt32(&p.slotFailures[wp.slot], 0)
		p.results <- res
	}
}

// onFailure records the job as skipped and, per spec §4.5, retires the
// worker's slot only once it has failed twice in a row; otherwise it
// respawns a fresh subprocess in the same slot so the pool keeps its
// configured width. Failures are counted per slot, not per workerProc
// instance, so a respawned worker inherits the slot's existing count
// rather than starting fresh at zero.
func (p *WorkerPool) onFailure(wp *workerProc, job workerproto.Job, cause error) {
	failures := atomic.AddInt32(&p.slotFailures[wp.slot], 1)
	slog.Warn("[DEBUG-INDEX] extraction worker failure", "slot", wp.slot, "sha256", job.SHA256, "consecutive", failures, "error", cause)
	p.results <- workerproto.Result{SHA256: job.SHA256, SkipReason: fmt.Sprintf("extraction worker error: %v", cause)}

	_ = wp.cmd.Process.Kill()
	_ = wp.cmd.Wait()
	atomic.AddInt32(&p.live, -1)

	if failures >= 2 {
		slog.Error("[DEBUG-INDEX] retiring extraction worker after repeated failure", "slot", wp.slot)
		return
	}
	if err := p.spawn(wp.slot); err != nil {
		slog.Error("[DEBUG-INDEX] failed to respawn extraction worker", "slot", wp.slot, "error", err)
	}
}

// Submit enqueues a job, blocking if 2*workers jobs are already outstanding
// or until ctx is cancelled.
func (p *WorkerPool) Submit(ctx context.Context, job workerproto.Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the channel completed extractions arrive on.
func (p *WorkerPool) Results() <-chan workerproto.Result {
	return p.results
}

// LiveWorkers reports how many worker subprocesses are still active.
func (p *WorkerPool) LiveWorkers() int {
	return int(atomic.LoadInt32(&p.live))
}

// Close stops accepting new jobs and terminates every live subprocess. It
// does not drain p.results; callers must have already read every result
// they submitted a job for.
func (p *WorkerPool) Close() {
	close(p.jobs)
	p.shutdownAll()
}

func (p *WorkerPool) shutdownAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, wp := range p.workers {
		_ = wp.cmd.Process.Kill()
		_ = wp.cmd.Wait()
	}
}
