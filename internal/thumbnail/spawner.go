package thumbnail

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/themethumb/internal/worker"
)

// Spawner starts a worker and returns the parent's ends of its pipes.
type Spawner interface {
	Spawn(ctx context.Context) (*Channel, error)
}

// process is the handle a Channel uses to stop its worker.
type process interface {
	terminate() error
	kill() error
	done() <-chan struct{}
}

// Channel is the parent's side of a worker: the request pipe it writes and
// the response pipe it reads.
type Channel struct {
	Requests  io.WriteCloser
	Responses io.ReadCloser

	proc     process
	stopOnce sync.Once
	stopErr  error
}

// NewChannel wraps pipe ends and a stop function. stop is called once and
// should return after the worker is gone. Used by custom Spawners.
func NewChannel(requests io.WriteCloser, responses io.ReadCloser, stop func() error) *Channel {
	return &Channel{
		Requests:  requests,
		Responses: responses,
		proc:      newFuncProcess(stop),
	}
}

// Shutdown closes the request pipe and gives the worker grace to exit on
// EOF before terminating it.
func (c *Channel) Shutdown(grace time.Duration) error {
	_ = c.Requests.Close()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-c.proc.done():
	case <-timer.C:
	}
	return c.Kill(grace)
}

// Kill sends SIGTERM, waits up to grace, then SIGKILL. Both pipes are closed
// once the worker is gone. Safe to call more than once and from any
// goroutine.
func (c *Channel) Kill(grace time.Duration) error {
	c.stopOnce.Do(func() {
		_ = c.Requests.Close()
		c.stopErr = stopProcess(c.proc, grace)
		_ = c.Responses.Close()
	})
	return c.stopErr
}

func stopProcess(p process, grace time.Duration) error {
	select {
	case <-p.done():
		return nil
	default:
	}

	if err := p.terminate(); err != nil {
		return fmt.Errorf("terminate worker: %w", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done():
		return nil
	case <-timer.C:
	}

	if err := p.kill(); err != nil {
		return fmt.Errorf("kill worker: %w", err)
	}
	<-p.done()
	return nil
}

// ExecSpawner starts the worker as a child process connected through two
// private pipes: the child's stdin is the request pipe, its stdout the
// response pipe.
type ExecSpawner struct {
	Command string
	Args    []string
	Env     []string
	Stderr  io.Writer
}

func (s *ExecSpawner) Spawn(ctx context.Context) (*Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create request pipe: %w", err)
	}
	respR, respW, err := os.Pipe()
	if err != nil {
		_ = reqR.Close()
		_ = reqW.Close()
		return nil, fmt.Errorf("create response pipe: %w", err)
	}

	// Not CommandContext: the worker lives as long as the client, not the
	// spawn call.
	cmd := exec.Command(s.Command, s.Args...)
	cmd.Stdin = reqR
	cmd.Stdout = respW
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{reqR, reqW, respR, respW} {
			_ = f.Close()
		}
		return nil, fmt.Errorf("start worker: %w", err)
	}

	// The child holds its own copies; keeping ours open would hide EOF.
	_ = reqR.Close()
	_ = respW.Close()

	proc := &execProcess{cmd: cmd, exited: make(chan struct{})}
	go func() {
		proc.waitErr = cmd.Wait()
		close(proc.exited)
	}()

	return &Channel{Requests: reqW, Responses: respR, proc: proc}, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
}

func (p *execProcess) terminate() error { return p.cmd.Process.Signal(syscall.SIGTERM) }
func (p *execProcess) kill() error      { return p.cmd.Process.Kill() }
func (p *execProcess) done() <-chan struct{} {
	return p.exited
}

// InProcessSpawner runs the worker on a goroutine over in-memory pipes.
// A panicking renderer is still contained by the worker, but a hung one
// cannot be killed; it is abandoned once its context is cancelled.
type InProcessSpawner struct {
	Worker *worker.Worker
}

func (s *InProcessSpawner) Spawn(ctx context.Context) (*Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	wctx, cancel := context.WithCancel(context.Background())

	proc := &goroutineProcess{gone: make(chan struct{})}
	proc.stop = func() {
		cancel()
		_ = reqR.Close()
		_ = respW.Close()
	}

	go func() {
		defer proc.exit()
		err := s.Worker.Serve(wctx, reqR, respW)
		_ = respW.CloseWithError(err)
		_ = reqR.Close()
	}()

	return &Channel{Requests: reqW, Responses: respR, proc: proc}, nil
}

type goroutineProcess struct {
	stop func()
	gone chan struct{}
	once sync.Once
}

func (p *goroutineProcess) exit() {
	p.once.Do(func() { close(p.gone) })
}

func (p *goroutineProcess) terminate() error {
	p.stop()
	return nil
}

// kill abandons the goroutine; it cannot be stopped forcibly.
func (p *goroutineProcess) kill() error {
	p.stop()
	p.exit()
	return nil
}

func (p *goroutineProcess) done() <-chan struct{} {
	return p.gone
}

// funcProcess adapts a plain stop function.
type funcProcess struct {
	stop func() error
	once sync.Once
	gone chan struct{}
}

func newFuncProcess(stop func() error) *funcProcess {
	return &funcProcess{stop: stop, gone: make(chan struct{})}
}

func (p *funcProcess) terminate() error {
	p.once.Do(func() {
		go func() {
			defer close(p.gone)
			if p.stop != nil {
				_ = p.stop()
			}
		}()
	})
	return nil
}

func (p *funcProcess) kill() error {
	return p.terminate()
}

func (p *funcProcess) done() <-chan struct{} {
	return p.gone
}
