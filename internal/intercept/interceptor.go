// Package intercept captures line-delimited JSON-RPC traffic from tool
// server processes. The interceptor owns the child processes and their
// stream readers; the reassembler turns raw chunks into validated frames;
// the fallback scanner recovers protocol signals from noisy text.
package intercept

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cogniscope/internal/protocol"
)

// Source describes one (host, server) traffic source to spawn.
type Source struct {
	Host    string
	Server  string
	Command string
	Args    []string
	Env     map[string]string
}

// Key returns the host/server registry key for this source.
func (s Source) Key() string {
	return s.Host + "/" + s.Server
}

// ChunkHandler receives raw stream chunks as they are read. Chunks arrive
// with arbitrary boundaries; framing is the receiver's problem.
type ChunkHandler func(host, server string, stream protocol.StreamKind, chunk []byte)

// Interceptor spawns and owns child traffic-source processes, one per
// (host, server) pair, with all three standard streams captured. A spawn
// failure for one source never prevents siblings from starting.
type Interceptor struct {
	mu      sync.Mutex
	log     *zap.Logger
	handler ChunkHandler
	procs   map[string]*sourceProcess
	running bool

	spawned  int
	failures int
}

type sourceProcess struct {
	source Source
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	wg     sync.WaitGroup
}

// NewInterceptor creates an interceptor delivering chunks to handler.
func NewInterceptor(handler ChunkHandler, log *zap.Logger) *Interceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Interceptor{
		log:     log,
		handler: handler,
		procs:   make(map[string]*sourceProcess),
	}
}

// Start spawns every runnable source. Sources with an empty command are
// skipped with a warning. Spawn failures are logged and counted, never
// propagated; a failing source must not take its siblings down with it.
// Calling Start while already running is a no-op.
func (i *Interceptor) Start(ctx context.Context, sources []Source) error {
	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		return nil
	}
	i.running = true
	i.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		if src.Command == "" {
			i.log.Warn("Skipping source without command",
				zap.String("host", src.Host),
				zap.String("server", src.Server))
			continue
		}
		g.Go(func() error {
			if err := i.spawn(src); err != nil {
				i.mu.Lock()
				i.failures++
				i.mu.Unlock()
				i.log.Error("Failed to spawn source",
					zap.String("source", src.Key()),
					zap.Error(err))
			}
			// Containment: never surface a per-source failure.
			return nil
		})
	}
	_ = g.Wait()

	i.mu.Lock()
	spawned := i.spawned
	i.mu.Unlock()
	i.log.Info("Interceptor started", zap.Int("sources", spawned))
	return nil
}

func (i *Interceptor) spawn(src Source) error {
	cmd := exec.Command(src.Command, src.Args...)
	if len(src.Env) > 0 {
		env := os.Environ()
		for k, v := range src.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	setupProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", src.Command, err)
	}

	proc := &sourceProcess{source: src, cmd: cmd, stdin: stdin}

	proc.wg.Add(2)
	go i.readStream(proc, protocol.StreamStdout, stdout)
	go i.readStream(proc, protocol.StreamStderr, stderr)

	i.mu.Lock()
	i.procs[src.Key()] = proc
	i.spawned++
	i.mu.Unlock()

	i.log.Debug("Spawned source",
		zap.String("source", src.Key()),
		zap.String("command", src.Command),
		zap.Int("pid", cmd.Process.Pid))
	return nil
}

// readStream pumps raw chunks from one captured stream to the handler
// until the stream closes.
func (i *Interceptor) readStream(proc *sourceProcess, kind protocol.StreamKind, r io.Reader) {
	defer proc.wg.Done()

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && i.handler != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			i.handler(proc.source.Host, proc.source.Server, kind, chunk)
		}
		if err != nil {
			if err != io.EOF {
				i.log.Debug("Stream closed",
					zap.String("source", proc.source.Key()),
					zap.String("stream", string(kind)),
					zap.Error(err))
			}
			return
		}
	}
}

// Stop terminates every tracked process and clears the registry. Safe to
// call multiple times; termination errors are logged, not propagated.
func (i *Interceptor) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.running = false
	procs := i.procs
	i.procs = make(map[string]*sourceProcess)
	i.mu.Unlock()

	for key, proc := range procs {
		if proc.stdin != nil {
			_ = proc.stdin.Close()
		}
		if proc.cmd != nil && proc.cmd.Process != nil {
			if err := killProcessGroup(proc.cmd); err != nil {
				i.log.Warn("Failed to kill source process",
					zap.String("source", key), zap.Error(err))
			}
		}

		// Wait() must run before the reader WaitGroup: reaping the dead
		// process closes the parent-side pipe ends, which is what
		// unblocks readers when a grandchild inherited the write ends.
		done := make(chan struct{})
		go func(p *sourceProcess) {
			_ = p.cmd.Wait()
			p.wg.Wait()
			close(done)
		}(proc)

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			i.log.Warn("Timeout waiting for source readers to exit",
				zap.String("source", key))
		}
	}

	i.log.Info("Interceptor stopped", zap.Int("terminated", len(procs)))
}

// Running reports whether Start has been called without a matching Stop.
func (i *Interceptor) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running
}

// Stats reports spawn outcomes for the current run.
func (i *Interceptor) Stats() (active, failures int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.procs), i.failures
}
