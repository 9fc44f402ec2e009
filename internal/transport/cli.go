package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"pkt.systems/pslog"
)

// Mode selects how the CLI transport drives its process.
type Mode string

const (
	// OneShot spawns one process per prompt; its exit marks the reply done.
	OneShot Mode = "oneshot"
	// Interactive keeps one process and waits for its output to settle.
	Interactive Mode = "interactive"
)

// CLIConfig controls the assistant command.
type CLIConfig struct {
	Command string
	Args    []string
	Mode    Mode
	Dir     string
	Env     []string
	// Settle is how long interactive output must stay unchanged to count
	// as a complete reply.
	Settle time.Duration
	// MaxWait bounds the wait for an interactive reply.
	MaxWait time.Duration
}

// CLI talks to an assistant command over stdin/stdout.
type CLI struct {
	cfg      CLIConfig
	path     string
	handlers Handlers

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	cancel     context.CancelFunc
	out        []byte
	lastChange time.Time
	exited     bool
	done       chan struct{}
}

var errPending = errors.New("reply not settled")

// NewCLI resolves the command on PATH. A missing command is ErrUnavailable.
func NewCLI(cfg CLIConfig, handlers Handlers) (*CLI, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: no command configured", ErrUnavailable)
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if cfg.Mode == "" {
		cfg.Mode = OneShot
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Minute
	}
	return &CLI{cfg: cfg, path: path, handlers: handlers}, nil
}

func (c *CLI) command(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.path, c.cfg.Args...)
	cmd.Dir = c.cfg.Dir
	cmd.Env = append(os.Environ(), c.cfg.Env...)
	return cmd
}

// Send dispatches text according to the configured mode.
func (c *CLI) Send(ctx context.Context, text string) error {
	if c.cfg.Mode == Interactive {
		return c.sendInteractive(ctx, text)
	}
	return c.sendOneShot(ctx, text)
}

func (c *CLI) sendOneShot(ctx context.Context, text string) error {
	log := pslog.Ctx(ctx)
	cmd := c.command(ctx)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		log.Error("assistant start failed", "command", c.cfg.Command, "err", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	log.Info("assistant started", "command", c.cfg.Command, "pid", cmd.Process.Pid, "prompt_len", len(text))
	started := time.Now()

	go func() {
		err := cmd.Wait()
		code := exitCode(err)
		log.Info("assistant exited", "command", c.cfg.Command, "code", code, "elapsed", time.Since(started))
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			c.handlers.fail(fmt.Errorf("%s exited with code %d: %s", c.cfg.Command, code, msg))
			c.handlers.closed(code)
			return
		}
		c.handlers.reply(strings.TrimRight(stdout.String(), "\n"))
	}()
	return nil
}

func (c *CLI) start(ctx context.Context) error {
	if c.cmd != nil && !c.exited {
		return nil
	}
	if c.exited {
		return fmt.Errorf("%w: %s has exited", ErrUnavailable, c.cfg.Command)
	}
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := c.command(procCtx)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	pslog.Ctx(ctx).Info("assistant started", "command", c.cfg.Command, "pid", cmd.Process.Pid, "mode", Interactive)

	c.cmd, c.stdin, c.cancel = cmd, stdin, cancel
	c.done = make(chan struct{})
	drained := make(chan struct{})
	go c.readLoop(stdout, drained)
	go c.wait(ctx, cmd, drained)
	return nil
}

func (c *CLI) readLoop(r io.Reader, drained chan<- struct{}) {
	defer close(drained)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.out = append(c.out, buf[:n]...)
			c.lastChange = time.Now()
			c.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (c *CLI) wait(ctx context.Context, cmd *exec.Cmd, drained <-chan struct{}) {
	<-drained
	err := cmd.Wait()
	code := exitCode(err)
	c.mu.Lock()
	c.exited = true
	close(c.done)
	c.mu.Unlock()
	pslog.Ctx(ctx).Info("assistant exited", "command", c.cfg.Command, "code", code)
	c.handlers.closed(code)
}

func (c *CLI) sendInteractive(ctx context.Context, text string) error {
	c.mu.Lock()
	if err := c.start(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	mark := len(c.out)
	stdin := c.stdin
	c.mu.Unlock()

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := io.WriteString(stdin, text); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	go c.poll(context.WithoutCancel(ctx), mark)
	return nil
}

// poll waits for output past mark to stay unchanged for the settle time.
func (c *CLI) poll(ctx context.Context, mark int) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(c.cfg.Settle/4, 10*time.Millisecond)
	b.MaxInterval = c.cfg.Settle
	b.Multiplier = 1.5

	reply, err := backoff.Retry(ctx, func() (string, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		fresh := len(c.out) > mark
		switch {
		case fresh && (c.exited || time.Since(c.lastChange) >= c.cfg.Settle):
			return string(c.out[mark:]), nil
		case c.exited:
			return "", backoff.Permanent(fmt.Errorf("%w: %s has exited", ErrUnavailable, c.cfg.Command))
		default:
			return "", errPending
		}
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(c.cfg.MaxWait))

	switch {
	case errors.Is(err, errPending):
		pslog.Ctx(ctx).Warn("assistant reply timed out", "command", c.cfg.Command, "max_wait", c.cfg.MaxWait)
		c.handlers.fail(fmt.Errorf("%w after %s", ErrNoResponse, c.cfg.MaxWait))
	case err != nil:
		c.handlers.fail(err)
	default:
		c.handlers.reply(strings.TrimRight(reply, "\n"))
	}
}

// Close ends an interactive process, killing it if it does not exit after
// its stdin is closed.
func (c *CLI) Close() error {
	c.mu.Lock()
	if c.cmd == nil || c.exited {
		c.mu.Unlock()
		return nil
	}
	stdin, cancel, done := c.stdin, c.cancel, c.done
	c.mu.Unlock()

	_ = stdin.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		<-done
	}
	cancel()
	return nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
