package processhost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/sourccey/kiosk-relay/internal/model"
)

type ExecHostConfig struct {
	Command      string
	Args         []string
	WorkDir      string
	ProcessMatch string
	StopGrace    time.Duration
	Events       EventPublisher
}

type managedProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// ExecHost runs one child process per nickname.
type ExecHost struct {
	cfg ExecHostConfig

	mu    sync.Mutex
	procs map[string]*managedProcess
}

func NewExecHost(cfg ExecHostConfig) *ExecHost {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}
	return &ExecHost{
		cfg:   cfg,
		procs: make(map[string]*managedProcess),
	}
}

func (h *ExecHost) Start(ctx context.Context, nickname string) (string, error) {
	h.mu.Lock()
	if _, exists := h.procs[nickname]; exists {
		h.mu.Unlock()
		log.Info().Str("nickname", nickname).Msg("host process already running, skipping start")
		return fmt.Sprintf("Kiosk host process for nickname '%s' is already running", nickname), nil
	}

	cmd := exec.Command(h.cfg.Command, h.cfg.Args...)
	cmd.Dir = h.cfg.WorkDir
	cmd.Stdout = newLineLogger(nickname, "HOST")
	cmd.Stderr = newLineLogger(nickname, "HOST-ERR")
	cmd.WaitDelay = h.cfg.StopGrace

	if err := cmd.Start(); err != nil {
		h.mu.Unlock()
		return "", fmt.Errorf("Failed to start kiosk host process: %v. Command: %s, Working dir: %q",
			err, strings.Join(cmd.Args, " "), h.cfg.WorkDir)
	}

	mp := &managedProcess{cmd: cmd, done: make(chan struct{})}
	h.procs[nickname] = mp
	h.mu.Unlock()

	pid := cmd.Process.Pid
	go h.monitor(nickname, mp)

	log.Info().
		Str("nickname", nickname).
		Int("pid", pid).
		Str("command", strings.Join(cmd.Args, " ")).
		Msg("host process started")
	h.publish(ctx, EventHostStartSuccess, map[string]any{
		"nickname": nickname,
		"pid":      pid,
		"message":  "Kiosk host started successfully",
	})

	return fmt.Sprintf("Robot starting for nickname: %s", nickname), nil
}

func (h *ExecHost) monitor(nickname string, mp *managedProcess) {
	err := mp.cmd.Wait()
	close(mp.done)

	h.mu.Lock()
	unexpected := h.procs[nickname] == mp
	if unexpected {
		delete(h.procs, nickname)
	}
	h.mu.Unlock()

	if !unexpected {
		return
	}

	exitCode := -1
	if mp.cmd.ProcessState != nil {
		exitCode = mp.cmd.ProcessState.ExitCode()
	}
	log.Warn().
		Err(err).
		Str("nickname", nickname).
		Int("exit_code", exitCode).
		Msg("host process exited unexpectedly")
	h.publish(context.Background(), EventHostStopSuccess, map[string]any{
		"nickname":  nickname,
		"exit_code": exitCode,
		"message":   "Robot process died unexpectedly",
	})
}

func (h *ExecHost) Stop(ctx context.Context, nickname string) (string, error) {
	h.mu.Lock()
	mp, ok := h.procs[nickname]
	if ok {
		delete(h.procs, nickname)
	}
	h.mu.Unlock()

	if !ok {
		msg := fmt.Sprintf("No kiosk host process found for nickname: %s", nickname)
		h.publish(ctx, EventHostStopError, map[string]any{
			"nickname": nickname,
			"error":    msg,
		})
		return "", errors.New(msg)
	}

	pid := mp.cmd.Process.Pid
	log.Info().Str("nickname", nickname).Int("pid", pid).Msg("terminating host process")
	if err := mp.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Debug().Err(err).Int("pid", pid).Msg("SIGTERM failed, killing")
		_ = mp.cmd.Process.Kill()
	}

	timer := time.NewTimer(h.cfg.StopGrace)
	defer timer.Stop()
	select {
	case <-mp.done:
	case <-timer.C:
		log.Warn().Str("nickname", nickname).Int("pid", pid).Msg("force killing host process")
		_ = mp.cmd.Process.Kill()
	case <-ctx.Done():
		_ = mp.cmd.Process.Kill()
	}

	h.publish(ctx, EventHostStopSuccess, map[string]any{
		"nickname": nickname,
		"pid":      pid,
		"message":  "Robot stopped successfully",
	})
	return fmt.Sprintf("Robot stopping for nickname: %s", nickname), nil
}

func (h *ExecHost) Status(ctx context.Context, nickname string) (string, error) {
	h.mu.Lock()
	_, managed := h.procs[nickname]
	h.mu.Unlock()

	if managed {
		return model.RobotStatusStarted, nil
	}

	running, err := h.externalProcessRunning(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("external host process lookup failed")
	}
	if running {
		return model.RobotStatusStarted, nil
	}
	return model.RobotStatusStopped, nil
}

// externalProcessRunning looks for a process started outside this host whose
// command line contains the configured match string.
func (h *ExecHost) externalProcessRunning(ctx context.Context) (bool, error) {
	if h.cfg.ProcessMatch == "" {
		return false, nil
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, h.cfg.ProcessMatch) {
			return true, nil
		}
	}
	return false, nil
}

// StopAll terminates every managed process. Used on shutdown.
func (h *ExecHost) StopAll(ctx context.Context) {
	h.mu.Lock()
	nicknames := make([]string, 0, len(h.procs))
	for nickname := range h.procs {
		nicknames = append(nicknames, nickname)
	}
	h.mu.Unlock()

	for _, nickname := range nicknames {
		if _, err := h.Stop(ctx, nickname); err != nil {
			log.Warn().Err(err).Str("nickname", nickname).Msg("failed to stop host process")
		}
	}
}

func (h *ExecHost) publish(ctx context.Context, event string, payload map[string]any) {
	if h.cfg.Events == nil {
		return
	}
	h.cfg.Events.Notify(ctx, event, payload)
}

// lineLogger forwards child output to the log one line at a time.
type lineLogger struct {
	prefix string
	buf    bytes.Buffer
}

func newLineLogger(nickname, stream string) *lineLogger {
	return &lineLogger{prefix: fmt.Sprintf("[%s] %s", nickname, stream)}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			l.buf.Reset()
			l.buf.WriteString(line)
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			log.Info().Str("source", l.prefix).Msg(line)
		}
	}
	return len(p), nil
}
