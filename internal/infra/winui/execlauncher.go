package winui

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var _ Launcher = (*ExecLauncher)(nil)

// ExecLauncher spawns client processes through os/exec. It covers the
// process half of the supervisor's needs on any platform; window handles and
// input-idle signalling require a host-injected implementation and report
// absent here.
type ExecLauncher struct{}

// NewExecLauncher returns a Launcher backed by os/exec.
func NewExecLauncher() *ExecLauncher { return &ExecLauncher{} }

// Spawn starts the client with the assembled arguments and working directory.
func (ExecLauncher) Spawn(ctx context.Context, spec LaunchSpec) (Process, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("launch spec has no executable path")
	}

	cmd := exec.Command(spec.Path, strings.Fields(spec.Args)...)
	cmd.Dir = spec.WorkDir
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, exited: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.exited)
	}()
	return p, nil
}

// execProcess adapts exec.Cmd to the Process port. Exit observation runs in a
// background goroutine so HasExited never blocks.
type execProcess struct {
	cmd    *exec.Cmd
	exited chan struct{}

	mu      sync.Mutex
	waitErr error
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

// WaitForInputIdle has no portable equivalent; the process is treated as idle
// once spawned so the supervisor proceeds straight to window spinning.
func (p *execProcess) WaitForInputIdle(timeout time.Duration) (bool, error) {
	return true, nil
}

func (p *execProcess) HasExited() (bool, error) {
	select {
	case <-p.exited:
		return true, nil
	default:
		return false, nil
	}
}

// MainWindow always reports absent; window discovery needs the host's native
// probe.
func (p *execProcess) MainWindow() (WindowHandle, error) { return None, nil }

func (p *execProcess) Kill() error {
	if exited, _ := p.HasExited(); exited {
		return nil
	}
	return p.cmd.Process.Kill()
}
