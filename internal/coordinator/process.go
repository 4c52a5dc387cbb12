package coordinator

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
)

// ProcessSpawner starts every worker as a separate OS process by
// re-executing a binary with the hidden "worker" subcommand. Messages flow
// over the child's stdin and stdout; stderr carries its traces.
type ProcessSpawner struct {
	Executable string    // defaults to os.Executable()
	Args       []string  // placed before the worker subcommand, e.g. trace flags
	Env        []string  // appended to the inherited environment
	Stderr     io.Writer // defaults to os.Stderr
}

func (s ProcessSpawner) Spawn(_ context.Context, spec WorkerSpec) (Process, error) {
	exe := s.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
	}
	root, err := filepath.Abs(spec.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve worker root: %w", err)
	}
	args := slices.Clone(s.Args)
	args = append(args, "worker", "--id", strconv.Itoa(spec.ID), "--root", root)
	if spec.EnableLint {
		args = append(args, "--lint")
	}
	if spec.CacheDir != "" {
		args = append(args, "--cache-dir", spec.CacheDir)
	}
	if spec.FullRebuildOnInit {
		args = append(args, "--full-rebuild-on-init")
	}

	// Lifetime is managed through Shutdown and Kill, not a context: the
	// worker must survive the request that spawned it.
	cmd := exec.Command(exe, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), s.Env...)
	// go list, run by the source importer, resolves modules from the cwd
	cmd.Dir = root
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	// Plain os.Pipe: exec's StdoutPipe is closed by Wait, which would race
	// with reading the last frames.
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = inR.Close()
		_ = inW.Close()
		return nil, err
	}
	cmd.Stdin = inR
	cmd.Stdout = outW
	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{inR, inW, outR, outW} {
			_ = f.Close()
		}
		return nil, fmt.Errorf("start worker %d: %w", spec.ID, err)
	}
	// the child holds its own copies
	_ = inR.Close()
	_ = outW.Close()

	p := &osProcess{cmd: cmd, in: inW, out: outR, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type osProcess struct {
	cmd  *exec.Cmd
	in   *os.File
	out  *os.File
	done chan struct{}
	err  error
}

// Read closes the pipe once the child's output is exhausted.
func (p *osProcess) Read(b []byte) (int, error) {
	n, err := p.out.Read(b)
	if err != nil {
		_ = p.out.Close()
	}
	return n, err
}

func (p *osProcess) Write(b []byte) (int, error) { return p.in.Write(b) }
func (p *osProcess) CloseInput() error           { return p.in.Close() }
func (p *osProcess) PID() int                    { return p.cmd.Process.Pid }

func (p *osProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *osProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.cmd.Process.Kill()
}
