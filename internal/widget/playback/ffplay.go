package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
)

// FFPlayPlayer plays complete payloads by piping them into an ffplay process.
// ffplay needs the whole container, which matches the pipeline's
// drain-then-play model.
type FFPlayPlayer struct {
	Path   string
	Volume int
	Stderr io.Writer
}

// NewFFPlayPlayer returns a player using the ffplay binary at path.
func NewFFPlayPlayer(path string) *FFPlayPlayer {
	if path == "" {
		path = "ffplay"
	}
	return &FFPlayPlayer{Path: path, Volume: 80}
}

// NewResource implements Player.
func (p *FFPlayPlayer) NewResource() Resource {
	return &ffplayResource{player: p}
}

type ffplayResource struct {
	player *FFPlayPlayer
	buf    bytes.Buffer

	mu       sync.Mutex
	cmd      *exec.Cmd
	released bool
}

func (r *ffplayResource) Write(p []byte) (int, error) {
	return r.buf.Write(p)
}

func (r *ffplayResource) Play(ctx context.Context, started func()) error {
	if r.buf.Len() == 0 {
		return ErrEmptyAudio
	}

	path, err := exec.LookPath(r.player.Path)
	if err != nil {
		return fmt.Errorf("ffplay not available: %w", err)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-volume", fmt.Sprintf("%d", r.player.Volume),
		"-i", "-",
	}
	cmd := exec.CommandContext(ctx, path, args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL may pick a silent dummy backend on macOS.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	cmd.Stdin = bytes.NewReader(r.buf.Bytes())
	cmd.Stdout = io.Discard
	cmd.Stderr = r.player.Stderr

	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return fmt.Errorf("resource already released")
	}
	if err := cmd.Start(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("start ffplay: %w", err)
	}
	r.cmd = cmd
	r.mu.Unlock()

	started()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffplay exited: %w", err)
	}
	return nil
}

func (r *ffplayResource) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.released = true
	if r.cmd != nil && r.cmd.ProcessState == nil && r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	r.cmd = nil
	r.buf = bytes.Buffer{}
}

// DiscardPlayer accepts audio and finishes immediately. Muted hosts use it so
// the speaking state still brackets each reply.
type DiscardPlayer struct{}

// NewResource implements Player.
func (DiscardPlayer) NewResource() Resource {
	return &discardResource{}
}

type discardResource struct{ n int }

func (r *discardResource) Write(p []byte) (int, error) {
	r.n += len(p)
	return len(p), nil
}

func (r *discardResource) Play(ctx context.Context, started func()) error {
	if r.n == 0 {
		return ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	started()
	return nil
}

func (r *discardResource) Release() {}
