// Package playback turns a streamed audio body into one playable resource,
// plays it, and reports start and end transitions.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/logging"
)

// ErrEmptyAudio is reported when a stream ends without any audio bytes.
var ErrEmptyAudio = errors.New("audio payload is empty")

// Stage names where a playback attempt failed.
type Stage string

const (
	StageRead   Stage = "read"
	StageDecode Stage = "decode"
	StagePlay   Stage = "play"
)

// PlaybackError wraps a failed playback attempt. It is informational only:
// the conversation continues text-only.
type PlaybackError struct {
	Stage Stage
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback %s failed: %v", e.Stage, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// Resource accumulates one reply's audio and plays it once complete.
type Resource interface {
	// Write appends a chunk. An error means the payload cannot be decoded.
	Write(p []byte) (int, error)
	// Play blocks until the resource finishes or fails. started is invoked
	// once audio is actually playing; an error before that is a start failure.
	Play(ctx context.Context, started func()) error
	// Release frees the resource. The pipeline calls it exactly once.
	Release()
}

// Player allocates playback resources.
type Player interface {
	NewResource() Resource
}

// Callbacks receive the pipeline's transitions. OnEnded is always called
// exactly once per attempt; err is nil on natural end.
type Callbacks struct {
	OnStarted func()
	OnEnded   func(err error)
}

// Handle observes one playback attempt.
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed after OnEnded has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the attempt ends and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Pipeline drains, assembles, and plays reply audio.
type Pipeline struct {
	player    Player
	chunkSize int
	log       logrus.FieldLogger
}

// NewPipeline returns a Pipeline backed by player.
func NewPipeline(player Player, logger logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		player:    player,
		chunkSize: 32 << 10,
		log:       logging.Component(logger, "playback"),
	}
}

// Play starts an attempt in the background. The stream is drained to the end
// before playback begins; it is closed afterwards if it implements io.Closer.
func (p *Pipeline) Play(ctx context.Context, stream io.Reader, cb Callbacks) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = p.run(ctx, stream, cb)
		if h.err != nil {
			p.log.WithError(h.err).Warn("playback degraded to text only")
		}
		if cb.OnEnded != nil {
			cb.OnEnded(h.err)
		}
	}()
	return h
}

func (p *Pipeline) run(ctx context.Context, stream io.Reader, cb Callbacks) error {
	if closer, ok := stream.(io.Closer); ok {
		defer closer.Close()
	}

	res := p.player.NewResource()
	var once sync.Once
	release := func() { once.Do(res.Release) }
	defer release()

	total, err := p.drain(stream, res)
	if err != nil {
		return err
	}
	if total == 0 {
		return &PlaybackError{Stage: StageDecode, Err: ErrEmptyAudio}
	}

	p.log.WithField("bytes", total).Debug("audio assembled")

	started := false
	err = res.Play(ctx, func() {
		if started {
			return
		}
		started = true
		if cb.OnStarted != nil {
			cb.OnStarted()
		}
	})
	if err != nil {
		return &PlaybackError{Stage: StagePlay, Err: err}
	}
	return nil
}

func (p *Pipeline) drain(stream io.Reader, res Resource) (int, error) {
	buf := make([]byte, p.chunkSize)
	total := 0
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, err := res.Write(buf[:n]); err != nil {
				return total, &PlaybackError{Stage: StageDecode, Err: err}
			}
			total += n
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}
		if readErr != nil {
			return total, &PlaybackError{Stage: StageRead, Err: readErr}
		}
	}
}
