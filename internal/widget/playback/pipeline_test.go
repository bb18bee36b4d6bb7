package playback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"
)

type fakeResource struct {
	buf       bytes.Buffer
	writeErr  error
	playErr   error
	startedOK bool
	played    []byte
	releases  *atomic.Int32
}

func (r *fakeResource) Write(p []byte) (int, error) {
	if r.writeErr != nil {
		return 0, r.writeErr
	}
	return r.buf.Write(p)
}

func (r *fakeResource) Play(ctx context.Context, started func()) error {
	r.played = append([]byte(nil), r.buf.Bytes()...)
	if r.startedOK {
		started()
	}
	return r.playErr
}

func (r *fakeResource) Release() {
	r.releases.Add(1)
}

type fakePlayer struct {
	template fakeResource
	releases atomic.Int32
	last     *fakeResource
}

func (p *fakePlayer) NewResource() Resource {
	res := p.template
	res.releases = &p.releases
	p.last = &res
	return &res
}

type recorder struct {
	started atomic.Int32
	ended   atomic.Int32
	err     error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStarted: func() { r.started.Add(1) },
		OnEnded: func(err error) {
			r.ended.Add(1)
			r.err = err
		},
	}
}

func waitHandle(t *testing.T, h *Handle) error {
	t.Helper()
	select {
	case <-h.Done():
		return h.Wait()
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not finish")
		return nil
	}
}

func TestPlayReleasesExactlyOnceOnEveryPath(t *testing.T) {
	cases := []struct {
		name        string
		template    fakeResource
		stream      func() io.Reader
		wantStarted int32
		wantStage   Stage
	}{
		{
			name:        "natural end",
			template:    fakeResource{startedOK: true},
			stream:      func() io.Reader { return bytes.NewReader([]byte("audio-bytes")) },
			wantStarted: 1,
		},
		{
			name:      "decode failure",
			template:  fakeResource{writeErr: errors.New("bad container")},
			stream:    func() io.Reader { return bytes.NewReader([]byte("garbage")) },
			wantStage: StageDecode,
		},
		{
			name:      "play start failure",
			template:  fakeResource{playErr: errors.New("autoplay blocked")},
			stream:    func() io.Reader { return bytes.NewReader([]byte("audio")) },
			wantStage: StagePlay,
		},
		{
			name:     "stream read error",
			template: fakeResource{startedOK: true},
			stream: func() io.Reader {
				return io.MultiReader(bytes.NewReader([]byte("partial")), iotest.ErrReader(errors.New("connection reset")))
			},
			wantStage: StageRead,
		},
		{
			name:      "empty stream",
			template:  fakeResource{startedOK: true},
			stream:    func() io.Reader { return bytes.NewReader(nil) },
			wantStage: StageDecode,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			player := &fakePlayer{template: tc.template}
			rec := &recorder{}
			pipeline := NewPipeline(player, nil)

			err := waitHandle(t, pipeline.Play(context.Background(), tc.stream(), rec.callbacks()))

			if got := player.releases.Load(); got != 1 {
				t.Fatalf("expected exactly one release, got %d", got)
			}
			if got := rec.ended.Load(); got != 1 {
				t.Fatalf("expected exactly one end callback, got %d", got)
			}
			if got := rec.started.Load(); got != tc.wantStarted {
				t.Fatalf("expected %d start callbacks, got %d", tc.wantStarted, got)
			}

			if tc.wantStage == "" {
				if err != nil || rec.err != nil {
					t.Fatalf("expected clean end, got %v", err)
				}
				return
			}
			var pbErr *PlaybackError
			if !errors.As(err, &pbErr) {
				t.Fatalf("expected PlaybackError, got %v", err)
			}
			if pbErr.Stage != tc.wantStage {
				t.Fatalf("expected stage %s, got %s", tc.wantStage, pbErr.Stage)
			}
			if rec.err != err {
				t.Fatalf("callback error %v differs from handle error %v", rec.err, err)
			}
		})
	}
}

func TestPlayAssemblesFullPayloadBeforePlaying(t *testing.T) {
	player := &fakePlayer{template: fakeResource{startedOK: true}}
	pipeline := NewPipeline(player, nil)
	pipeline.chunkSize = 3

	stream := iotest.OneByteReader(bytes.NewReader([]byte("complete-mp3-payload")))
	if err := waitHandle(t, pipeline.Play(context.Background(), stream, Callbacks{})); err != nil {
		t.Fatalf("Play err: %v", err)
	}

	if got := string(player.last.played); got != "complete-mp3-payload" {
		t.Fatalf("expected full payload at play time, got %q", got)
	}
}

type closeTracker struct {
	io.Reader
	closed atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

func TestPlayClosesStream(t *testing.T) {
	player := &fakePlayer{template: fakeResource{startedOK: true}}
	stream := &closeTracker{Reader: bytes.NewReader([]byte("x"))}

	if err := waitHandle(t, NewPipeline(player, nil).Play(context.Background(), stream, Callbacks{})); err != nil {
		t.Fatalf("Play err: %v", err)
	}
	if !stream.closed.Load() {
		t.Fatal("expected stream to be closed")
	}
}

func TestDiscardPlayer(t *testing.T) {
	rec := &recorder{}
	pipeline := NewPipeline(DiscardPlayer{}, nil)

	if err := waitHandle(t, pipeline.Play(context.Background(), bytes.NewReader([]byte("abc")), rec.callbacks())); err != nil {
		t.Fatalf("Play err: %v", err)
	}
	if rec.started.Load() != 1 || rec.ended.Load() != 1 {
		t.Fatalf("unexpected callbacks: started=%d ended=%d", rec.started.Load(), rec.ended.Load())
	}
}

func TestFFPlayMissingBinaryIsStartFailure(t *testing.T) {
	player := NewFFPlayPlayer("/nonexistent/ffplay-binary")
	rec := &recorder{}

	err := waitHandle(t, NewPipeline(player, nil).Play(context.Background(), bytes.NewReader([]byte("abc")), rec.callbacks()))

	var pbErr *PlaybackError
	if !errors.As(err, &pbErr) || pbErr.Stage != StagePlay {
		t.Fatalf("expected play-stage error, got %v", err)
	}
	if rec.started.Load() != 0 {
		t.Fatal("playback must not report started")
	}
}
