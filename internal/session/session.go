package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/metavoice/voicestudio/internal/metrics"
	"github.com/metavoice/voicestudio/internal/models"
	"github.com/metavoice/voicestudio/internal/services"
	"github.com/metavoice/voicestudio/internal/storage"
)

var ErrSessionClosed = errors.New("session closed")

// Options tune a Session. Zero values select the defaults.
type Options struct {
	TickInterval        time.Duration // default 1s
	MaxRecordingSeconds int           // 0 = unlimited
	Metrics             *metrics.Metrics
}

type envelope struct {
	action Action
	reply  chan error // nil for fire-and-forget completions
}

// Session runs the recorder page. All actions are applied one at a time by
// Run; blocking work happens on goroutines that post completion actions back.
type Session struct {
	recorder  *Recorder
	converter services.VoiceConverter
	metrics   *metrics.Metrics
	interval  time.Duration

	actions chan envelope
	done    chan struct{}

	mu    sync.RWMutex
	state State

	subsMu  sync.Mutex
	subs    map[int]chan State
	nextSub int

	// Owned by the Run goroutine
	ticker *ticker
}

func New(device services.CaptureDevice, converter services.VoiceConverter, store *storage.Storage, opts Options) *Session {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}

	return &Session{
		recorder:  NewRecorder(device, store),
		converter: converter,
		metrics:   opts.Metrics,
		interval:  opts.TickInterval,
		actions:   make(chan envelope, 16),
		done:      make(chan struct{}),
		state:     NewState(opts.MaxRecordingSeconds),
		subs:      make(map[int]chan State),
	}
}

// Run processes actions until ctx is cancelled. It must be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	log.Println("[Session] Event loop started")
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			log.Println("[Session] Event loop stopped")
			return ctx.Err()
		case env := <-s.actions:
			err := s.apply(ctx, env.action)
			if env.reply != nil {
				env.reply <- err
			}
		}
	}
}

// Dispatch submits a user action and waits until it has been applied. The
// returned error is the rejection reason, e.g. models.ErrNoSpeakers.
func (s *Session) Dispatch(ctx context.Context, a Action) error {
	reply := make(chan error, 1)

	select {
	case s.actions <- envelope{action: a, reply: reply}:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post submits a completion without waiting for it.
func (s *Session) post(ctx context.Context, a Action) {
	select {
	case s.actions <- envelope{action: a}:
	case <-s.done:
	case <-ctx.Done():
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Subscribe returns a channel that receives the state after every applied
// action. Slow readers only see the latest state. Call cancel to unsubscribe.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.subsMu.Lock()
	ch <- s.Snapshot()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Session) publish(state State) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- state:
		default:
			// Replace the stale snapshot the reader has not picked up yet
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

// apply reduces one action and executes its effects on the loop goroutine.
func (s *Session) apply(ctx context.Context, a Action) error {
	s.mu.Lock()
	prev := s.state
	next, effects, err := Reduce(prev, a)
	if err != nil {
		s.mu.Unlock()
		if !models.IsValidationError(err) {
			log.Printf("[Session] %s failed: %v", a.actionName(), err)
		}
		return err
	}
	s.state = next
	snapshot := next.Clone()
	s.mu.Unlock()

	s.observe(prev, next, a)
	s.publish(snapshot)

	for _, e := range effects {
		s.runEffect(ctx, e)
	}
	return nil
}

func (s *Session) runEffect(ctx context.Context, e Effect) {
	switch e := e.(type) {
	case startCapture:
		gen := e.generation
		err := s.recorder.StartCapture(ctx,
			func(blob models.BlobRef) { s.post(ctx, CaptureStopped{Generation: gen, Blob: blob}) },
			func(err error) { s.post(ctx, CaptureFailed{Generation: gen, Err: err}) },
		)
		if err != nil {
			if !services.IsCaptureError(err) {
				err = &services.CaptureError{Err: err}
			}
			log.Printf("[Session] Failed to start capture: %v", err)
			s.apply(ctx, CaptureFailed{Generation: gen, Err: err})
		}

	case stopCapture:
		if err := s.recorder.StopCapture(); err != nil {
			log.Printf("[Session] Failed to stop capture: %v", err)
			s.apply(ctx, CaptureFailed{Generation: e.generation, Err: err})
		}

	case startTicker:
		s.stopTicker()
		gen := e.generation
		if cur := s.Snapshot(); !cur.Recording || cur.Generation != gen {
			return
		}
		s.ticker = runTicker(ctx, s.interval, func(tctx context.Context) {
			s.post(tctx, Tick{Generation: gen})
		})

	case stopTicker:
		s.stopTicker()

	case discardBlob:
		s.recorder.Discard(e.id)

	case convertBlob:
		go s.convert(ctx, e)

	default:
		log.Printf("[Session] Unknown effect %s", e.effectName())
	}
}

// convert performs the upload round trip and posts its outcome. It always
// posts exactly one completion so the conversion state returns to idle.
func (s *Session) convert(ctx context.Context, e convertBlob) {
	start := time.Now()
	s.metrics.RecordConversionRequest()

	data, err := s.recorder.Resolve(ctx, e.blob)
	if err != nil {
		s.metrics.RecordConversionFailure(time.Since(start).Seconds())
		s.post(ctx, ConversionFailed{BlobID: e.blob.ID, Err: err})
		return
	}

	results, err := s.converter.Convert(ctx, data, e.speakers)
	if err != nil {
		log.Printf("[Session] Conversion failed: %v", err)
		s.metrics.RecordConversionFailure(time.Since(start).Seconds())
		s.post(ctx, ConversionFailed{BlobID: e.blob.ID, Err: fmt.Errorf("voice conversion failed: %w", err)})
		return
	}

	s.metrics.RecordConversionSuccess(time.Since(start).Seconds(), len(results))
	s.post(ctx, ConversionSucceeded{BlobID: e.blob.ID, Results: results})
}

func (s *Session) stopTicker() {
	if s.ticker != nil {
		s.ticker.stop()
		s.ticker = nil
	}
}

func (s *Session) shutdown() {
	s.stopTicker()

	s.mu.RLock()
	recording := s.state.Recording
	s.mu.RUnlock()

	if recording {
		if err := s.recorder.StopCapture(); err != nil {
			log.Printf("[Session] Failed to stop capture on shutdown: %v", err)
		}
	}
}

// observe feeds metrics and logs from a transition.
func (s *Session) observe(prev, next State, a Action) {
	switch a.(type) {
	case StartRecording, ToggleRecording:
		if !prev.Recording && next.Recording {
			s.metrics.RecordRecordingStarted()
			log.Printf("[Session] Recording #%d started", next.Generation)
		}
	}

	if prev.Recording && !next.Recording && next.Finalizing {
		log.Printf("[Session] Recording #%d stopped at %s", next.Generation, next.ElapsedText())
	}
	if next.Blob != nil && (prev.Blob == nil || prev.Blob.ID != next.Blob.ID) {
		s.metrics.RecordRecordingCompleted(float64(next.Elapsed), next.Blob.Size)
		log.Printf("[Session] Recording #%d ready (%d bytes)", next.Generation, next.Blob.Size)
	}
	if next.CaptureError != "" && prev.CaptureError != next.CaptureError {
		s.metrics.RecordCaptureFailure()
		log.Printf("[Session] Recording #%d aborted: %s", next.Generation, next.CaptureError)
	}
}
