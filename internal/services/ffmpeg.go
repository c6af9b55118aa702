package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/metavoice/voicestudio/internal/models"
)

// Capture encoding: Opus in a WebM container, which is what the conversion
// endpoint expects for the "file" part.
const (
	captureCodec      = "libopus"
	captureContainer  = "webm"
	captureSampleRate = "48000"
	captureChannels   = "1"

	// Keep only the tail of ffmpeg's stderr for error messages
	stderrTailBytes = 2048
)

// ---------------------------------------------------------------------------
// FFmpegCapture
// ---------------------------------------------------------------------------

// FFmpegCapture records from a local input device by running ffmpeg.
type FFmpegCapture struct {
	binary  string
	format  string
	device  string
	tempDir string

	mu  sync.Mutex
	cur *ffmpegRun
}

type ffmpegRun struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	outPath  string
	stderr   *tailBuffer
	stopping atomic.Bool
}

// Ensure FFmpegCapture implements CaptureDevice at compile time.
var _ CaptureDevice = (*FFmpegCapture)(nil)

// NewFFmpegCapture creates a capture device. format and device are passed to
// ffmpeg as "-f <format> -i <device>" (e.g. pulse/default, alsa/hw:0,
// avfoundation/:0).
func NewFFmpegCapture(binary, format, device, tempDir string) *FFmpegCapture {
	// Create temp directory if it doesn't exist
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}

	if binary == "" {
		binary = "ffmpeg"
	}

	return &FFmpegCapture{
		binary:  binary,
		format:  format,
		device:  device,
		tempDir: tempDir,
	}
}

// captureArgs builds the ffmpeg command line for one recording.
func (s *FFmpegCapture) captureArgs(outputPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", s.format,
		"-i", s.device,
		"-vn",
		"-ac", captureChannels,
		"-ar", captureSampleRate,
		"-c:a", captureCodec,
		"-f", captureContainer,
		"-y",
		outputPath,
	}
}

// Start launches ffmpeg. Device errors that only show up once ffmpeg opens
// the input are reported through cb.OnError.
func (s *FFmpegCapture) Start(ctx context.Context, cb CaptureCallbacks) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		return fmt.Errorf("ffmpeg capture: %w", models.ErrAlreadyRecording)
	}

	outPath := s.CreateTempFile(uuid.NewString() + "." + captureContainer)

	cmd := exec.CommandContext(ctx, s.binary, s.captureArgs(outPath)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &CaptureError{Err: fmt.Errorf("failed to open ffmpeg stdin: %w", err)}
	}
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return &CaptureError{Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}

	run := &ffmpegRun{
		cmd:     cmd,
		stdin:   stdin,
		outPath: outPath,
		stderr:  stderr,
	}
	s.cur = run

	log.Printf("[Capture] Recording from %s/%s (pid=%d, out=%s)", s.format, s.device, cmd.Process.Pid, outPath)

	go s.wait(run, cb)
	return nil
}

// wait reaps ffmpeg and reports the outcome exactly once.
func (s *FFmpegCapture) wait(run *ffmpegRun, cb CaptureCallbacks) {
	waitErr := run.cmd.Wait()

	s.mu.Lock()
	if s.cur == run {
		s.cur = nil
	}
	s.mu.Unlock()

	defer s.Cleanup(run.outPath)

	if !run.stopping.Load() {
		err := waitErr
		if err == nil {
			err = fmt.Errorf("ffmpeg exited before stop")
		}
		log.Printf("[Capture] ffmpeg exited unexpectedly: %v", err)
		cb.OnError(&CaptureError{Err: err, Detail: run.stderr.String()})
		return
	}

	data, err := os.ReadFile(run.outPath)
	if err != nil || len(data) == 0 {
		if err == nil {
			err = fmt.Errorf("ffmpeg produced an empty recording")
		}
		if waitErr != nil {
			err = fmt.Errorf("%w (ffmpeg: %v)", err, waitErr)
		}
		cb.OnError(&CaptureError{Err: err, Detail: run.stderr.String()})
		return
	}

	// ffmpeg may exit non-zero after "q" on some inputs; the file is still complete
	if waitErr != nil {
		log.Printf("[Capture] ffmpeg exited with %v after stop, keeping %d bytes", waitErr, len(data))
	}

	log.Printf("[Capture] Recording finalized (%d bytes)", len(data))
	cb.OnStopped(data)
}

// Pause is a no-op: ffmpeg has no pause control, and the session stops
// right after pausing.
func (s *FFmpegCapture) Pause() error {
	return nil
}

// Stop asks ffmpeg to finish writing the container and exit.
func (s *FFmpegCapture) Stop() error {
	s.mu.Lock()
	run := s.cur
	s.mu.Unlock()

	if run == nil {
		return fmt.Errorf("ffmpeg capture: %w", models.ErrNotRecording)
	}
	if !run.stopping.CompareAndSwap(false, true) {
		return nil
	}

	// "q" on stdin is ffmpeg's graceful quit; fall back to SIGINT
	if _, err := io.WriteString(run.stdin, "q"); err != nil {
		log.Printf("[Capture] Failed to send quit to ffmpeg (%v), interrupting", err)
		if sigErr := run.cmd.Process.Signal(os.Interrupt); sigErr != nil {
			return fmt.Errorf("failed to stop ffmpeg: %w", sigErr)
		}
	}
	run.stdin.Close()

	return nil
}

// CreateTempFile returns a path inside the capture temp directory.
func (s *FFmpegCapture) CreateTempFile(filename string) string {
	return filepath.Join(s.tempDir, filename)
}

// Cleanup removes temporary files, ignoring ones that are already gone.
func (s *FFmpegCapture) Cleanup(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("[Capture] Failed to remove %s: %v", p, err)
		}
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
