package capture

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"triageapp/internal/client/draft"
	contextutils "triageapp/internal/utils"
)

const (
	// DefaultSettleDelay lets the dialog disappear before the screenshot is taken
	DefaultSettleDelay = 300 * time.Millisecond
	// DefaultChunkInterval is the recorder timeslice
	DefaultChunkInterval = time.Second
	// VideoMimeType is the container of finished recordings
	VideoMimeType = "video/webm"
	// ScreenshotMimeType is the encoding screenshot providers return
	ScreenshotMimeType = "image/png"

	mobileBreakpoint = 768
	mobileScaleCap   = 2.0
	desktopScaleCap  = 1.5
)

// DefaultExclude hides the capture widget and open overlays from screenshots
var DefaultExclude = []string{
	"[data-capture-widget]",
	"[role=dialog]",
	"[data-overlay]",
}

// Config tunes the engine
type Config struct {
	SettleDelay   time.Duration
	ChunkInterval time.Duration
	TickInterval  time.Duration
	Exclude       []string
}

// Engine is the capture state machine. At most one capture runs at a time;
// starting a capture outside idle is a no-op.
type Engine struct {
	draft      *draft.Store
	screenshot ScreenshotProvider
	devices    MediaDevices
	recorders  RecorderFactory
	viewport   Viewport
	cfg        Config

	mu      sync.Mutex
	mode    draft.CaptureMode
	session *session
	// startCancelled is set by a stop or cancel that arrives while StartRecording waits for permissions
	startCancelled bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// session is one screen recording
type session struct {
	recorder Recorder
	tracks   []Track
	started  time.Time

	mu        sync.Mutex
	chunks    [][]byte
	discarded bool

	done     chan struct{}
	doneOnce sync.Once
	// ticking is closed when the elapsed-time ticker has exited
	ticking chan struct{}
}

func (s *session) addChunk(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discarded || len(chunk) == 0 {
		return
	}
	s.chunks = append(s.chunks, append([]byte(nil), chunk...))
}

func (s *session) discard() {
	s.mu.Lock()
	s.discarded = true
	s.chunks = nil
	s.mu.Unlock()
}

func (s *session) video() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Join(s.chunks, nil)
}

func (s *session) finish() {
	s.doneOnce.Do(func() {
		close(s.done)
		for _, t := range s.tracks {
			t.Stop()
		}
	})
}

// NewEngine creates an idle engine writing into store
func NewEngine(store *draft.Store, screenshot ScreenshotProvider, devices MediaDevices, recorders RecorderFactory, viewport Viewport, cfg Config) *Engine {
	if store == nil {
		panic("capture.NewEngine: draft store is required")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = DefaultChunkInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Exclude == nil {
		cfg.Exclude = DefaultExclude
	}
	if viewport == nil {
		viewport = StaticViewport{PixelRatio: 1, WidthPx: 1280}
	}
	return &Engine{
		draft:      store,
		screenshot: screenshot,
		devices:    devices,
		recorders:  recorders,
		viewport:   viewport,
		cfg:        cfg,
		mode:       draft.ModeIdle,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mode returns the current state
func (e *Engine) Mode() draft.CaptureMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// enter moves from idle to mode; false means another capture owns the engine
func (e *Engine) enter(mode draft.CaptureMode) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != draft.ModeIdle {
		return false
	}
	e.mode = mode
	e.startCancelled = false
	return true
}

// cancelPendingStart flags a recording that has not started yet so StartRecording abandons it
func (e *Engine) cancelPendingStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == draft.ModeRecording && e.session == nil {
		e.startCancelled = true
	}
}

// takeStartCancel consumes the pending cancel; on true the engine is back to idle
func (e *Engine) takeStartCancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.startCancelled {
		return false
	}
	e.startCancelled = false
	e.mode = draft.ModeIdle
	return true
}

func (e *Engine) setIdle() {
	e.mu.Lock()
	e.mode = draft.ModeIdle
	e.session = nil
	e.mu.Unlock()
	e.draft.SetCaptureMode(draft.ModeIdle)
}

// Scale is min(devicePixelRatio, cap); narrow viewports allow a sharper capture
func Scale(v Viewport) float64 {
	limit := desktopScaleCap
	if v.Width() < mobileBreakpoint {
		limit = mobileScaleCap
	}
	ratio := v.DevicePixelRatio()
	if ratio <= 0 {
		ratio = 1
	}
	return math.Min(ratio, limit)
}

func captureError(err error, msg string) error {
	if errors.Is(err, ErrPermissionDenied) {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeCapturePermissionDenied, contextutils.SeverityWarn, msg, err.Error(), err)
	}
	return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeCaptureFailed, contextutils.SeverityWarn, msg, err.Error(), err)
}

// TakeScreenshot hides the dialog, captures the view and stores the image in the draft.
// On failure the previous screenshot, if any, is kept.
func (e *Engine) TakeScreenshot(ctx context.Context) error {
	if e.screenshot == nil {
		return contextutils.WrapError(contextutils.ErrCaptureFailed, "screenshots are not supported here")
	}
	if !e.enter(draft.ModeScreenshotPending) {
		return nil
	}
	e.draft.SetCaptureMode(draft.ModeScreenshotPending)
	defer e.setIdle()

	if err := e.sleep(ctx, e.cfg.SettleDelay); err != nil {
		return captureError(err, "screenshot cancelled")
	}

	img, err := e.screenshot.Capture(ctx, ScreenshotOptions{
		Scale:   Scale(e.viewport),
		Exclude: append([]string(nil), e.cfg.Exclude...),
	})
	if err != nil {
		return captureError(err, "screenshot failed")
	}
	if len(img) == 0 {
		return contextutils.WrapError(contextutils.ErrCaptureFailed, "screenshot is empty")
	}
	e.draft.SetScreenshot(img, ScreenshotMimeType)
	return nil
}

// StartRecording begins a screen recording with display audio and, when available, microphone narration.
func (e *Engine) StartRecording(ctx context.Context) error {
	if e.devices == nil || e.recorders == nil {
		return contextutils.WrapError(contextutils.ErrCaptureFailed, "screen recording is not supported here")
	}
	if !e.enter(draft.ModeRecording) {
		return nil
	}

	display, err := e.devices.DisplayMedia(ctx)
	if err != nil {
		e.abortStart()
		return captureError(err, "screen sharing was not started")
	}
	displayTracks := display.Tracks()
	if e.takeStartCancel() {
		stopAll(displayTracks)
		return nil
	}
	var video Track
	for _, t := range displayTracks {
		if t.Kind() == KindVideo {
			video = t
			break
		}
	}
	if video == nil {
		stopAll(displayTracks)
		e.abortStart()
		return contextutils.WrapError(contextutils.ErrCaptureFailed, "screen share has no video track")
	}

	// narration is optional
	tracks := append([]Track(nil), displayTracks...)
	hasMic := false
	if mic, err := e.devices.Microphone(ctx); err == nil && mic != nil {
		for _, t := range mic.Tracks() {
			if t.Kind() == KindAudio {
				tracks = append(tracks, t)
				hasMic = true
			} else {
				t.Stop()
			}
		}
	}

	if e.takeStartCancel() {
		stopAll(tracks)
		return nil
	}

	rec, err := e.recorders.NewRecorder(tracks, VideoMimeType)
	if err != nil {
		stopAll(tracks)
		e.abortStart()
		return captureError(err, "recorder could not be created")
	}
	s := &session{recorder: rec, tracks: tracks, started: e.now(), done: make(chan struct{}), ticking: make(chan struct{})}
	if err := rec.Start(e.cfg.ChunkInterval, s.addChunk); err != nil {
		stopAll(tracks)
		e.abortStart()
		return captureError(err, "recording failed to start")
	}

	e.mu.Lock()
	cancelled := e.startCancelled
	if cancelled {
		e.startCancelled = false
		e.mode = draft.ModeIdle
	} else {
		e.session = s
	}
	e.mu.Unlock()
	if cancelled {
		s.discard()
		_ = rec.Stop(ctx)
		stopAll(tracks)
		return nil
	}

	e.draft.SetHasMicrophone(hasMic)
	e.draft.SetCaptureMode(draft.ModeRecording)

	go e.tick(s)
	go e.watchEnd(s, video)
	return nil
}

func stopAll(tracks []Track) {
	for _, t := range tracks {
		t.Stop()
	}
}

func (e *Engine) abortStart() {
	e.mu.Lock()
	e.mode = draft.ModeIdle
	e.mu.Unlock()
}

func (e *Engine) tick(s *session) {
	defer close(s.ticking)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			// select picks randomly when both are ready
			select {
			case <-s.done:
				return
			default:
			}
			e.draft.SetRecordingElapsed(e.now().Sub(s.started))
		}
	}
}

// watchEnd stops the recording when the user ends screen sharing from the platform UI
func (e *Engine) watchEnd(s *session, video Track) {
	select {
	case <-s.done:
	case <-video.Ended():
		_ = e.stopSession(context.Background(), s)
	}
}

// takeSession detaches s from the engine; false if another stop or cancel got there first
func (e *Engine) takeSession(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || (s != nil && e.session != s) {
		return false
	}
	e.session = nil
	return true
}

func (e *Engine) current() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// StopRecording flushes the recorder and stores the finished video in the draft.
// Called while StartRecording still waits for permissions, it abandons that start.
func (e *Engine) StopRecording(ctx context.Context) error {
	s := e.current()
	if s == nil {
		e.cancelPendingStart()
		return nil
	}
	return e.stopSession(ctx, s)
}

func (e *Engine) stopSession(ctx context.Context, s *session) error {
	if !e.takeSession(s) {
		return nil
	}
	err := s.recorder.Stop(ctx)
	s.finish()
	<-s.ticking

	defer func() {
		e.mu.Lock()
		e.mode = draft.ModeIdle
		e.mu.Unlock()
		e.draft.SetCaptureMode(draft.ModeIdle)
	}()

	if err != nil {
		return captureError(err, "recording could not be finished")
	}
	blob := s.video()
	if len(blob) == 0 {
		return contextutils.WrapError(contextutils.ErrCaptureFailed, "recording is empty")
	}
	e.draft.SetVideo(blob, VideoMimeType)
	return nil
}

// CancelRecording ends the recording without keeping anything. Chunks delivered
// while the recorder flushes are dropped. A start still waiting for permissions is abandoned.
func (e *Engine) CancelRecording(ctx context.Context) error {
	s := e.current()
	if s == nil {
		e.cancelPendingStart()
		return nil
	}
	if !e.takeSession(s) {
		return nil
	}
	s.discard()
	err := s.recorder.Stop(ctx)
	s.finish()
	<-s.ticking

	e.mu.Lock()
	e.mode = draft.ModeIdle
	e.mu.Unlock()
	e.draft.SetCaptureMode(draft.ModeIdle)

	if err != nil {
		return captureError(err, "recording could not be cancelled cleanly")
	}
	return nil
}
