package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"triageapp/internal/client/draft"
	contextutils "triageapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type previews struct{ n int }

func (p *previews) Create([]byte, string) string { p.n++; return fmt.Sprintf("blob:%d", p.n) }
func (p *previews) Revoke(string)                {}

type fakeScreenshot struct {
	mu    sync.Mutex
	calls []ScreenshotOptions
	img   []byte
	err   error
}

func (f *fakeScreenshot) Capture(_ context.Context, opts ScreenshotOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	return f.img, f.err
}

type fakeTrack struct {
	kind    TrackKind
	ended   chan struct{}
	mu      sync.Mutex
	stopped int
}

func newTrack(kind TrackKind) *fakeTrack { return &fakeTrack{kind: kind, ended: make(chan struct{})} }

func (t *fakeTrack) Kind() TrackKind        { return t.kind }
func (t *fakeTrack) Ended() <-chan struct{} { return t.ended }
func (t *fakeTrack) Stop()                  { t.mu.Lock(); t.stopped++; t.mu.Unlock() }
func (t *fakeTrack) stopCount() int         { t.mu.Lock(); defer t.mu.Unlock(); return t.stopped }

type stream []Track

func (s stream) Tracks() []Track { return s }

type fakeDevices struct {
	display    stream
	displayErr error
	mic        stream
	micErr     error
}

func (d *fakeDevices) DisplayMedia(context.Context) (Stream, error) {
	if d.displayErr != nil {
		return nil, d.displayErr
	}
	return d.display, nil
}

func (d *fakeDevices) Microphone(context.Context) (Stream, error) {
	if d.micErr != nil {
		return nil, d.micErr
	}
	return d.mic, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	onChunk  func([]byte)
	tracks   []Track
	mimeType string
	// flush is delivered from Stop before it returns
	flush []byte
}

func (r *fakeRecorder) Start(_ time.Duration, onChunk func([]byte)) error {
	r.mu.Lock()
	r.onChunk = onChunk
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) emit(chunk []byte) {
	r.mu.Lock()
	fn := r.onChunk
	r.mu.Unlock()
	fn(chunk)
}

func (r *fakeRecorder) Stop(context.Context) error {
	if r.flush != nil {
		r.emit(r.flush)
	}
	return nil
}

type fakeFactory struct{ rec *fakeRecorder }

func (f *fakeFactory) NewRecorder(tracks []Track, mimeType string) (Recorder, error) {
	f.rec.tracks = tracks
	f.rec.mimeType = mimeType
	return f.rec, nil
}

type fixture struct {
	store      *draft.Store
	engine     *Engine
	screenshot *fakeScreenshot
	devices    *fakeDevices
	recorder   *fakeRecorder
	video      *fakeTrack
	sysAudio   *fakeTrack
	micAudio   *fakeTrack
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      draft.NewStore(&previews{}),
		screenshot: &fakeScreenshot{img: []byte("png")},
		recorder:   &fakeRecorder{},
		video:      newTrack(KindVideo),
		sysAudio:   newTrack(KindAudio),
		micAudio:   newTrack(KindAudio),
	}
	f.devices = &fakeDevices{display: stream{f.video, f.sysAudio}, mic: stream{f.micAudio}}
	f.engine = NewEngine(f.store, f.screenshot, f.devices, &fakeFactory{rec: f.recorder}, StaticViewport{PixelRatio: 3, WidthPx: 1440}, Config{TickInterval: time.Hour})
	f.engine.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func TestScale(t *testing.T) {
	assert.Equal(t, 1.5, Scale(StaticViewport{PixelRatio: 3, WidthPx: 1440}))
	assert.Equal(t, 2.0, Scale(StaticViewport{PixelRatio: 3, WidthPx: 390}))
	assert.Equal(t, 1.0, Scale(StaticViewport{PixelRatio: 1, WidthPx: 390}))
	assert.Equal(t, 1.0, Scale(StaticViewport{WidthPx: 1440}))
}

func TestTakeScreenshot(t *testing.T) {
	f := newFixture(t)
	f.store.OpenDialog()

	var modes []draft.CaptureMode
	var dialogDuringCapture bool
	f.store.Subscribe(func(d draft.Draft) {
		modes = append(modes, d.CaptureMode)
		if d.CaptureMode == draft.ModeScreenshotPending {
			dialogDuringCapture = d.DialogOpen
		}
	})

	require.NoError(t, f.engine.TakeScreenshot(context.Background()))

	require.Len(t, f.screenshot.calls, 1)
	assert.Equal(t, 1.5, f.screenshot.calls[0].Scale)
	assert.Equal(t, DefaultExclude, f.screenshot.calls[0].Exclude)
	assert.False(t, dialogDuringCapture, "dialog hidden while capturing")

	d := f.store.Snapshot()
	require.NotNil(t, d.Screenshot)
	assert.Equal(t, []byte("png"), d.Screenshot.Blob)
	assert.True(t, d.DialogOpen)
	assert.Equal(t, draft.ModeIdle, f.engine.Mode())
	assert.Contains(t, modes, draft.ModeScreenshotPending)
}

func TestTakeScreenshot_FailuresKeepPreviousMedia(t *testing.T) {
	f := newFixture(t)
	f.store.SetScreenshot([]byte("old"), "image/png")

	f.screenshot.err = fmt.Errorf("wrapped: %w", ErrPermissionDenied)
	err := f.engine.TakeScreenshot(context.Background())
	assert.True(t, errors.Is(err, contextutils.ErrCapturePermissionDenied), "got %v", err)

	f.screenshot.err = errors.New("canvas tainted")
	err = f.engine.TakeScreenshot(context.Background())
	assert.True(t, errors.Is(err, contextutils.ErrCaptureFailed), "got %v", err)

	f.screenshot.err = nil
	f.screenshot.img = nil
	err = f.engine.TakeScreenshot(context.Background())
	assert.True(t, errors.Is(err, contextutils.ErrCaptureFailed), "empty image")

	assert.Equal(t, []byte("old"), f.store.Snapshot().Screenshot.Blob)
	assert.Equal(t, draft.ModeIdle, f.engine.Mode())
}

func TestConflictingStartsAreNoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.StartRecording(ctx))
	assert.Equal(t, draft.ModeRecording, f.engine.Mode())

	assert.NoError(t, f.engine.TakeScreenshot(ctx))
	assert.Empty(t, f.screenshot.calls, "no provider call while recording")
	assert.NoError(t, f.engine.StartRecording(ctx))
	assert.Equal(t, draft.ModeRecording, f.engine.Mode())

	require.NoError(t, f.engine.CancelRecording(ctx))
	assert.NoError(t, f.engine.StopRecording(ctx), "stop when idle is a no-op")
	assert.NoError(t, f.engine.CancelRecording(ctx), "cancel when idle is a no-op")
}

func TestRecording_StopStoresVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.OpenDialog()

	require.NoError(t, f.engine.StartRecording(ctx))
	d := f.store.Snapshot()
	assert.True(t, d.Minimized)
	assert.True(t, d.HasMicrophone)
	assert.Len(t, f.recorder.tracks, 3, "display video, display audio and mic")
	assert.Equal(t, VideoMimeType, f.recorder.mimeType)

	f.recorder.emit([]byte("aa"))
	f.recorder.emit([]byte("bb"))
	f.recorder.flush = []byte("cc")
	require.NoError(t, f.engine.StopRecording(ctx))

	d = f.store.Snapshot()
	require.NotNil(t, d.Video)
	assert.Equal(t, []byte("aabbcc"), d.Video.Blob, "the final flush is kept")
	assert.Equal(t, VideoMimeType, d.Video.ContentType)
	assert.False(t, d.Minimized)
	assert.Equal(t, draft.ModeIdle, f.engine.Mode())
	for _, tr := range []*fakeTrack{f.video, f.sysAudio, f.micAudio} {
		assert.Equal(t, 1, tr.stopCount())
	}
}

func TestRecording_CancelDropsFlushedChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetVideo([]byte("previous"), VideoMimeType)

	require.NoError(t, f.engine.StartRecording(ctx))
	f.recorder.emit([]byte("aa"))
	f.recorder.flush = []byte("late")

	require.NoError(t, f.engine.CancelRecording(ctx))
	assert.Equal(t, []byte("previous"), f.store.Snapshot().Video.Blob, "no video stored")
	assert.Equal(t, draft.ModeIdle, f.engine.Mode())
	assert.Equal(t, 1, f.video.stopCount())
}

func TestRecording_MicrophoneIsOptional(t *testing.T) {
	f := newFixture(t)
	f.devices.micErr = ErrPermissionDenied

	require.NoError(t, f.engine.StartRecording(context.Background()))
	assert.False(t, f.store.Snapshot().HasMicrophone)
	assert.Len(t, f.recorder.tracks, 2)
	require.NoError(t, f.engine.CancelRecording(context.Background()))
}

func TestRecording_DisplayDenied(t *testing.T) {
	f := newFixture(t)
	f.devices.displayErr = ErrPermissionDenied

	err := f.engine.StartRecording(context.Background())
	assert.True(t, errors.Is(err, contextutils.ErrCapturePermissionDenied))
	assert.Equal(t, draft.ModeIdle, f.engine.Mode())

	// the engine is usable again
	f.devices.displayErr = nil
	require.NoError(t, f.engine.StartRecording(context.Background()))
	require.NoError(t, f.engine.CancelRecording(context.Background()))
}

func TestRecording_StopsWhenSharingEnds(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.StartRecording(context.Background()))
	f.recorder.emit([]byte("frames"))

	close(f.video.ended)
	require.Eventually(t, func() bool { return f.engine.Mode() == draft.ModeIdle }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.store.Snapshot().Video != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("frames"), f.store.Snapshot().Video.Blob)
}

func TestRecording_EmptyRecordingFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.StartRecording(context.Background()))
	err := f.engine.StopRecording(context.Background())
	assert.True(t, errors.Is(err, contextutils.ErrCaptureFailed))
	assert.Nil(t, f.store.Snapshot().Video)
	assert.Equal(t, draft.ModeIdle, f.engine.Mode())
}

func TestUnsupportedProviders(t *testing.T) {
	e := NewEngine(draft.NewStore(&previews{}), nil, nil, nil, nil, Config{})
	assert.True(t, errors.Is(e.TakeScreenshot(context.Background()), contextutils.ErrCaptureFailed))
	assert.True(t, errors.Is(e.StartRecording(context.Background()), contextutils.ErrCaptureFailed))
	assert.Equal(t, draft.ModeIdle, e.Mode())
}

// gatedDevices blocks the display request until release is closed
type gatedDevices struct {
	*fakeDevices
	asked   chan struct{}
	release chan struct{}
}

func (d *gatedDevices) DisplayMedia(ctx context.Context) (Stream, error) {
	close(d.asked)
	<-d.release
	return d.fakeDevices.DisplayMedia(ctx)
}

func TestRecording_CancelWhileAwaitingPermission(t *testing.T) {
	for _, name := range []string{"cancel", "stop"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			devices := &gatedDevices{fakeDevices: f.devices, asked: make(chan struct{}), release: make(chan struct{})}
			f.engine = NewEngine(f.store, f.screenshot, devices, &fakeFactory{rec: f.recorder}, StaticViewport{PixelRatio: 1, WidthPx: 1440}, Config{TickInterval: time.Hour})
			ctx := context.Background()

			started := make(chan error, 1)
			go func() { started <- f.engine.StartRecording(ctx) }()
			<-devices.asked
			assert.Equal(t, draft.ModeRecording, f.engine.Mode())

			if name == "cancel" {
				require.NoError(t, f.engine.CancelRecording(ctx))
			} else {
				require.NoError(t, f.engine.StopRecording(ctx))
			}
			close(devices.release)
			require.NoError(t, <-started)

			assert.Equal(t, draft.ModeIdle, f.engine.Mode())
			assert.Nil(t, f.recorder.onChunk, "recorder never started")
			assert.Equal(t, 1, f.video.stopCount(), "shared screen released")
			assert.Equal(t, 1, f.sysAudio.stopCount())
			d := f.store.Snapshot()
			assert.Nil(t, d.Video)
			assert.Equal(t, draft.ModeIdle, d.CaptureMode)

			// the next start is not affected by the abandoned one
			require.NoError(t, f.engine.StartRecording(ctx))
			assert.Equal(t, draft.ModeRecording, f.engine.Mode())
			require.NoError(t, f.engine.CancelRecording(ctx))
		})
	}
}

func TestRecording_ElapsedResetAfterStop(t *testing.T) {
	f := newFixture(t)
	f.engine = NewEngine(f.store, f.screenshot, f.devices, &fakeFactory{rec: f.recorder}, StaticViewport{PixelRatio: 1, WidthPx: 1440}, Config{TickInterval: time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, f.engine.StartRecording(ctx))
		require.Eventually(t, func() bool { return f.store.Snapshot().RecordingElapsed > 0 }, time.Second, time.Millisecond)
		f.recorder.emit([]byte("frames"))
		if i%2 == 0 {
			require.NoError(t, f.engine.StopRecording(ctx))
		} else {
			require.NoError(t, f.engine.CancelRecording(ctx))
		}
		assert.Equal(t, time.Duration(0), f.store.Snapshot().RecordingElapsed, "iteration %d", i)
	}
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, time.Duration(0), f.store.Snapshot().RecordingElapsed)
}
