// Package capture takes screenshots and screen recordings into the report draft.
// Platform access goes through the provider interfaces so the engine can run anywhere.
package capture

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned by providers when the user or platform refuses access
var ErrPermissionDenied = errors.New("capture: permission denied")

// ScreenshotOptions controls one screenshot
type ScreenshotOptions struct {
	Scale   float64
	Exclude []string
}

// ScreenshotProvider renders the current view to encoded image bytes
type ScreenshotProvider interface {
	Capture(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
}

// TrackKind is the media kind of a track
type TrackKind string

// Track kinds
const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

// Track is one live media track
type Track interface {
	Kind() TrackKind
	// Ended is closed when the track stops on its own, e.g. the user ends screen sharing
	Ended() <-chan struct{}
	Stop()
}

// Stream groups the tracks returned by one device request
type Stream interface {
	Tracks() []Track
}

// MediaDevices grants access to the display and the microphone
type MediaDevices interface {
	DisplayMedia(ctx context.Context) (Stream, error)
	Microphone(ctx context.Context) (Stream, error)
}

// Recorder encodes tracks into chunks
type Recorder interface {
	// Start begins recording and calls onChunk every timeslice
	Start(timeslice time.Duration, onChunk func([]byte)) error
	// Stop flushes the last chunk through onChunk and returns when the recorder is done
	Stop(ctx context.Context) error
}

// RecorderFactory creates recorders for a set of tracks
type RecorderFactory interface {
	NewRecorder(tracks []Track, mimeType string) (Recorder, error)
}

// Viewport describes the display the screenshot is taken from
type Viewport interface {
	DevicePixelRatio() float64
	Width() int
}

// StaticViewport is a fixed Viewport
type StaticViewport struct {
	PixelRatio float64
	WidthPx    int
}

// DevicePixelRatio implements Viewport
func (v StaticViewport) DevicePixelRatio() float64 { return v.PixelRatio }

// Width implements Viewport
func (v StaticViewport) Width() int { return v.WidthPx }
