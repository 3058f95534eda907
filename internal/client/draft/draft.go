// Package draft holds the client-side report draft: form fields, captured media and dialog flags.
package draft

import (
	"sync"
	"time"

	"triageapp/internal/models"
)

// CaptureMode is the capture engine state mirrored into the draft
type CaptureMode string

// Capture modes
const (
	ModeIdle              CaptureMode = "idle"
	ModeScreenshotPending CaptureMode = "screenshot-pending"
	ModeRecording         CaptureMode = "recording"
)

// Media is one captured blob with its local preview and, once sent, its durable URL
type Media struct {
	Blob        []byte
	ContentType string
	PreviewURL  string
	UploadedURL string
}

// Uploaded reports whether the blob already has a durable URL
func (m *Media) Uploaded() bool {
	return m != nil && m.UploadedURL != ""
}

// Draft is an immutable snapshot of the form
type Draft struct {
	ReportType  models.ReportType
	Title       string
	Description string
	Severity    models.Severity
	Category    models.Category

	Screenshot *Media
	Video      *Media

	DialogOpen       bool
	Minimized        bool
	CaptureMode      CaptureMode
	RecordingElapsed time.Duration
	HasMicrophone    bool

	// hiddenByCapture remembers that a capture, not the user, closed the dialog
	hiddenByCapture bool
}

// PreviewRegistry creates and revokes local preview URLs for blobs
type PreviewRegistry interface {
	Create(blob []byte, contentType string) string
	Revoke(url string)
}

// Listener receives the snapshot after each mutation
type Listener func(Draft)

// Store is the single mutable draft. Mutations are serialized and published in order.
type Store struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	state     Draft
	previews  PreviewRegistry
	listeners map[int]Listener
	nextID    int
}

func defaults() Draft {
	return Draft{
		ReportType:  models.ReportTypeBug,
		Severity:    models.SeverityMedium,
		Category:    models.CategoryOther,
		CaptureMode: ModeIdle,
	}
}

// NewStore creates an empty draft store
func NewStore(previews PreviewRegistry) *Store {
	if previews == nil {
		panic("draft.NewStore: preview registry is required")
	}
	return &Store{state: defaults(), previews: previews, listeners: make(map[int]Listener)}
}

func copyMedia(m *Media) *Media {
	if m == nil {
		return nil
	}
	c := *m
	c.Blob = append([]byte(nil), m.Blob...)
	return &c
}

func (d Draft) clone() Draft {
	d.Screenshot = copyMedia(d.Screenshot)
	d.Video = copyMedia(d.Video)
	return d
}

// Snapshot returns a copy of the current draft
func (s *Store) Snapshot() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn for post-mutation snapshots and returns the unsubscribe func.
// fn runs on the mutating goroutine and must not mutate the store itself.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// update applies fn under the lock, revokes previews after it, then notifies.
// notifyMu keeps deliveries in mutation order without holding the state lock during callbacks.
func (s *Store) update(fn func(d *Draft) []string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	revoke := fn(&s.state)
	snap := s.state.clone()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, url := range revoke {
		if url != "" {
			s.previews.Revoke(url)
		}
	}
	for _, l := range listeners {
		l(snap)
	}
}

// SetReportType sets bug or support
func (s *Store) SetReportType(t models.ReportType) {
	s.update(func(d *Draft) []string { d.ReportType = t; return nil })
}

// SetTitle sets the title
func (s *Store) SetTitle(title string) {
	s.update(func(d *Draft) []string { d.Title = title; return nil })
}

// SetDescription sets the description
func (s *Store) SetDescription(desc string) {
	s.update(func(d *Draft) []string { d.Description = desc; return nil })
}

// SetSeverity sets the severity
func (s *Store) SetSeverity(sev models.Severity) {
	s.update(func(d *Draft) []string { d.Severity = sev; return nil })
}

// SetCategory sets the category
func (s *Store) SetCategory(c models.Category) {
	s.update(func(d *Draft) []string { d.Category = c; return nil })
}

func (s *Store) newMedia(blob []byte, contentType string) *Media {
	return &Media{
		Blob:        append([]byte(nil), blob...),
		ContentType: contentType,
		PreviewURL:  s.previews.Create(blob, contentType),
	}
}

func previewOf(m *Media) []string {
	if m == nil {
		return nil
	}
	return []string{m.PreviewURL}
}

// SetScreenshot replaces the screenshot; the old preview is revoked
func (s *Store) SetScreenshot(blob []byte, contentType string) {
	m := s.newMedia(blob, contentType)
	s.update(func(d *Draft) []string {
		old := previewOf(d.Screenshot)
		d.Screenshot = m
		return old
	})
}

// SetVideo replaces the recording; the old preview is revoked
func (s *Store) SetVideo(blob []byte, contentType string) {
	m := s.newMedia(blob, contentType)
	s.update(func(d *Draft) []string {
		old := previewOf(d.Video)
		d.Video = m
		return old
	})
}

// ClearScreenshot drops the screenshot
func (s *Store) ClearScreenshot() {
	s.update(func(d *Draft) []string {
		old := previewOf(d.Screenshot)
		d.Screenshot = nil
		return old
	})
}

// ClearVideo drops the recording
func (s *Store) ClearVideo() {
	s.update(func(d *Draft) []string {
		old := previewOf(d.Video)
		d.Video = nil
		return old
	})
}

// MarkScreenshotUploaded records the durable URL of the screenshot identified by
// previewURL. It reports false when that screenshot was replaced or removed meanwhile.
func (s *Store) MarkScreenshotUploaded(previewURL, url string) bool {
	marked := false
	s.update(func(d *Draft) []string {
		if d.Screenshot != nil && d.Screenshot.PreviewURL == previewURL {
			d.Screenshot.UploadedURL = url
			marked = true
		}
		return nil
	})
	return marked
}

// MarkVideoUploaded is MarkScreenshotUploaded for the recording slot
func (s *Store) MarkVideoUploaded(previewURL, url string) bool {
	marked := false
	s.update(func(d *Draft) []string {
		if d.Video != nil && d.Video.PreviewURL == previewURL {
			d.Video.UploadedURL = url
			marked = true
		}
		return nil
	})
	return marked
}

// SetCaptureMode mirrors the engine state and applies the dialog side effect
func (s *Store) SetCaptureMode(mode CaptureMode) {
	s.update(func(d *Draft) []string {
		d.CaptureMode = mode
		switch mode {
		case ModeScreenshotPending:
			if d.DialogOpen {
				d.DialogOpen = false
				d.hiddenByCapture = true
			}
		case ModeRecording:
			d.Minimized = true
		case ModeIdle:
			if d.hiddenByCapture {
				d.DialogOpen = true
				d.hiddenByCapture = false
			}
			d.Minimized = false
			d.RecordingElapsed = 0
		}
		return nil
	})
}

// SetRecordingElapsed updates the recording timer
func (s *Store) SetRecordingElapsed(elapsed time.Duration) {
	s.update(func(d *Draft) []string { d.RecordingElapsed = elapsed; return nil })
}

// SetHasMicrophone records whether narration is being captured
func (s *Store) SetHasMicrophone(has bool) {
	s.update(func(d *Draft) []string { d.HasMicrophone = has; return nil })
}

// OpenDialog shows the report dialog
func (s *Store) OpenDialog() {
	s.update(func(d *Draft) []string {
		d.DialogOpen = true
		d.Minimized = false
		d.hiddenByCapture = false
		return nil
	})
}

// CloseDialog hides the dialog, keeping the draft
func (s *Store) CloseDialog() {
	s.update(func(d *Draft) []string {
		d.DialogOpen = false
		d.Minimized = false
		d.hiddenByCapture = false
		return nil
	})
}

// Minimize collapses the dialog
func (s *Store) Minimize() {
	s.update(func(d *Draft) []string { d.Minimized = true; return nil })
}

// Restore expands a minimized dialog
func (s *Store) Restore() {
	s.update(func(d *Draft) []string { d.Minimized = false; return nil })
}

// Reset revokes every live preview and restores the defaults. The dialog flags survive.
func (s *Store) Reset() {
	s.update(func(d *Draft) []string {
		revoke := append(previewOf(d.Screenshot), previewOf(d.Video)...)
		open, minimized := d.DialogOpen, d.Minimized
		*d = defaults()
		d.DialogOpen, d.Minimized = open, minimized
		return revoke
	})
}
