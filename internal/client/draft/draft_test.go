package draft

import (
	"fmt"
	"sync"
	"testing"

	"triageapp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePreviews struct {
	mu      sync.Mutex
	n       int
	live    map[string]bool
	revoked map[string]int
}

func newFakePreviews() *fakePreviews {
	return &fakePreviews{live: map[string]bool{}, revoked: map[string]int{}}
}

func (f *fakePreviews) Create(_ []byte, contentType string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	url := fmt.Sprintf("blob:%s/%d", contentType, f.n)
	f.live[url] = true
	return url
}

func (f *fakePreviews) Revoke(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[url]++
	delete(f.live, url)
}

func TestStore_Defaults(t *testing.T) {
	s := NewStore(newFakePreviews())
	d := s.Snapshot()
	assert.Equal(t, models.ReportTypeBug, d.ReportType)
	assert.Equal(t, models.SeverityMedium, d.Severity)
	assert.Equal(t, models.CategoryOther, d.Category)
	assert.Equal(t, ModeIdle, d.CaptureMode)
	assert.False(t, d.DialogOpen)
}

func TestStore_PreviewsRevokedExactlyOnce(t *testing.T) {
	previews := newFakePreviews()
	s := NewStore(previews)

	s.SetScreenshot([]byte("one"), "image/png")
	first := s.Snapshot().Screenshot.PreviewURL
	s.SetScreenshot([]byte("two"), "image/png")
	second := s.Snapshot().Screenshot.PreviewURL
	s.SetVideo([]byte("vid"), "video/webm")
	video := s.Snapshot().Video.PreviewURL

	assert.Equal(t, 1, previews.revoked[first], "superseded preview")
	assert.Zero(t, previews.revoked[second])

	s.ClearScreenshot()
	assert.Equal(t, 1, previews.revoked[second])
	assert.Nil(t, s.Snapshot().Screenshot)

	s.Reset()
	s.Reset()
	assert.Equal(t, 1, previews.revoked[video])
	assert.Equal(t, 1, previews.revoked[first], "previous revocations are not repeated")
	assert.Empty(t, previews.live)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore(newFakePreviews())
	s.SetScreenshot([]byte("abc"), "image/png")

	snap := s.Snapshot()
	snap.Screenshot.Blob[0] = 'x'
	snap.Screenshot.UploadedURL = "https://cdn/x.png"
	snap.Title = "changed"

	again := s.Snapshot()
	assert.Equal(t, []byte("abc"), again.Screenshot.Blob)
	assert.False(t, again.Screenshot.Uploaded())
	assert.Empty(t, again.Title)
}

func TestStore_MarkUploaded(t *testing.T) {
	s := NewStore(newFakePreviews())
	assert.False(t, s.MarkScreenshotUploaded("", "https://cdn/ignored.png"))
	assert.Nil(t, s.Snapshot().Screenshot, "no screenshot to mark")

	s.SetScreenshot([]byte("abc"), "image/png")
	shot := s.Snapshot().Screenshot.PreviewURL
	assert.True(t, s.MarkScreenshotUploaded(shot, "https://cdn/s.png"))
	s.SetVideo([]byte("v"), "video/webm")
	assert.True(t, s.MarkVideoUploaded(s.Snapshot().Video.PreviewURL, "https://cdn/v.webm"))

	d := s.Snapshot()
	assert.True(t, d.Screenshot.Uploaded())
	assert.Equal(t, "https://cdn/v.webm", d.Video.UploadedURL)

	// a new capture starts a new upload
	s.SetScreenshot([]byte("new"), "image/png")
	assert.False(t, s.Snapshot().Screenshot.Uploaded())

	// the URL of the replaced screenshot is not attached to its successor
	assert.False(t, s.MarkScreenshotUploaded(shot, "https://cdn/s.png"))
	assert.False(t, s.Snapshot().Screenshot.Uploaded())
}

func TestStore_CaptureModeDialogEffects(t *testing.T) {
	s := NewStore(newFakePreviews())
	s.OpenDialog()

	s.SetCaptureMode(ModeScreenshotPending)
	d := s.Snapshot()
	assert.False(t, d.DialogOpen)

	s.SetCaptureMode(ModeIdle)
	d = s.Snapshot()
	assert.True(t, d.DialogOpen, "a capture that hid the dialog shows it again")
	assert.False(t, d.Minimized)

	s.SetCaptureMode(ModeRecording)
	s.SetRecordingElapsed(3_000_000_000)
	d = s.Snapshot()
	assert.True(t, d.DialogOpen)
	assert.True(t, d.Minimized)

	s.SetCaptureMode(ModeIdle)
	d = s.Snapshot()
	assert.False(t, d.Minimized)
	assert.Zero(t, d.RecordingElapsed)

	// a closed dialog stays closed after a screenshot
	s.CloseDialog()
	s.SetCaptureMode(ModeScreenshotPending)
	s.SetCaptureMode(ModeIdle)
	assert.False(t, s.Snapshot().DialogOpen)
}

func TestStore_ResetKeepsDialogFlags(t *testing.T) {
	s := NewStore(newFakePreviews())
	s.OpenDialog()
	s.SetTitle("Broken")
	s.SetDescription("details")
	s.SetSeverity(models.SeverityCritical)
	s.SetCategory(models.CategoryUI)
	s.SetReportType(models.ReportTypeSupport)
	s.SetHasMicrophone(true)

	s.Reset()
	d := s.Snapshot()
	assert.True(t, d.DialogOpen)
	assert.Empty(t, d.Title)
	assert.Empty(t, d.Description)
	assert.Equal(t, models.SeverityMedium, d.Severity)
	assert.Equal(t, models.CategoryOther, d.Category)
	assert.Equal(t, models.ReportTypeBug, d.ReportType)
	assert.False(t, d.HasMicrophone)
}

func TestStore_SubscribeInOrder(t *testing.T) {
	s := NewStore(newFakePreviews())
	var titles []string
	unsubscribe := s.Subscribe(func(d Draft) { titles = append(titles, d.Title) })

	s.SetTitle("a")
	s.SetTitle("ab")
	unsubscribe()
	unsubscribe()
	s.SetTitle("abc")

	assert.Equal(t, []string{"a", "ab"}, titles)
}

func TestStore_ConcurrentMutations(t *testing.T) {
	s := NewStore(newFakePreviews())
	var mu sync.Mutex
	seen := 0
	s.Subscribe(func(Draft) { mu.Lock(); seen++; mu.Unlock() })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SetTitle(fmt.Sprintf("t%d", i))
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, seen)
}

func TestNewStore_RequiresRegistry(t *testing.T) {
	assert.Panics(t, func() { NewStore(nil) })
}
