package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

// memReportRepo keeps reports and threads in memory with the same conflict rules as the SQL repository
type memReportRepo struct {
	mu       sync.Mutex
	reports  map[string]*models.Report
	order    []string
	messages map[string][]models.Message
	seq      int64
	clock    time.Time

	// beforeTransition runs inside TransitionStatus before the status check, to simulate a concurrent writer
	beforeTransition func(r *models.Report)
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{
		reports:  make(map[string]*models.Report),
		messages: make(map[string][]models.Message),
		clock:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (r *memReportRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memReportRepo) appendLocked(msg *models.Message) {
	r.seq++
	msg.Seq = r.seq
	msg.CreatedAt = r.tick()
	r.messages[msg.ReportID] = append(r.messages[msg.ReportID], *msg)
}

func (r *memReportRepo) CreateWithMessage(_ context.Context, report *models.Report, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.tick()
	report.CreatedAt, report.UpdatedAt = now, now
	cp := *report
	r.reports[report.ID] = &cp
	r.order = append(r.order, report.ID)
	r.appendLocked(msg)
	return nil
}

func (r *memReportRepo) GetByID(_ context.Context, id string) (*models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
	}
	cp := *rep
	return &cp, nil
}

func (r *memReportRepo) List(_ context.Context, f models.ReportFilter, limit, offset int) ([]models.Report, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []models.Report
	for i := len(r.order) - 1; i >= 0; i-- {
		rep := r.reports[r.order[i]]
		if f.Status != "" && rep.Status != f.Status {
			continue
		}
		if f.Severity != "" && rep.Severity != f.Severity {
			continue
		}
		if f.Category != "" && rep.Category != f.Category {
			continue
		}
		if f.ReportType != "" && rep.ReportType != f.ReportType {
			continue
		}
		if f.UserID != nil && rep.UserID != *f.UserID {
			continue
		}
		if f.AssignedTo != nil && (!rep.AssignedTo.Valid || int(rep.AssignedTo.Int32) != *f.AssignedTo) {
			continue
		}
		if !f.IncludeArchived && rep.ArchivedAt.Valid {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(rep.Title+" "+rep.Description), strings.ToLower(f.Search)) {
			continue
		}
		matched = append(matched, *rep)
	}
	total := len(matched)
	if offset >= total {
		return []models.Report{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memReportRepo) TransitionStatus(_ context.Context, id string, from, to models.ReportStatus, msg *models.Message) (*models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
	}
	if r.beforeTransition != nil {
		hook := r.beforeTransition
		r.beforeTransition = nil
		hook(rep)
	}
	if rep.Status != from {
		return nil, contextutils.WrapErrorf(contextutils.ErrConflict, "report %s is %s, not %s", id, rep.Status, from)
	}
	now := r.tick()
	rep.Status = to
	rep.UpdatedAt = now
	if to == models.StatusResolved {
		rep.ResolvedAt.Time, rep.ResolvedAt.Valid = now, true
	}
	if to == models.StatusClosed {
		rep.ClosedAt.Time, rep.ClosedAt.Valid = now, true
	}
	r.appendLocked(msg)
	cp := *rep
	return &cp, nil
}

func (r *memReportRepo) Assign(_ context.Context, id string, assigneeID int, msg *models.Message) (*models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
	}
	if rep.Status == models.StatusClosed {
		return nil, contextutils.WrapError(contextutils.ErrReportClosed, "report is closed")
	}
	rep.AssignedTo.Int32, rep.AssignedTo.Valid = int32(assigneeID), true
	r.appendLocked(msg)
	cp := *rep
	return &cp, nil
}

func (r *memReportRepo) Archive(_ context.Context, id string) (*models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
	}
	if !rep.ArchivedAt.Valid {
		rep.ArchivedAt.Time, rep.ArchivedAt.Valid = r.tick(), true
	}
	cp := *rep
	return &cp, nil
}

func (r *memReportRepo) AppendMessage(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[msg.ReportID]
	if !ok {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", msg.ReportID)
	}
	if rep.Status == models.StatusClosed {
		return contextutils.WrapError(contextutils.ErrReportClosed, "report is closed")
	}
	r.appendLocked(msg)
	return nil
}

func (r *memReportRepo) ListMessages(_ context.Context, reportID string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Message, len(r.messages[reportID]))
	copy(out, r.messages[reportID])
	return out, nil
}

func (r *memReportRepo) ListResolvedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Report
	for _, id := range r.order {
		rep := r.reports[id]
		if rep.Status == models.StatusResolved && rep.ResolvedAt.Valid && rep.ResolvedAt.Time.Before(cutoff) {
			out = append(out, *rep)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// setResolvedAt backdates a resolved report for auto-close tests
func (r *memReportRepo) setResolvedAt(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[id].ResolvedAt.Time = at
	r.reports[id].ResolvedAt.Valid = true
}

type memSatisfactionRepo struct {
	mu      sync.Mutex
	ratings map[string]*models.SatisfactionRating
	nextID  int
}

func newMemSatisfactionRepo() *memSatisfactionRepo {
	return &memSatisfactionRepo{ratings: make(map[string]*models.SatisfactionRating)}
}

func (r *memSatisfactionRepo) Create(_ context.Context, rating *models.SatisfactionRating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ratings[rating.ReportID]; ok {
		return contextutils.WrapError(contextutils.ErrSatisfactionExists, "report already rated")
	}
	r.nextID++
	rating.ID = r.nextID
	rating.CreatedAt = time.Now()
	cp := *rating
	r.ratings[rating.ReportID] = &cp
	return nil
}

func (r *memSatisfactionRepo) GetByReport(_ context.Context, reportID string) (*models.SatisfactionRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rating, ok := r.ratings[reportID]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "no rating for report %s", reportID)
	}
	cp := *rating
	return &cp, nil
}

type memJobRepo struct {
	mu    sync.Mutex
	jobs  []*models.AnalysisJob
	clock time.Time
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{clock: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (r *memJobRepo) find(id string) *models.AnalysisJob {
	for _, j := range r.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (r *memJobRepo) Create(_ context.Context, job *models.AnalysisJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = r.clock.Add(time.Second)
	job.CreatedAt = r.clock
	cp := *job
	r.jobs = append(r.jobs, &cp)
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id string) (*models.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.find(id)
	if j == nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "job %s not found", id)
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) Latest(ctx context.Context, reportID string) (*models.AnalysisJob, error) {
	jobs, _ := r.ListByReport(ctx, reportID)
	if len(jobs) == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "no analysis for report %s", reportID)
	}
	return &jobs[0], nil
}

func (r *memJobRepo) ListByReport(_ context.Context, reportID string) ([]models.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AnalysisJob
	for i := len(r.jobs) - 1; i >= 0; i-- {
		if r.jobs[i].ReportID == reportID {
			out = append(out, *r.jobs[i])
		}
	}
	return out, nil
}

func (r *memJobRepo) Claim(_ context.Context, id string) (*models.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.find(id)
	if j == nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "job %s not found", id)
	}
	if j.Status != models.JobPending {
		return nil, nil
	}
	j.Status = models.JobProcessing
	j.StartedAt.Time, j.StartedAt.Valid = time.Now(), true
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) Complete(_ context.Context, id string, out *models.AnalysisOutput, ms int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.find(id)
	if j == nil || j.Status != models.JobProcessing {
		return contextutils.WrapErrorf(contextutils.ErrConflict, "job %s is not processing", id)
	}
	res := out.Result
	j.Status = models.JobCompleted
	j.Result = &res
	j.ModelUsed = models.NewNullString(out.ModelUsed)
	j.ProcessingTimeMs.Int64, j.ProcessingTimeMs.Valid = ms, true
	j.CompletedAt.Time, j.CompletedAt.Valid = time.Now(), true
	return nil
}

func (r *memJobRepo) Fail(_ context.Context, id, message string, ms int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.find(id)
	if j == nil || j.Status != models.JobProcessing {
		return contextutils.WrapErrorf(contextutils.ErrConflict, "job %s is not processing", id)
	}
	j.Status = models.JobFailed
	j.Error = models.NewNullString(message)
	j.ProcessingTimeMs.Int64, j.ProcessingTimeMs.Valid = ms, true
	j.CompletedAt.Time, j.CompletedAt.Valid = time.Now(), true
	return nil
}

func (r *memJobRepo) ListPending(_ context.Context, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, j := range r.jobs {
		if j.Status == models.JobPending {
			ids = append(ids, j.ID)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (r *memJobRepo) FailStale(_ context.Context, cutoff time.Time, message string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, j := range r.jobs {
		if j.Status == models.JobProcessing && j.StartedAt.Valid && j.StartedAt.Time.Before(cutoff) {
			j.Status = models.JobFailed
			j.Error = models.NewNullString(message)
			n++
		}
	}
	return n, nil
}

type memMediaRepo struct {
	mu      sync.Mutex
	uploads map[string]*models.MediaUpload
}

func newMemMediaRepo() *memMediaRepo {
	return &memMediaRepo{uploads: make(map[string]*models.MediaUpload)}
}

func (r *memMediaRepo) Create(_ context.Context, u *models.MediaUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.CreatedAt = time.Now()
	cp := *u
	r.uploads[u.UploadKey] = &cp
	return nil
}

func (r *memMediaRepo) GetByKey(_ context.Context, key string) (*models.MediaUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[key]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "upload %s not found", key)
	}
	cp := *u
	return &cp, nil
}

func (r *memMediaRepo) MarkUploaded(_ context.Context, key, publicURL string) (*models.MediaUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[key]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "upload %s not found", key)
	}
	if !u.IsUploaded() {
		u.PublicURL = models.NewNullString(publicURL)
		u.UploadedAt.Time, u.UploadedAt.Valid = time.Now(), true
	}
	cp := *u
	return &cp, nil
}

func (r *memMediaRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, u := range r.uploads {
		if !u.IsUploaded() && u.ExpiresAt.Before(cutoff) {
			delete(r.uploads, k)
			n++
		}
	}
	return n, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[int]*models.User
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[int]*models.User)}
	for i := range users {
		u := users[i]
		f.users[u.ID] = &u
	}
	return f
}

func (f *fakeUsers) GetUserByID(_ context.Context, id int) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) CreateUser(_ context.Context, username, email, displayName string, isAdmin bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &models.User{ID: len(f.users) + 1, Username: username, Email: models.NewNullString(email), DisplayName: displayName, IsAdmin: isAdmin}
	f.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) ListUsers(_ context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) SetAdmin(_ context.Context, userID int, isAdmin bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return contextutils.ErrRecordNotFound
	}
	u.IsAdmin = isAdmin
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []serviceinterfaces.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note serviceinterfaces.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return n.err
}

func (n *recordingNotifier) events() []serviceinterfaces.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]serviceinterfaces.NotificationEvent, 0, len(n.notes))
	for _, note := range n.notes {
		out = append(out, note.Event)
	}
	return out
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

func (q *fakeQueue) Dequeue(_ context.Context, _ time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return "", nil
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, nil
}

func (q *fakeQueue) Backend() string { return "fake" }

type stubAnalyzer struct {
	mu    sync.Mutex
	calls []models.AnalysisInput
	out   *models.AnalysisOutput
	err   error
}

func (a *stubAnalyzer) Analyze(_ context.Context, in models.AnalysisInput) (*models.AnalysisOutput, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, in)
	return a.out, a.err
}
