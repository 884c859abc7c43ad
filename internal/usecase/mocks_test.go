//go:build !integration

package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/db/sqlite"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- provider ----

type fakeProvider struct {
	mu        sync.Mutex
	n         int
	submitted []adapter.GenerationRequest

	SubmitErr  error
	StatusFunc func(requestID string) (adapter.ProviderStatus, error)
	ResultFunc func(requestID string) (string, error)
	FetchCalls int
	FetchErr   error
}

func (p *fakeProvider) Submit(_ context.Context, req adapter.GenerationRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SubmitErr != nil {
		return "", p.SubmitErr
	}
	p.n++
	p.submitted = append(p.submitted, req)
	return fmt.Sprintf("req-%d", p.n), nil
}

func (p *fakeProvider) PollStatus(_ context.Context, requestID string) (adapter.ProviderStatus, error) {
	if p.StatusFunc != nil {
		return p.StatusFunc(requestID)
	}
	return adapter.ProviderRunning, nil
}

func (p *fakeProvider) PollResult(_ context.Context, requestID string) (string, error) {
	if p.ResultFunc != nil {
		return p.ResultFunc(requestID)
	}
	return "https://provider.test/out/" + requestID + ".mp4", nil
}

func (p *fakeProvider) FetchArtifact(_ context.Context, url string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FetchCalls++
	if p.FetchErr != nil {
		return nil, p.FetchErr
	}
	return []byte("artifact:" + url), nil
}

func (p *fakeProvider) requests() []adapter.GenerationRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]adapter.GenerationRequest(nil), p.submitted...)
}

// ---- transform ----

type fakeTransform struct {
	mu    sync.Mutex
	kinds []model.StepKind
	Err   error
}

func (f *fakeTransform) Apply(_ context.Context, kind model.StepKind, inputs []string, _ model.StepConfig, outDir string) (string, error) {
	f.mu.Lock()
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(outDir, string(kind)+".mp4")
	return out, os.WriteFile(out, []byte(fmt.Sprintf("%s(%d inputs)", kind, len(inputs))), 0o644)
}

// ---- storage ----

const storageBase = "https://storage.test/"

type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	downloads int
	UploadErr error
}

// newMemStorage is seeded with the source videos the tests start from.
func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{"src.mp4": []byte("src"), "s.mp4": []byte("s")}}
}

func (s *memStorage) Upload(_ context.Context, data []byte, name, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	s.objects[name] = append([]byte(nil), data...)
	return storageBase + name, nil
}

func (s *memStorage) Download(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads++
	url = strings.SplitN(url, "?", 2)[0]
	if strings.HasPrefix(url, storageBase) {
		b, ok := s.objects[strings.TrimPrefix(url, storageBase)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, url)
		}
		return b, nil
	}
	return []byte("remote:" + url), nil
}

func (s *memStorage) SignedURL(_ context.Context, u string) (string, error) {
	return u + "?sig=test", nil
}

func (s *memStorage) Owns(u string) bool { return strings.HasPrefix(u, storageBase) }

func (s *memStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// ---- tasks ----

// inlineTasks runs every task before Go returns.
type inlineTasks struct {
	mu    sync.Mutex
	names []string
	errs  []error
	Full  bool
}

func (r *inlineTasks) Go(name string, task func(ctx context.Context) error) error {
	if r.Full {
		return domain.ErrQueueFull
	}
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	if err := task(context.Background()); err != nil {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	}
	return nil
}

// deferredTasks collects tasks until drain is called.
type deferredTasks struct {
	mu    sync.Mutex
	tasks []func(ctx context.Context) error
}

func (r *deferredTasks) Go(_ string, task func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *deferredTasks) drain(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()
	for _, task := range tasks {
		if err := task(context.Background()); err != nil {
			t.Fatalf("task: %v", err)
		}
	}
}

type fakeHooks struct{}

func (fakeHooks) WebhookURL(jobID string) (string, error) {
	return "https://hooks.test/webhooks/provider?token=" + jobID, nil
}

// ---- publish side ----

type fakeDistribution struct {
	mu       sync.Mutex
	posts    []adapter.CreatePostRequest
	uploads  int
	Status   string
	PostErr  error
	Platform func(t adapter.PostTarget) adapter.PlatformResult
}

func (d *fakeDistribution) PresignUpload(_ context.Context, filename, _ string) (adapter.PresignedUpload, error) {
	return adapter.PresignedUpload{UploadURL: "https://intake.test/put/" + filename, PublicURL: "https://intake.test/media/" + filename}, nil
}

func (d *fakeDistribution) Upload(_ context.Context, _ string, _ []byte, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploads++
	return nil
}

func (d *fakeDistribution) CreatePost(_ context.Context, req adapter.CreatePostRequest) (*adapter.CreatePostResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.posts = append(d.posts, req)
	if d.PostErr != nil {
		return nil, d.PostErr
	}
	resp := &adapter.CreatePostResponse{PostID: fmt.Sprintf("ext-%d", len(d.posts)), Status: "ok"}
	for _, t := range req.Targets {
		if d.Platform != nil {
			resp.Platforms = append(resp.Platforms, d.Platform(t))
			continue
		}
		status := d.Status
		if status == "" {
			status = "published"
		}
		resp.Platforms = append(resp.Platforms, adapter.PlatformResult{
			Platform: t.Platform, AccountID: t.AccountID, Status: status,
			URL: "https://social.test/" + string(t.Platform) + "/" + t.AccountID,
		})
	}
	return resp, nil
}

func (d *fakeDistribution) calls() []adapter.CreatePostRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]adapter.CreatePostRequest(nil), d.posts...)
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]string{}} }

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockHeld
	}
	token := "tok-" + key
	l.held[key] = token
	return token, nil
}

func (l *memLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type fakeCaptions struct {
	CaptionFunc func(req adapter.CaptionRequest) (string, error)
}

func (f *fakeCaptions) Caption(_ context.Context, req adapter.CaptionRequest) (string, error) {
	return f.CaptionFunc(req)
}

type fakeNotifier struct {
	mu      sync.Mutex
	batches []*model.Batch
}

func (n *fakeNotifier) BatchFinished(_ context.Context, b *model.Batch) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, b)
	return nil
}

type fakeCooldown struct{ allow bool }

func (c fakeCooldown) Allow(context.Context, string, time.Duration) (bool, error) { return c.allow, nil }

// ---- environment ----

type testEnv struct {
	tx         repository.TransactionManager
	pjobs      repository.PipelineJobRepository
	jobs       repository.JobRepository
	batches    repository.BatchRepository
	recipients repository.RecipientRepository
	posts      repository.PostRepository
	idem       repository.IdempotencyRepository

	provider  *fakeProvider
	transform *fakeTransform
	storage   *memStorage
	notifier  *fakeNotifier
	tasks     TaskRunner

	exec     *StepExecutor
	tracker  *BatchTracker
	runner   *PipelineRunner
	router   *CompletionRouter
	batch    *BatchCoordinator
	jobsUC   *JobUseCase
	recovery *RecoveryUseCase
}

func newTestEnv(t *testing.T, tasks TaskRunner) *testEnv {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "usecase.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if tasks == nil {
		tasks = &inlineTasks{}
	}

	logger := newTestLogger()
	e := &testEnv{
		tx:         sqlite.NewTxManager(db),
		pjobs:      sqlite.NewPipelineJobRepo(db),
		jobs:       sqlite.NewJobRepo(db),
		batches:    sqlite.NewBatchRepo(db),
		recipients: sqlite.NewRecipientRepo(db),
		posts:      sqlite.NewPostRepo(db),
		idem:       sqlite.NewIdempotencyRepo(db),
		provider:   &fakeProvider{},
		transform:  &fakeTransform{},
		storage:    newMemStorage(),
		notifier:   &fakeNotifier{},
		tasks:      tasks,
	}
	e.exec = NewStepExecutor(e.provider, e.transform, e.storage, fakeHooks{}, t.TempDir(), logger)
	e.tracker = NewBatchTracker(e.batches, nil, e.notifier, logger)
	e.runner = NewPipelineRunner(e.pjobs, e.exec, e.tracker, logger)
	e.router = NewCompletionRouter(e.pjobs, e.jobs, e.provider, e.exec, e.runner, e.tracker, tasks, logger)
	sources := NewSourceResolver(e.storage)
	e.batch = NewBatchCoordinator(e.tx, e.batches, e.pjobs, e.jobs, e.recipients, sources, e.runner, tasks, nil, logger)
	e.jobsUC = NewJobUseCase(e.pjobs, e.jobs, e.recipients, sources, e.exec, e.runner, tasks, logger)
	e.recovery = NewRecoveryUseCase(e.pjobs, e.jobs, e.provider, e.router, e.runner, nil,
		RecoveryOptions{StuckAfter: 10 * time.Minute, MaxAttempts: 3, BatchSize: 50}, logger)
	e.recovery.now = func() time.Time { return time.Now().Add(time.Hour) }
	return e
}

func (e *testEnv) mustJob(t *testing.T, id string) *model.PipelineJob {
	t.Helper()
	j, err := e.pjobs.FindByID(context.Background(), repository.NoTX, id)
	if err != nil {
		t.Fatalf("find job %s: %v", id, err)
	}
	return j
}

func (e *testEnv) addRecipient(t *testing.T, id, name string, platforms ...model.Platform) *model.Recipient {
	t.Helper()
	ctx := context.Background()
	r := &model.Recipient{ID: id, Name: name, ReferenceImageURL: "https://cdn.test/" + id + ".jpg", CreatedAt: time.Now().UTC()}
	if err := e.recipients.Save(ctx, repository.NoTX, r); err != nil {
		t.Fatalf("save recipient: %v", err)
	}
	for _, p := range platforms {
		a := &model.DistributionAccount{
			ID: id + "-" + string(p), RecipientID: id, Platform: p, Handle: "@" + id, Active: true, CreatedAt: time.Now().UTC(),
		}
		if err := e.recipients.SaveAccount(ctx, repository.NoTX, a); err != nil {
			t.Fatalf("save account: %v", err)
		}
	}
	return r
}

func overlay(text string) model.Step {
	return model.Step{Kind: model.StepTextOverlay, Enabled: true, Config: model.TextOverlayConfig{Text: text}}
}

func faceSwap(ref string) model.Step {
	return model.Step{Kind: model.StepFaceSwap, Enabled: true, Config: model.FaceSwapConfig{ReferenceImageURL: ref}}
}
