//go:build !integration

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "mediaflow.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newJob(t *testing.T) *model.PipelineJob {
	t.Helper()
	j, err := model.NewPipelineJob("overlay then swap", []model.Step{
		{Kind: model.StepTextOverlay, Enabled: true, Config: model.TextOverlayConfig{Text: "hi"}},
		{Kind: model.StepFaceSwap, Enabled: true, Config: model.FaceSwapConfig{ReferenceImageURL: "https://cdn/ref.jpg"}},
	}, "https://cdn/src.mp4")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return j
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestInitDBClosedDatabase(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_ = db.Close()
	if err := initDB(db); err == nil {
		t.Fatal("expected error")
	}
}

func TestPipelineJobRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("should round-trip steps, results and overrides", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewPipelineJobRepo(db)
		job := newJob(t)
		job.Publish = &model.PublishOverrides{Caption: "c", AccountIDs: []string{"a1"}}

		if err := repo.Create(ctx, nil, job); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, err := repo.FindByID(ctx, nil, job.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.TotalSteps != 2 || got.Status != model.JobStatusQueued {
			t.Errorf("unexpected job: total=%d status=%s", got.TotalSteps, got.Status)
		}
		if cfg, ok := got.Steps[1].Config.(model.FaceSwapConfig); !ok || cfg.ReferenceImageURL != "https://cdn/ref.jpg" {
			t.Errorf("face swap config lost: %#v", got.Steps[1].Config)
		}
		if got.Publish == nil || len(got.Publish.AccountIDs) != 1 {
			t.Errorf("publish overrides lost: %+v", got.Publish)
		}
		if !got.CreatedAt.Equal(job.CreatedAt.Truncate(time.Nanosecond)) {
			t.Errorf("created_at changed: %v vs %v", got.CreatedAt, job.CreatedAt)
		}
	})

	t.Run("should return ErrNotFound for unknown ids", func(t *testing.T) {
		repo := NewPipelineJobRepo(newTestDB(t))
		if _, err := repo.FindByID(ctx, nil, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := repo.FindByProviderRequestID(ctx, nil, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should guard every transition", func(t *testing.T) {
		repo := NewPipelineJobRepo(newTestDB(t))
		job := newJob(t)
		_ = repo.Create(ctx, nil, job)

		if ok, _ := repo.AdvanceStep(ctx, nil, job.ID, 0, nil, "x"); ok {
			t.Error("a queued job must not advance")
		}
		if ok, _ := repo.MarkProcessing(ctx, nil, job.ID); !ok {
			t.Fatal("MarkProcessing should win once")
		}
		if ok, _ := repo.MarkProcessing(ctx, nil, job.ID); ok {
			t.Error("MarkProcessing must not win twice")
		}
		if ok, _ := repo.AwaitProvider(ctx, nil, job.ID, 0, "req-1", "waiting"); !ok {
			t.Fatal("AwaitProvider should win")
		}
		if ok, _ := repo.AdvanceStep(ctx, nil, job.ID, 0, nil, "x"); ok {
			t.Error("a job parked on the provider must not advance")
		}
		if ok, _ := repo.ClaimProviderResult(ctx, nil, job.ID, "req-other"); ok {
			t.Error("a foreign handle must not claim")
		}
		if ok, _ := repo.ClaimProviderResult(ctx, nil, job.ID, "req-1"); !ok {
			t.Fatal("the matching handle should claim")
		}
		results := []model.StepResult{{StepID: "step-1", Kind: model.StepTextOverlay, OutputURL: "https://cdn/1.mp4"}}
		if ok, _ := repo.AdvanceStep(ctx, nil, job.ID, 0, results, "Step 2/2"); !ok {
			t.Fatal("advance after claim should win")
		}
		if ok, _ := repo.AdvanceStep(ctx, nil, job.ID, 1, results, "done"); !ok {
			t.Fatal("advance to the last position should win")
		}
		if ok, _ := repo.AdvanceStep(ctx, nil, job.ID, 2, results, "past"); ok {
			t.Error("current_step must not pass total_steps")
		}

		got, _ := repo.FindByID(ctx, nil, job.ID)
		if got.CurrentStep != 2 || len(got.StepResults) != 1 || got.ProviderRequestID != "" {
			t.Errorf("unexpected state: step=%d results=%d handle=%q", got.CurrentStep, len(got.StepResults), got.ProviderRequestID)
		}
		if ok, _ := repo.Complete(ctx, nil, job.ID, "https://cdn/out.mp4"); !ok {
			t.Fatal("complete should win")
		}
		if ok, _ := repo.Fail(ctx, nil, job.ID, "late"); ok {
			t.Error("fail after complete must not win")
		}
		got, _ = repo.FindByID(ctx, nil, job.ID)
		if got.CompletedAt == nil || got.OutputURL != "https://cdn/out.mp4" {
			t.Errorf("completion not recorded: %+v", got)
		}
	})

	t.Run("should count recovery attempts and reset them on a new handle", func(t *testing.T) {
		repo := NewPipelineJobRepo(newTestDB(t))
		job := newJob(t)
		_ = repo.Create(ctx, nil, job)
		_, _ = repo.MarkProcessing(ctx, nil, job.ID)
		_, _ = repo.AwaitProvider(ctx, nil, job.ID, 0, "req-1", "waiting")

		n1, _ := repo.TouchRecovery(ctx, nil, job.ID, "polling")
		n2, _ := repo.TouchRecovery(ctx, nil, job.ID, "polling")
		if n1 != 1 || n2 != 2 {
			t.Errorf("expected 1 then 2, got %d then %d", n1, n2)
		}
		_, _ = repo.ClaimProviderResult(ctx, nil, job.ID, "req-1")
		_, _ = repo.AdvanceStep(ctx, nil, job.ID, 0, []model.StepResult{{StepID: "step-1"}}, "next")
		_, _ = repo.AwaitProvider(ctx, nil, job.ID, 1, "req-2", "waiting")
		got, _ := repo.FindByID(ctx, nil, job.ID)
		if got.RecoveryAttempts != 0 {
			t.Errorf("expected attempts reset, got %d", got.RecoveryAttempts)
		}
	})

	t.Run("should list stuck and queued jobs by age", func(t *testing.T) {
		repo := NewPipelineJobRepo(newTestDB(t))
		queued, running := newJob(t), newJob(t)
		_ = repo.Create(ctx, nil, queued)
		_ = repo.Create(ctx, nil, running)
		_, _ = repo.MarkProcessing(ctx, nil, running.ID)

		future := time.Now().Add(time.Minute)
		stuck, _ := repo.ListStuck(ctx, nil, future, 10)
		waiting, _ := repo.ListQueuedOlderThan(ctx, nil, future, 10)
		if len(stuck) != 1 || stuck[0].ID != running.ID {
			t.Errorf("unexpected stuck list: %d", len(stuck))
		}
		if len(waiting) != 1 || waiting[0].ID != queued.ID {
			t.Errorf("unexpected queued list: %d", len(waiting))
		}
		none, _ := repo.ListStuck(ctx, nil, time.Now().Add(-time.Hour), 10)
		if len(none) != 0 {
			t.Errorf("fresh jobs must not be stuck, got %d", len(none))
		}
	})
}

func TestBatchRepo(t *testing.T) {
	ctx := context.Background()
	newBatch := func(total int) *model.Batch {
		at := time.Now().UTC()
		return &model.Batch{ID: uuid.NewString(), Name: "b", Status: model.BatchStatusProcessing, TotalJobs: total,
			Template: []model.Step{}, CreatedAt: at, UpdatedAt: at}
	}

	t.Run("should aggregate and refuse overflow", func(t *testing.T) {
		repo := NewBatchRepo(newTestDB(t))
		b := newBatch(2)
		if err := repo.Create(ctx, nil, b); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, err := repo.IncrementCounters(ctx, nil, b.ID, 0, 1)
		if err != nil || got.Status != model.BatchStatusProcessing {
			t.Fatalf("first increment: %v %v", got, err)
		}
		got, _ = repo.IncrementCounters(ctx, nil, b.ID, 0, 1)
		if got.Status != model.BatchStatusFailed || !got.Finished() {
			t.Errorf("expected failed, got %s", got.Status)
		}
		if _, err := repo.IncrementCounters(ctx, nil, b.ID, 1, 0); !errors.Is(err, domain.ErrBatchOverflow) {
			t.Errorf("expected ErrBatchOverflow, got %v", err)
		}
		if _, err := repo.IncrementCounters(ctx, nil, "missing", 1, 0); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should count every concurrent child exactly once", func(t *testing.T) {
		repo := NewBatchRepo(newTestDB(t))
		b := newBatch(10)
		_ = repo.Create(ctx, nil, b)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			finished int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c, f := 1, 0
				if i%2 == 0 {
					c, f = 0, 1
				}
				got, err := repo.IncrementCounters(ctx, nil, b.ID, c, f)
				if err != nil {
					t.Errorf("increment: %v", err)
					return
				}
				if got.Finished() {
					mu.Lock()
					finished++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		got, _ := repo.FindByID(ctx, nil, b.ID)
		if got.CompletedJobs != 5 || got.FailedJobs != 5 || got.Status != model.BatchStatusPartial {
			t.Errorf("unexpected counters: %+v", got)
		}
		if finished != 1 {
			t.Errorf("exactly one increment should finish the batch, got %d", finished)
		}
	})

	t.Run("should keep master config and detach children on delete", func(t *testing.T) {
		db := newTestDB(t)
		repo, jobs := NewBatchRepo(db), NewPipelineJobRepo(db)
		b := newBatch(1)
		b.IsMaster = true
		b.Master = &model.MasterConfig{Caption: "cap", Recipients: []model.MasterRecipient{{RecipientID: "r1", AccountIDs: []string{"a1"}}}}
		_ = repo.Create(ctx, nil, b)
		job := newJob(t)
		job.BatchID = &b.ID
		if err := jobs.Create(ctx, nil, job); err != nil {
			t.Fatalf("create child: %v", err)
		}

		got, _ := repo.FindByID(ctx, nil, b.ID)
		if got.Master.Recipient("r1") == nil {
			t.Error("master recipient lost")
		}
		children, _ := jobs.ListByBatch(ctx, nil, b.ID)
		if len(children) != 1 {
			t.Fatalf("expected 1 child, got %d", len(children))
		}

		tm := NewTxManager(db)
		err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := jobs.DetachBatch(ctx, tx, b.ID); err != nil {
				return err
			}
			return repo.Delete(ctx, tx, b.ID)
		})
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		left, _ := jobs.FindByID(ctx, nil, job.ID)
		if left.BatchID != nil {
			t.Error("child should be detached")
		}
	})
}

func TestPostAndLockRepos(t *testing.T) {
	ctx := context.Background()
	newPost := func() *model.Post {
		at := time.Now().UTC()
		return &model.Post{ID: ulid.Make().String(), JobID: "j1", AccountID: "a1", Platform: model.PlatformInstagram,
			Status: model.PostStatusPending, CreatedAt: at, UpdatedAt: at}
	}

	t.Run("should keep one post per target", func(t *testing.T) {
		repo := NewPostRepo(newTestDB(t))
		p := newPost()
		if err := repo.Create(ctx, nil, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.Create(ctx, nil, newPost()); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		p.Status, p.ExternalID = model.PostStatusFailed, "ext-1"
		if err := repo.Update(ctx, nil, p); err != nil {
			t.Fatalf("update: %v", err)
		}
		if ok, _ := repo.Reclaim(ctx, nil, p.ID, "new caption", "https://m", false); !ok {
			t.Error("a failed post should be reclaimable")
		}
		got, _ := repo.FindByTarget(ctx, nil, "j1", "a1", model.PlatformInstagram)
		if got.Status != model.PostStatusPending || got.Caption != "new caption" {
			t.Errorf("reclaim not applied: %+v", got)
		}
		if ok, _ := repo.Reclaim(ctx, nil, p.ID, "c", "m", false); ok {
			t.Error("a pending post must not be reclaimed without force")
		}
		list, _ := repo.ListByJob(ctx, nil, "j1")
		if len(list) != 1 {
			t.Errorf("expected 1 post, got %d", len(list))
		}
	})

	t.Run("should hand a lock to one holder and take over expired leases", func(t *testing.T) {
		repo := NewLockRepo(newTestDB(t))
		if ok, _ := repo.Acquire(ctx, nil, "k", "t1", time.Minute); !ok {
			t.Fatal("first acquire should win")
		}
		if ok, _ := repo.Acquire(ctx, nil, "k", "t2", time.Minute); ok {
			t.Error("live lease must block")
		}
		_ = repo.Release(ctx, nil, "k", "t2")
		if ok, _ := repo.Acquire(ctx, nil, "k", "t2", time.Minute); ok {
			t.Error("release with a foreign token must not free the lock")
		}
		_ = repo.Release(ctx, nil, "k", "t1")
		if ok, _ := repo.Acquire(ctx, nil, "k", "t3", -time.Second); !ok {
			t.Fatal("acquire after release should win")
		}
		if ok, _ := repo.Acquire(ctx, nil, "k", "t4", time.Minute); !ok {
			t.Error("an expired lease should be taken over")
		}
	})

	t.Run("should replay a completed idempotency key", func(t *testing.T) {
		repo := NewIdempotencyRepo(newTestDB(t))
		_, created, err := repo.Begin(ctx, nil, "k", "publish", time.Hour)
		if err != nil || !created {
			t.Fatalf("Begin = %v, %v", created, err)
		}
		rec, created, _ := repo.Begin(ctx, nil, "k", "publish", time.Hour)
		if created || rec.Status != model.IdempotencyProcessing {
			t.Errorf("expected in-flight record, got created=%v %+v", created, rec)
		}
		_ = repo.Complete(ctx, nil, "k", []byte(`{"job_id":"j1"}`))
		rec, _, _ = repo.Begin(ctx, nil, "k", "publish", time.Hour)
		if rec.Status != model.IdempotencyCompleted || string(rec.Response) != `{"job_id":"j1"}` {
			t.Errorf("unexpected record: %+v", rec)
		}
		_, created, _ = repo.Begin(ctx, nil, "short", "publish", -time.Second)
		if !created {
			t.Fatal("expected new key")
		}
		_, created, _ = repo.Begin(ctx, nil, "short", "publish", time.Hour)
		if !created {
			t.Error("an expired key should be replaced")
		}
	})
}

func TestRecipientRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewRecipientRepo(newTestDB(t))
	at := time.Now().UTC()
	_ = repo.Save(ctx, nil, &model.Recipient{ID: "r1", Name: "Ava", CreatedAt: at})
	for _, a := range []*model.DistributionAccount{
		{ID: "a1", RecipientID: "r1", Platform: model.PlatformTikTok, Active: true, CreatedAt: at},
		{ID: "a2", RecipientID: "r1", Platform: model.PlatformYouTube, Active: false, CreatedAt: at},
		{ID: "a3", RecipientID: "r1", Platform: model.PlatformX, Active: true, CreatedAt: at},
	} {
		if err := repo.SaveAccount(ctx, nil, a); err != nil {
			t.Fatalf("save account: %v", err)
		}
	}

	active, _ := repo.ListAccounts(ctx, nil, "r1")
	if len(active) != 2 {
		t.Errorf("expected 2 active accounts, got %d", len(active))
	}
	picked, _ := repo.FindAccounts(ctx, nil, []string{"a2", "a3", "missing"})
	if len(picked) != 2 {
		t.Errorf("expected 2 accounts by id, got %d", len(picked))
	}
	all, _ := repo.List(ctx, nil)
	if len(all) != 1 || all[0].Name != "Ava" {
		t.Errorf("unexpected recipients: %+v", all)
	}
}
