package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/logging"
)

const youTubeTitleMax = 100

type PublishTarget struct {
	AccountID string         `json:"account_id"`
	Platform  model.Platform `json:"platform,omitempty"`
}

type PublishInput struct {
	JobID          string            `json:"job_id"`
	Targets        []PublishTarget   `json:"targets,omitempty"`
	Mode           model.PublishMode `json:"mode,omitempty"`
	ScheduledAt    *time.Time        `json:"scheduled_at,omitempty"`
	Timezone       string            `json:"timezone,omitempty"`
	Caption        string            `json:"caption,omitempty"`
	Force          bool              `json:"force,omitempty"`
	IdempotencyKey string            `json:"-"`
	CreatedBy      string            `json:"-"`
}

type PublishResult struct {
	AccountID string           `json:"account_id"`
	Platform  model.Platform   `json:"platform"`
	Status    model.PostStatus `json:"status"`
	PostID    string           `json:"post_id,omitempty"`
	URL       string           `json:"url,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

type PublishSummary struct {
	JobID         string              `json:"job_id"`
	Results       []PublishResult     `json:"results"`
	PublishStatus model.PublishStatus `json:"publish_status"`
}

type PublishOptions struct {
	LockTTL        time.Duration
	IdempotencyTTL time.Duration
	Concurrency    int
}

// PublishUseCase pushes finished videos to the distribution endpoint, one Post
// per (job, account, platform).
type PublishUseCase struct {
	pjobs      repository.PipelineJobRepository
	batches    repository.BatchRepository
	recipients repository.RecipientRepository
	posts      repository.PostRepository
	idem       repository.IdempotencyRepository
	locker     adapter.Locker
	storage    adapter.ObjectStorage
	dist       adapter.Distribution
	captions   adapter.CaptionWriter
	opts       PublishOptions
	log        *zerolog.Logger
}

// NewPublishUseCase accepts a nil caption writer.
func NewPublishUseCase(
	pjobs repository.PipelineJobRepository,
	batches repository.BatchRepository,
	recipients repository.RecipientRepository,
	posts repository.PostRepository,
	idem repository.IdempotencyRepository,
	locker adapter.Locker,
	storage adapter.ObjectStorage,
	dist adapter.Distribution,
	captions adapter.CaptionWriter,
	opts PublishOptions,
	logger *zerolog.Logger,
) *PublishUseCase {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	l := logger.With().Str("component", "publisher").Logger()
	return &PublishUseCase{
		pjobs: pjobs, batches: batches, recipients: recipients, posts: posts, idem: idem,
		locker: locker, storage: storage, dist: dist, captions: captions, opts: opts, log: &l,
	}
}

// publishJob is the per-request context shared by all targets.
type publishJob struct {
	job         *model.PipelineJob
	recipient   *model.Recipient
	master      *model.MasterConfig
	mode        model.PublishMode
	scheduledAt *time.Time
	timezone    string
	caption     string // fixed caption, empty when it must be generated
	force       bool
	createdBy   string

	mediaOnce sync.Once
	media     []byte
	mediaErr  error
}

// Publish is safe to retry: the same idempotency key returns the stored
// summary once it is settled, and a key still in flight reports every target
// skipped. A summary where every attempted target failed releases the key so
// the identical request can try again.
func (u *PublishUseCase) Publish(ctx context.Context, in PublishInput) (*PublishSummary, error) {
	if in.JobID == "" {
		return nil, fmt.Errorf("%w: job_id is required", domain.ErrInvalidArgument)
	}
	if !in.Mode.Valid() {
		return nil, fmt.Errorf("%w: publish mode %q", domain.ErrInvalidArgument, in.Mode)
	}
	ctx = logging.WithJobID(ctx, in.JobID)
	log := logging.With(ctx, u.log)

	pj, targets, err := u.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	key := in.IdempotencyKey
	if key == "" {
		key = PublishKey(in)
	}
	rec, created, err := u.idem.Begin(ctx, repository.NoTX, key, "publish", u.opts.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency: %w", err)
	}
	if !created {
		if rec.Status != model.IdempotencyCompleted {
			log.Info().Str("key", key).Msg("duplicate publish skipped while the first is in flight")
			return skippedSummary(pj.job, targets, "publish already in progress"), nil
		}
		var s PublishSummary
		if err := json.Unmarshal(rec.Response, &s); err != nil {
			return nil, fmt.Errorf("stored publish summary: %w", err)
		}
		log.Debug().Str("key", key).Msg("publish replayed from idempotency record")
		return &s, nil
	}

	summary, err := u.publish(ctx, pj, targets)
	if err != nil || !summary.settled() {
		if rerr := u.idem.Release(context.WithoutCancel(ctx), repository.NoTX, key); rerr != nil {
			log.Warn().Err(rerr).Str("key", key).Msg("idempotency release failed")
		}
		if err != nil {
			return nil, err
		}
		return summary, nil
	}
	body, err := json.Marshal(summary)
	if err == nil {
		err = u.idem.Complete(context.WithoutCancel(ctx), repository.NoTX, key, body)
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("idempotency complete failed")
	}
	return summary, nil
}

// settled is false only when targets were attempted and none got past failed.
func (s *PublishSummary) settled() bool {
	failed := false
	for _, r := range s.Results {
		switch r.Status {
		case model.PostStatusFailed:
			failed = true
		case model.PostStatusSkipped:
		default:
			return true
		}
	}
	return !failed
}

func skippedSummary(job *model.PipelineJob, targets []PublishTarget, reason string) *PublishSummary {
	s := &PublishSummary{JobID: job.ID, Results: make([]PublishResult, len(targets)), PublishStatus: job.PublishStatus}
	for i, t := range targets {
		s.Results[i] = PublishResult{AccountID: t.AccountID, Platform: t.Platform, Status: model.PostStatusSkipped, Reason: reason}
	}
	return s
}

// PublishKey derives an idempotency key from the job, targets, mode and force.
func PublishKey(in PublishInput) string {
	targets := make([]string, 0, len(in.Targets))
	for _, t := range in.Targets {
		targets = append(targets, t.AccountID+"/"+string(t.Platform))
	}
	sort.Strings(targets)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%t", strings.Join(targets, ","), in.Mode, in.Force)
	if in.ScheduledAt != nil {
		fmt.Fprintf(h, "|%d", in.ScheduledAt.Unix())
	}
	return "publish:" + in.JobID + ":" + hex.EncodeToString(h.Sum(nil))
}

// prepare loads the job and its publishing context and resolves the targets.
func (u *PublishUseCase) prepare(ctx context.Context, in PublishInput) (*publishJob, []PublishTarget, error) {
	job, err := u.pjobs.FindByID(ctx, repository.NoTX, in.JobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != model.JobStatusCompleted || job.OutputURL == "" {
		return nil, nil, fmt.Errorf("%w: job %s is %s", domain.ErrJobNotPublishable, job.ID, job.Status)
	}

	pj := &publishJob{job: job, force: in.Force, createdBy: in.CreatedBy}
	if job.RecipientID != nil {
		if pj.recipient, err = u.recipients.FindByID(ctx, repository.NoTX, *job.RecipientID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, nil, err
		}
	}
	if job.BatchID != nil {
		b, err := u.batches.FindByID(ctx, repository.NoTX, *job.BatchID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, nil, err
		}
		if b != nil && b.IsMaster {
			pj.master = b.Master
		}
	}
	if err := u.settle(pj, in); err != nil {
		return nil, nil, err
	}

	targets, err := u.resolveTargets(ctx, pj, in.Targets)
	if errors.Is(err, domain.ErrNoPublishTargets) && pj.skipAll() {
		// accounts unlinked after posting still get the skip report
		return pj, dedupeTargets(in.Targets), nil
	}
	if err != nil {
		return nil, nil, err
	}
	return pj, targets, nil
}

func (pj *publishJob) skipAll() bool {
	return pj.job.PublishStatus != model.PublishStatusNone && !pj.force
}

func (u *PublishUseCase) publish(ctx context.Context, pj *publishJob, targets []PublishTarget) (*PublishSummary, error) {
	job := pj.job
	if pj.skipAll() {
		return skippedSummary(job, targets, fmt.Sprintf("job already %s", job.PublishStatus)), nil
	}

	summary := &PublishSummary{JobID: job.ID, Results: make([]PublishResult, len(targets)), PublishStatus: job.PublishStatus}
	var g errgroup.Group
	g.SetLimit(u.opts.Concurrency)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			summary.Results[i] = u.publishTarget(ctx, pj, t)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range summary.Results {
		if r.Status.Delivered() {
			if err := u.pjobs.SetPublishStatus(ctx, repository.NoTX, job.ID, model.PublishStatusPosted); err != nil {
				return nil, err
			}
			summary.PublishStatus = model.PublishStatusPosted
			break
		}
	}
	logging.With(ctx, u.log).Info().Int("targets", len(targets)).Str("publish_status", string(summary.PublishStatus)).Msg("publish finished")
	return summary, nil
}

// settle applies request, job override and master defaults in that order.
func (u *PublishUseCase) settle(pj *publishJob, in PublishInput) error {
	ov := pj.job.Publish
	if ov == nil {
		ov = &model.PublishOverrides{}
	}
	m := pj.master
	if m == nil {
		m = &model.MasterConfig{}
	}

	pj.mode = firstMode(in.Mode, ov.Mode, m.PublishMode, model.PublishNow)
	pj.scheduledAt = firstTime(in.ScheduledAt, ov.ScheduledAt, m.ScheduledAt)
	pj.timezone = firstString(in.Timezone, ov.Timezone, m.Timezone)
	pj.caption = firstString(in.Caption, ov.Caption, m.Caption)

	if pj.mode == model.PublishSchedule && pj.scheduledAt == nil {
		return fmt.Errorf("%w: schedule mode requires scheduled_at", domain.ErrInvalidArgument)
	}
	return nil
}

func (u *PublishUseCase) resolveTargets(ctx context.Context, pj *publishJob, explicit []PublishTarget) ([]PublishTarget, error) {
	var ids []string
	switch {
	case len(explicit) > 0:
		missing := false
		for _, t := range explicit {
			if t.Platform == "" {
				missing = true
			}
			ids = append(ids, t.AccountID)
		}
		if !missing {
			return dedupeTargets(explicit), nil
		}
	case pj.job.Publish != nil && len(pj.job.Publish.AccountIDs) > 0:
		ids = pj.job.Publish.AccountIDs
	case pj.master != nil && pj.job.RecipientID != nil:
		if r := pj.master.Recipient(*pj.job.RecipientID); r != nil {
			ids = r.AccountIDs
		}
	}

	var (
		accounts []*model.DistributionAccount
		err      error
	)
	if len(ids) > 0 {
		accounts, err = u.recipients.FindAccounts(ctx, repository.NoTX, dedupe(ids))
	} else if pj.job.RecipientID != nil {
		accounts, err = u.recipients.ListAccounts(ctx, repository.NoTX, *pj.job.RecipientID)
	}
	if err != nil {
		return nil, err
	}
	out := make([]PublishTarget, 0, len(accounts))
	for _, a := range accounts {
		if a.Active {
			out = append(out, PublishTarget{AccountID: a.ID, Platform: a.Platform})
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrNoPublishTargets
	}
	return dedupeTargets(out), nil
}

func (u *PublishUseCase) publishTarget(ctx context.Context, pj *publishJob, t PublishTarget) PublishResult {
	res := PublishResult{AccountID: t.AccountID, Platform: t.Platform}
	log := logging.With(ctx, u.log).With().Str("account_id", t.AccountID).Str("platform", string(t.Platform)).Logger()

	lockKey := fmt.Sprintf("post:%s:%s:%s", pj.job.ID, t.AccountID, t.Platform)
	token, err := u.locker.TryLock(ctx, lockKey, u.opts.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			res.Status, res.Reason = model.PostStatusSkipped, "publish already in progress"
			return res
		}
		res.Status, res.Reason = model.PostStatusFailed, err.Error()
		return res
	}
	defer func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			log.Warn().Err(err).Msg("post lock release failed")
		}
	}()

	caption := u.caption(ctx, pj, t.Platform)
	post, skip, err := u.claimPost(ctx, pj, t, caption)
	if err != nil {
		res.Status, res.Reason = model.PostStatusFailed, err.Error()
		return res
	}
	if skip != "" {
		res.Status, res.Reason, res.PostID = model.PostStatusSkipped, skip, post.ID
		return res
	}
	res.PostID = post.ID

	if err := u.deliver(ctx, pj, post); err != nil {
		post.Status, post.ErrorMessage = model.PostStatusFailed, err.Error()
		log.Warn().Err(err).Str("post_id", post.ID).Msg("post delivery failed")
	}
	if err := u.posts.Update(context.WithoutCancel(ctx), repository.NoTX, post); err != nil {
		log.Error().Err(err).Str("post_id", post.ID).Msg("post update failed")
	}
	res.Status, res.URL, res.Reason = post.Status, post.ExternalURL, post.ErrorMessage
	log.Info().Str("post_id", post.ID).Str("status", string(post.Status)).Msg("post processed")
	return res
}

// claimPost inserts the row for the target, or reuses an existing one when it
// failed before or force is set. A non-empty skip reason means leave it alone.
func (u *PublishUseCase) claimPost(ctx context.Context, pj *publishJob, t PublishTarget, caption string) (*model.Post, string, error) {
	now := time.Now().UTC()
	post := &model.Post{
		ID:        ulid.Make().String(),
		JobID:     pj.job.ID,
		AccountID: t.AccountID,
		Platform:  t.Platform,
		Caption:   caption,
		MediaURL:  pj.job.OutputURL,
		Status:    model.PostStatusPending,
		CreatedBy: pj.createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := u.posts.Create(ctx, repository.NoTX, post)
	if err == nil {
		return post, "", nil
	}
	if !errors.Is(err, domain.ErrAlreadyExists) {
		return nil, "", err
	}

	existing, err := u.posts.FindByTarget(ctx, repository.NoTX, pj.job.ID, t.AccountID, t.Platform)
	if err != nil {
		return nil, "", err
	}
	if !existing.Status.Reusable() && !pj.force {
		return existing, fmt.Sprintf("already %s", existing.Status), nil
	}
	ok, err := u.posts.Reclaim(ctx, repository.NoTX, existing.ID, caption, pj.job.OutputURL, pj.force)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return existing, fmt.Sprintf("already %s", existing.Status), nil
	}
	existing.Caption, existing.MediaURL = caption, pj.job.OutputURL
	existing.Status, existing.ErrorMessage = model.PostStatusPending, ""
	existing.ExternalID, existing.ExternalURL = "", ""
	return existing, "", nil
}

func (u *PublishUseCase) deliver(ctx context.Context, pj *publishJob, post *model.Post) error {
	data, err := u.media(ctx, pj)
	if err != nil {
		return err
	}
	up, err := u.dist.PresignUpload(ctx, pj.job.ID+".mp4", "video/mp4")
	if err != nil {
		return fmt.Errorf("presign upload: %w", err)
	}
	if err := u.dist.Upload(ctx, up.UploadURL, data, "video/mp4"); err != nil {
		return fmt.Errorf("upload media: %w", err)
	}

	req := adapter.CreatePostRequest{
		Caption:   post.Caption,
		MediaURLs: []string{up.PublicURL},
		Targets: []adapter.PostTarget{{
			AccountID: post.AccountID,
			Platform:  post.Platform,
			Options:   PlatformOptions(post.Platform, post.Caption),
		}},
	}
	switch pj.mode {
	case model.PublishDraft:
		req.IsDraft = true
	case model.PublishSchedule:
		req.ScheduledAt = pj.scheduledAt
		req.Timezone = pj.timezone
	default:
		req.PublishNow = true
	}

	resp, err := u.dist.CreatePost(ctx, req)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	post.ExternalID = resp.PostID
	post.Status = model.PostStatusPublishing
	for _, r := range resp.Platforms {
		if r.Platform != post.Platform || (r.AccountID != "" && r.AccountID != post.AccountID) {
			continue
		}
		post.Status = model.ParsePostStatus(r.Status)
		post.ExternalURL = r.URL
		if r.PostID != "" {
			post.ExternalID = r.PostID
		}
		post.ErrorMessage = r.Error
		break
	}
	if pj.mode == model.PublishDraft && post.Status == model.PostStatusPublishing {
		post.Status = model.PostStatusDraft
	}
	return nil
}

// media downloads the job output once per request, whatever the target count.
func (u *PublishUseCase) media(ctx context.Context, pj *publishJob) ([]byte, error) {
	pj.mediaOnce.Do(func() {
		src := pj.job.OutputURL
		if u.storage.Owns(src) {
			signed, err := u.storage.SignedURL(ctx, src)
			if err != nil {
				pj.mediaErr = fmt.Errorf("sign output: %w", err)
				return
			}
			src = signed
		}
		pj.media, pj.mediaErr = u.storage.Download(ctx, src)
		if pj.mediaErr != nil {
			pj.mediaErr = fmt.Errorf("download output: %w", pj.mediaErr)
		}
	})
	return pj.media, pj.mediaErr
}

func (u *PublishUseCase) caption(ctx context.Context, pj *publishJob, platform model.Platform) string {
	if pj.caption != "" {
		return pj.caption
	}
	if u.captions != nil {
		req := adapter.CaptionRequest{JobName: pj.job.Name, Platform: platform}
		if pj.recipient != nil {
			req.RecipientName = pj.recipient.Name
		}
		c, err := u.captions.Caption(ctx, req)
		if err == nil && strings.TrimSpace(c) != "" {
			return c
		}
		if err != nil {
			logging.With(ctx, u.log).Warn().Err(err).Msg("caption generation failed, using job name")
		}
	}
	return pj.job.Name
}

// PlatformOptions are the per-platform flags sent with each target.
func PlatformOptions(p model.Platform, caption string) map[string]any {
	switch p {
	case model.PlatformTikTok:
		return map[string]any{"privacy_level": "PUBLIC_TO_EVERYONE"}
	case model.PlatformInstagram:
		return map[string]any{"media_type": "REELS"}
	case model.PlatformYouTube:
		title := []rune(strings.TrimSpace(strings.SplitN(caption, "\n", 2)[0]))
		if len(title) > youTubeTitleMax {
			title = title[:youTubeTitleMax]
		}
		return map[string]any{"title": string(title), "type": "short"}
	}
	return nil
}

// RejectPublish records that an operator declined to publish the job.
func (u *PublishUseCase) RejectPublish(ctx context.Context, jobID string) error {
	if _, err := u.pjobs.FindByID(ctx, repository.NoTX, jobID); err != nil {
		return err
	}
	if err := u.pjobs.SetPublishStatus(ctx, repository.NoTX, jobID, model.PublishStatusRejected); err != nil {
		return err
	}
	u.log.Info().Str("job_id", jobID).Msg("publish rejected")
	return nil
}

func (u *PublishUseCase) ListPosts(ctx context.Context, jobID string) ([]*model.Post, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job_id is required", domain.ErrInvalidArgument)
	}
	return u.posts.ListByJob(ctx, repository.NoTX, jobID)
}

func dedupeTargets(in []PublishTarget) []PublishTarget {
	seen := make(map[PublishTarget]struct{}, len(in))
	out := make([]PublishTarget, 0, len(in))
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func firstString(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstMode(vs ...model.PublishMode) model.PublishMode {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTime(vs ...*time.Time) *time.Time {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}
