package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/config"
	"github.com/smallbiznis/waitlist/internal/idgen"
	"github.com/smallbiznis/waitlist/internal/observability/metrics"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	projectrepo "github.com/smallbiznis/waitlist/internal/project/repository"
	projectservice "github.com/smallbiznis/waitlist/internal/project/service"
	"github.com/smallbiznis/waitlist/internal/ranking"
	"github.com/smallbiznis/waitlist/internal/signup/domain"
	"github.com/smallbiznis/waitlist/internal/signup/repository"
	"github.com/smallbiznis/waitlist/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu      sync.Mutex
	created []domain.Created
	kicks   int
	err     error
}

func (n *recordingNotifier) Enqueue(_ context.Context, _ *gorm.DB, created domain.Created) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.created = append(n.created, created)
	return nil
}

func (n *recordingNotifier) Kick() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kicks++
}

// scriptedCodes hands out fixed referral codes before falling back to random ones.
type scriptedCodes struct {
	mu    sync.Mutex
	codes []string
}

func (g *scriptedCodes) ReferralCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.codes) == 0 {
		return idgen.NewReferralCode()
	}
	code := g.codes[0]
	g.codes = g.codes[1:]
	return code
}

func (g *scriptedCodes) AdminSecret() string { return idgen.NewAdminSecret() }

type fixture struct {
	svc      *Service
	db       *gorm.DB
	clock    *clock.FakeClock
	codes    *scriptedCodes
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fc := clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	f := newFixtureOn(t, db.NewTest(t, &projectdomain.Project{}, &domain.Signup{}), fc)
	f.clock = fc
	return f
}

func newFixtureOn(t *testing.T, conn *gorm.DB, clk clock.Clock) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	codes := &scriptedCodes{}
	notifier := &recordingNotifier{}
	log := zap.NewNop()

	projects := projectservice.New(projectservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Codes: idgen.New(),
		Clock: clk,
		Repo:  projectrepo.Provide(),
	})

	svc := New(Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Codes:    codes,
		Clock:    clk,
		Repo:     repository.Provide(),
		Ranking:  ranking.New(),
		Projects: projects,
		Plans:    config.NewStaticPlanConfigHolder(config.DefaultPlanConfig()),
		Notifier: notifier,
		Metrics:  metrics.NewNoop(),
	}).(*Service)

	return &fixture{svc: svc, db: conn, codes: codes, notifier: notifier}
}

func (f *fixture) project(t *testing.T, id snowflake.ID, tier string) string {
	t.Helper()
	now := f.svc.clock.Now()
	require.NoError(t, f.db.Create(&projectdomain.Project{
		ID:              id,
		Slug:            fmt.Sprintf("project-%d", id),
		Name:            fmt.Sprintf("Project %d", id),
		OwnerEmail:      "owner@example.com",
		AdminSecretHash: "x",
		Tier:            tier,
		Plan:            tier,
		CreatedAt:       now,
		UpdatedAt:       now,
	}).Error)
	return id.String()
}

func (f *fixture) signup(t *testing.T, projectID, email, ref string) *domain.Result {
	t.Helper()
	f.clock.Advance(time.Second)
	res, err := f.svc.Signup(context.Background(), domain.Request{Email: email, ProjectID: projectID, ReferralCode: ref})
	require.NoError(t, err)
	return res
}

func TestSignupCreatesAtTheBack(t *testing.T) {
	f := newFixture(t)
	pid := f.project(t, 10, projectdomain.TierFree)

	first := f.signup(t, pid, " Alice@Example.COM ", "")
	second := f.signup(t, pid, "bob@example.com", "")

	assert.Equal(t, "alice@example.com", first.Signup.Email)
	assert.Equal(t, int64(1), first.Position)
	assert.Equal(t, int64(2), second.Position)
	assert.False(t, second.AlreadySignedUp)
	assert.Len(t, first.Signup.ReferralCode, idgen.ReferralCodeLength)
	assert.Nil(t, first.Signup.ReferredBy)

	assert.Len(t, f.notifier.created, 2)
	assert.Equal(t, 2, f.notifier.kicks)
}

func TestSignupIsIdempotentPerEmail(t *testing.T) {
	f := newFixture(t)
	pid := f.project(t, 10, projectdomain.TierFree)

	first := f.signup(t, pid, "alice@example.com", "")
	again := f.signup(t, pid, "ALICE@example.com", "")

	assert.True(t, again.AlreadySignedUp)
	assert.Equal(t, first.Signup.ID, again.Signup.ID)
	assert.Equal(t, first.Signup.ReferralCode, again.Signup.ReferralCode)
	assert.Equal(t, int64(1), again.Position)
	assert.Len(t, f.notifier.created, 1)

	var count int64
	require.NoError(t, f.db.Model(&domain.Signup{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSignupReferralFlow(t *testing.T) {
	f := newFixture(t)
	pid := f.project(t, 10, projectdomain.TierFree)

	alice := f.signup(t, pid, "alice@example.com", "")
	bob := f.signup(t, pid, "bob@example.com", "")
	carol := f.signup(t, pid, "carol@example.com", bob.Signup.ReferralCode)

	require.NotNil(t, carol.Signup.ReferredBy)
	assert.Equal(t, bob.Signup.ReferralCode, *carol.Signup.ReferredBy)
	assert.Equal(t, int64(3), carol.Position)

	created := f.notifier.created[2]
	require.NotNil(t, created.Referrer)
	assert.Equal(t, bob.Signup.ID, created.Referrer.ID)
	assert.Equal(t, int64(1), created.Referrer.ReferralCount)

	engine := ranking.New()
	ctx := context.Background()
	bobPos, err := engine.ComputePosition(ctx, f.db, bob.Signup.ID)
	require.NoError(t, err)
	alicePos, err := engine.ComputePosition(ctx, f.db, alice.Signup.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bobPos)
	assert.Equal(t, int64(2), alicePos)

	referred, err := repository.Provide().CountReferredBy(ctx, f.db, 10, bob.Signup.ReferralCode)
	require.NoError(t, err)
	stored, err := repository.Provide().FindByID(ctx, f.db, bob.Signup.ID)
	require.NoError(t, err)
	assert.Equal(t, referred, stored.ReferralCount)
}

func TestSignupIgnoresInvalidReferrals(t *testing.T) {
	f := newFixture(t)
	pid := f.project(t, 10, projectdomain.TierFree)
	other := f.project(t, 20, projectdomain.TierFree)

	outsider := f.signup(t, other, "outsider@example.com", "")
	unknown := f.signup(t, pid, "alice@example.com", "does-not-exist")
	cross := f.signup(t, pid, "bob@example.com", outsider.Signup.ReferralCode)

	assert.Nil(t, unknown.Signup.ReferredBy)
	assert.Nil(t, cross.Signup.ReferredBy)
	assert.Nil(t, f.notifier.created[2].Referrer)

	stored, err := repository.Provide().FindByID(context.Background(), f.db, outsider.Signup.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.ReferralCount)
}

func TestSignupSkipsMalformedReferralCodes(t *testing.T) {
	f := newFixture(t)
	pid := f.project(t, 10, projectdomain.TierFree)

	f.codes.codes = []string{"short"}
	alice := f.signup(t, pid, "alice@example.com", "")
	require.Equal(t, "short", alice.Signup.ReferralCode)

	bob := f.signup(t, pid, "bob@example.com", "short")
	assert.Nil(t, bob.Signup.ReferredBy)

	carol := f.signup(t, pid, "carol@example.com", "  ")
	assert.Nil(t, carol.Signup.ReferredBy)

	stored, err := repository.Provide().FindByID(context.Background(), f.db, alice.Signup.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.ReferralCount)
}

func TestSignupEnforcesFreeQuota(t *testing.T) {
	f := newFixture(t)
	pid := f.project(t, 10, projectdomain.TierFree)
	paid := f.project(t, 20, projectdomain.TierPro)

	for i := 1; i <= 100; i++ {
		f.signup(t, pid, fmt.Sprintf("user%d@example.com", i), "")
	}

	_, err := f.svc.Signup(context.Background(), domain.Request{Email: "late@example.com", ProjectID: pid})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	_, err = f.svc.Signup(context.Background(), domain.Request{Email: "user1@example.com", ProjectID: pid})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	for i := 1; i <= 101; i++ {
		f.signup(t, paid, fmt.Sprintf("user%d@example.com", i), "")
	}
}

func TestSignupValidation(t *testing.T) {
	f := newFixture(t)
	pid := f.project(t, 10, projectdomain.TierFree)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, domain.Request{Email: "not-an-email", ProjectID: pid})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = f.svc.Signup(ctx, domain.Request{Email: "a@b.co", ProjectID: "abc"})
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)

	_, err = f.svc.Signup(ctx, domain.Request{Email: "a@b.co", ProjectID: "999"})
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestSignupRetriesReferralCodeCollision(t *testing.T) {
	f := newFixture(t)
	pid := f.project(t, 10, projectdomain.TierFree)

	f.codes.codes = []string{"AAAAAAAAAA"}
	first := f.signup(t, pid, "alice@example.com", "")
	require.Equal(t, "AAAAAAAAAA", first.Signup.ReferralCode)

	f.codes.codes = []string{"AAAAAAAAAA", "BBBBBBBBBB"}
	second := f.signup(t, pid, "bob@example.com", "")
	assert.Equal(t, "BBBBBBBBBB", second.Signup.ReferralCode)

	f.codes.codes = []string{"AAAAAAAAAA", "AAAAAAAAAA", "AAAAAAAAAA"}
	_, err := f.svc.Signup(context.Background(), domain.Request{Email: "carol@example.com", ProjectID: pid})
	assert.ErrorIs(t, err, domain.ErrCodeExhausted)
}

func TestSignupRollsBackWhenEnqueueFails(t *testing.T) {
	f := newFixture(t)
	pid := f.project(t, 10, projectdomain.TierFree)
	f.notifier.err = assert.AnError

	_, err := f.svc.Signup(context.Background(), domain.Request{Email: "alice@example.com", ProjectID: pid})
	require.ErrorIs(t, err, assert.AnError)

	var count int64
	require.NoError(t, f.db.Model(&domain.Signup{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, 0, f.notifier.kicks)
}

func TestSignupAcmeScenario(t *testing.T) {
	f := newFixture(t)
	pid := f.project(t, 10, projectdomain.TierFree)
	ctx := context.Background()
	engine := ranking.New()

	a := f.signup(t, pid, "a@x.com", "")
	assert.Equal(t, int64(1), a.Position)
	assert.Equal(t, int64(0), a.Signup.ReferralCount)

	b := f.signup(t, pid, "b@x.com", a.Signup.ReferralCode)
	assert.Equal(t, int64(2), b.Position)

	stored, err := repository.Provide().FindByID(ctx, f.db, a.Signup.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ReferralCount)

	c := f.signup(t, pid, "c@x.com", "")
	assert.Equal(t, int64(3), c.Position)

	ranked, err := repository.Provide().ListRanked(ctx, f.db, 10, 0, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, []string{ranked[0].Email, ranked[1].Email, ranked[2].Email})

	for i, s := range ranked {
		pos, err := engine.ComputePosition(ctx, f.db, s.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), pos)
	}
}

func TestConcurrentSignupsKeepReferralCountsAndPositionsConsistent(t *testing.T) {
	conn := db.NewTestFile(t, &projectdomain.Project{}, &domain.Signup{})
	f := newFixtureOn(t, conn, clock.SystemClock{})
	pid := f.project(t, 10, projectdomain.TierFree)
	ctx := context.Background()
	repo := repository.Provide()

	root, err := f.svc.Signup(ctx, domain.Request{Email: "root@example.com", ProjectID: pid})
	require.NoError(t, err)
	other, err := f.svc.Signup(ctx, domain.Request{Email: "other@example.com", ProjectID: pid})
	require.NoError(t, err)

	const n = 30
	requests := make([]domain.Request, 0, n+5)
	for i := 0; i < n; i++ {
		req := domain.Request{Email: fmt.Sprintf("user%d@example.com", i), ProjectID: pid}
		switch i % 3 {
		case 1:
			req.ReferralCode = root.Signup.ReferralCode
		case 2:
			req.ReferralCode = other.Signup.ReferralCode
		}
		requests = append(requests, req)
	}
	// The same person submitting twice must be credited once.
	requests = append(requests, requests[1], requests[2], requests[4], requests[5], requests[7])

	var wg sync.WaitGroup
	errs := make(chan error, len(requests))
	for _, req := range requests {
		wg.Add(1)
		go func(req domain.Request) {
			defer wg.Done()
			_, err := f.svc.Signup(ctx, req)
			errs <- err
		}(req)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, referrer := range []*domain.Result{root, other} {
		referred, err := repo.CountReferredBy(ctx, conn, 10, referrer.Signup.ReferralCode)
		require.NoError(t, err)
		assert.Equal(t, int64(n/3), referred)

		stored, err := repo.FindByID(ctx, conn, referrer.Signup.ID)
		require.NoError(t, err)
		assert.Equal(t, referred, stored.ReferralCount)
	}

	ranked, err := repo.ListRanked(ctx, conn, 10, 0, 0)
	require.NoError(t, err)
	require.Len(t, ranked, n+2)
	assert.Equal(t, root.Signup.ID, ranked[0].ID)
	assert.Equal(t, other.Signup.ID, ranked[1].ID)

	engine := ranking.New()
	seen := make(map[int64]bool, len(ranked))
	for i, s := range ranked {
		pos, err := engine.ComputePosition(ctx, conn, s.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), pos)
		seen[pos] = true
	}
	assert.Len(t, seen, n+2)
}

func TestSequentialSignupsRankBySubSecondJoinTime(t *testing.T) {
	conn := db.NewTestFile(t, &projectdomain.Project{}, &domain.Signup{})
	f := newFixtureOn(t, conn, clock.SystemClock{})
	pid := f.project(t, 10, projectdomain.TierFree)
	ctx := context.Background()

	var ids []snowflake.ID
	for i := 0; i < 8; i++ {
		res, err := f.svc.Signup(ctx, domain.Request{Email: fmt.Sprintf("user%d@example.com", i), ProjectID: pid})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), res.Position)
		ids = append(ids, res.Signup.ID)
		time.Sleep(3 * time.Millisecond)
	}

	ranked, err := repository.Provide().ListRanked(ctx, conn, 10, 0, 0)
	require.NoError(t, err)
	require.Len(t, ranked, len(ids))
	for i, s := range ranked {
		assert.Equal(t, ids[i], s.ID)
	}
}
