package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/waitlist/internal/audit/domain"
	"github.com/smallbiznis/waitlist/internal/audit/repository"
	"github.com/smallbiznis/waitlist/internal/clock"
	obscontext "github.com/smallbiznis/waitlist/internal/observability/context"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	"github.com/smallbiznis/waitlist/pkg/db"
	"github.com/smallbiznis/waitlist/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeProjects struct {
	projectdomain.Service
	project projectdomain.Project
	secret  string
}

func (f *fakeProjects) Authorize(_ context.Context, projectID, secret string) (*projectdomain.Project, error) {
	if secret == "" {
		return nil, projectdomain.ErrUnauthorized
	}
	if projectID != f.project.ID.String() {
		return nil, projectdomain.ErrNotFound
	}
	if secret != f.secret {
		return nil, projectdomain.ErrForbidden
	}
	return &f.project, nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock, *fakeProjects) {
	t.Helper()
	conn := db.NewTest(t, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	projects := &fakeProjects{project: projectdomain.Project{ID: 77, Slug: "demo"}, secret: "s3cret"}

	svc := NewService(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fc,
		Repo:     repository.Provide(),
		Projects: projects,
	}).(*Service)
	return svc, conn, fc, projects
}

func TestRecordMasksSensitiveMetadata(t *testing.T) {
	svc, conn, _, _ := newTestService(t)
	projectID := snowflake.ID(77)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithClientIP(ctx, "203.0.113.9")
	ctx = obscontext.WithActor(ctx, "billing", "stripe")

	err := svc.Record(ctx, auditdomain.Entry{
		ProjectID:  &projectID,
		Action:     auditdomain.ActionBillingPlanChanged,
		TargetType: auditdomain.TargetProject,
		TargetID:   projectID.String(),
		Metadata: map[string]any{
			"plan":        "pro",
			"customer_id": "cus_ABCDEFWXYZ",
		},
	})
	require.NoError(t, err)

	var stored auditdomain.AuditLog
	require.NoError(t, conn.First(&stored).Error)
	assert.Equal(t, "billing", stored.ActorType)
	require.NotNil(t, stored.ActorID)
	assert.Equal(t, "stripe", *stored.ActorID)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "203.0.113.9", *stored.IPAddress)
	assert.Equal(t, "pro", stored.Metadata["plan"])
	assert.Equal(t, "cus_****WXYZ", stored.Metadata["customer_id"])
	assert.Equal(t, "req-1", stored.Metadata["request_id"])
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	svc, conn, _, _ := newTestService(t)

	require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{Action: "project.created"}))

	var stored auditdomain.AuditLog
	require.NoError(t, conn.First(&stored).Error)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), stored.ActorType)
	assert.Equal(t, "unknown", stored.TargetType)
	assert.Nil(t, stored.ProjectID)

	assert.ErrorIs(t, svc.Record(context.Background(), auditdomain.Entry{}), auditdomain.ErrInvalidAction)
}

func TestListIsScopedAndNewestFirst(t *testing.T) {
	svc, _, fc, projects := newTestService(t)
	own := snowflake.ID(77)
	other := snowflake.ID(78)

	for _, action := range []string{"a.first", "a.second", "a.third"} {
		fc.Advance(time.Minute)
		require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{ProjectID: &own, Action: action}))
	}
	require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{ProjectID: &other, Action: "b.only"}))

	resp, err := svc.List(context.Background(), projects.project.ID.String(), "s3cret", auditdomain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)
	assert.Equal(t, "a.third", resp.AuditLogs[0].Action)
	assert.Equal(t, "a.second", resp.AuditLogs[1].Action)
	assert.True(t, resp.PageInfo.HasMore)

	resp, err = svc.List(context.Background(), projects.project.ID.String(), "s3cret", auditdomain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: resp.PageInfo.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "a.first", resp.AuditLogs[0].Action)

	resp, err = svc.List(context.Background(), projects.project.ID.String(), "s3cret", auditdomain.ListRequest{Action: "a.second"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	_, err = svc.List(context.Background(), projects.project.ID.String(), "nope", auditdomain.ListRequest{})
	assert.ErrorIs(t, err, projectdomain.ErrForbidden)
}
