package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/waitlist/internal/audit/domain"
	auditrepo "github.com/smallbiznis/waitlist/internal/audit/repository"
	auditservice "github.com/smallbiznis/waitlist/internal/audit/service"
	billingdomain "github.com/smallbiznis/waitlist/internal/billing/domain"
	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/config"
	feedbackdomain "github.com/smallbiznis/waitlist/internal/feedback/domain"
	"github.com/smallbiznis/waitlist/internal/idgen"
	notificationdomain "github.com/smallbiznis/waitlist/internal/notification/domain"
	"github.com/smallbiznis/waitlist/internal/observability"
	"github.com/smallbiznis/waitlist/internal/observability/metrics"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	projectrepo "github.com/smallbiznis/waitlist/internal/project/repository"
	projectservice "github.com/smallbiznis/waitlist/internal/project/service"
	"github.com/smallbiznis/waitlist/internal/ranking"
	"github.com/smallbiznis/waitlist/internal/ratelimit"
	reportingservice "github.com/smallbiznis/waitlist/internal/reporting/service"
	signupdomain "github.com/smallbiznis/waitlist/internal/signup/domain"
	signuprepo "github.com/smallbiznis/waitlist/internal/signup/repository"
	signupservice "github.com/smallbiznis/waitlist/internal/signup/service"
	"github.com/smallbiznis/waitlist/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBilling struct {
	checkouts []billingdomain.CheckoutRequest
	portals   []billingdomain.PortalRequest
	webhooks  [][]byte
	err       error
}

func (f *fakeBilling) Plans() config.PlanConfig { return config.DefaultPlanConfig() }

func (f *fakeBilling) Checkout(_ context.Context, req billingdomain.CheckoutRequest) (billingdomain.Session, error) {
	f.checkouts = append(f.checkouts, req)
	if f.err != nil {
		return billingdomain.Session{}, f.err
	}
	return billingdomain.Session{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeBilling) Portal(_ context.Context, req billingdomain.PortalRequest) (billingdomain.Session, error) {
	f.portals = append(f.portals, req)
	if f.err != nil {
		return billingdomain.Session{}, f.err
	}
	return billingdomain.Session{ID: "bps_1", URL: "https://billing.stripe.test/bps_1"}, nil
}

func (f *fakeBilling) HandleWebhook(_ context.Context, payload []byte, _ http.Header) error {
	f.webhooks = append(f.webhooks, payload)
	return f.err
}

type fakeNotifications struct {
	notificationdomain.Service
	result notificationdomain.DripResult
	err    error
	runs   int
}

func (f *fakeNotifications) ProcessDrip(context.Context) (notificationdomain.DripResult, error) {
	f.runs++
	return f.result, f.err
}

type fakeFeedback struct {
	requests []feedbackdomain.Request
}

func (f *fakeFeedback) Submit(_ context.Context, req feedbackdomain.Request) (feedbackdomain.Response, error) {
	if req.Message == "" {
		return feedbackdomain.Response{}, feedbackdomain.ErrMessageRequired
	}
	f.requests = append(f.requests, req)
	return feedbackdomain.Response{Success: true, ID: "fb-1"}, nil
}

type testServer struct {
	server        *Server
	clock         *clock.FakeClock
	billing       *fakeBilling
	notifications *fakeNotifications
	feedback      *fakeFeedback
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Environment: "test",
		BaseURL:     "https://waitlist.test",
		RateLimit: config.RateLimitConfig{
			Enabled:       true,
			Window:        time.Minute,
			Signup:        100,
			ProjectCreate: 100,
			Feedback:      100,
			Checkout:      100,
		},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	conn := db.NewTest(t, &projectdomain.Project{}, &signupdomain.Signup{}, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	projects := projectservice.New(projectservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Codes: idgen.New(),
		Clock: fc,
		Repo:  projectrepo.Provide(),
	})
	signups := signupservice.New(signupservice.Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Codes:    idgen.New(),
		Clock:    fc,
		Repo:     signuprepo.Provide(),
		Ranking:  ranking.New(),
		Projects: projects,
		Plans:    config.NewStaticPlanConfigHolder(config.DefaultPlanConfig()),
		Metrics:  metrics.NewNoop(),
	})
	audit := auditservice.NewService(auditservice.Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Clock:    fc,
		Repo:     auditrepo.Provide(),
		Projects: projects,
	})
	reporting := reportingservice.New(reportingservice.Params{
		DB:       conn,
		Log:      log,
		Signups:  signuprepo.Provide(),
		Projects: projects,
		Audit:    audit,
	})

	ts := &testServer{
		clock:         fc,
		billing:       &fakeBilling{},
		notifications: &fakeNotifications{},
		feedback:      &fakeFeedback{},
	}
	ts.server = NewServer(ServerParams{
		Gin:             NewEngine(observability.Config{}, nil),
		Cfg:             cfg,
		Log:             log,
		Clock:           fc,
		Limiter:         ratelimit.NewMemoryLimiter(),
		Metrics:         metrics.NewNoop(),
		ProjectSvc:      projects,
		SignupSvc:       signups,
		ReportingSvc:    reporting,
		BillingSvc:      ts.billing,
		NotificationSvc: ts.notifications,
		FeedbackSvc:     ts.feedback,
		AuditSvc:        audit,
	})
	ts.server.RegisterRoutes()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type createdProject struct {
	Project struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
		Name string `json:"name"`
	} `json:"project"`
	AdminSecret string `json:"adminSecret"`
}

func (ts *testServer) createProject(t *testing.T, name string) createdProject {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/project", map[string]string{
		"name":       name,
		"adminEmail": "owner@example.com",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[createdProject](t, rec)
}

type signupResponse struct {
	Signup struct {
		ID            string  `json:"id"`
		Email         string  `json:"email"`
		ReferralCode  string  `json:"referralCode"`
		ReferredBy    *string `json:"referredBy"`
		ReferralCount int64   `json:"referralCount"`
	} `json:"signup"`
	Position        int64 `json:"position"`
	AlreadySignedUp bool  `json:"alreadySignedUp"`
}

func (ts *testServer) signup(t *testing.T, projectID, email, referredBy string) *httptest.ResponseRecorder {
	t.Helper()
	ts.clock.Advance(time.Second)
	return ts.do(t, http.MethodPost, "/api/signup", map[string]string{
		"email":      email,
		"projectId":  projectID,
		"referredBy": referredBy,
	}, nil)
}

type envelope struct {
	Error struct {
		Type    string            `json:"type"`
		Message string            `json:"message"`
		Errors  []ValidationError `json:"errors"`
	} `json:"error"`
}
