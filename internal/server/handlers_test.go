package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	billingdomain "github.com/smallbiznis/waitlist/internal/billing/domain"
	"github.com/smallbiznis/waitlist/internal/config"
	notificationdomain "github.com/smallbiznis/waitlist/internal/notification/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProjectAndFetchBySlug(t *testing.T) {
	ts := newTestServer(t)

	created := ts.createProject(t, "Acme Launch")
	assert.Equal(t, "acme-launch", created.Project.Slug)
	assert.NotEmpty(t, created.Project.ID)
	assert.Len(t, created.AdminSecret, 32)

	second := ts.createProject(t, "Acme Launch")
	assert.Equal(t, "acme-launch-1", second.Project.Slug)

	rec := ts.do(t, http.MethodGet, "/api/project/acme-launch", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Project struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			SignupCount int64  `json:"signupCount"`
		} `json:"project"`
	}](t, rec)
	assert.Equal(t, created.Project.ID, body.Project.ID)
	assert.Equal(t, "Acme Launch", body.Project.Name)
	assert.Zero(t, body.Project.SignupCount)
	assert.NotContains(t, rec.Body.String(), "adminSecret")
}

func TestCreateProjectValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/project", map[string]string{"adminEmail": "owner@example.com"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[envelope](t, rec)
	require.Len(t, body.Error.Errors, 1)
	assert.Equal(t, "name", body.Error.Errors[0].Field)

	rec = ts.do(t, http.MethodPost, "/api/project", map[string]string{"name": "X", "adminEmail": "nope"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decode[envelope](t, rec).Error.Errors[0].Field)
}

func TestGetProjectNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/project/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Project not found", decode[envelope](t, rec).Error.Message)
}

func TestAdminRequiresSecret(t *testing.T) {
	ts := newTestServer(t)
	project := ts.createProject(t, "Guarded Launch")
	path := "/api/admin/" + project.Project.ID

	rec := ts.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Admin secret required", decode[envelope](t, rec).Error.Message)

	rec = ts.do(t, http.MethodGet, path, nil, map[string]string{HeaderAdminSecret: "wrong"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid admin secret", decode[envelope](t, rec).Error.Message)

	rec = ts.do(t, http.MethodGet, "/api/admin/999999/export", nil, map[string]string{HeaderAdminSecret: "anything"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, path, nil, map[string]string{HeaderAdminSecret: project.AdminSecret})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminExportCSV(t *testing.T) {
	ts := newTestServer(t)
	project := ts.createProject(t, "Export Launch")
	first := decode[signupResponse](t, ts.signup(t, project.Project.ID, "one@example.com", ""))
	ts.signup(t, project.Project.ID, "two@example.com", first.Signup.ReferralCode)

	rec := ts.do(t, http.MethodGet, "/api/admin/"+project.Project.ID+"/export", nil, map[string]string{
		HeaderAdminSecret: project.AdminSecret,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Equal(t, `attachment; filename="export-launch-signups.csv"`, rec.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Position,Email,Referral Code,Referred By,Referral Count,Signed Up At", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,one@example.com,"+first.Signup.ReferralCode+",Direct,1,"))
	assert.True(t, strings.HasPrefix(lines[2], "2,two@example.com,"))
}

func TestAdminListSignupsPaginates(t *testing.T) {
	ts := newTestServer(t)
	project := ts.createProject(t, "Paged Launch")
	for i := 0; i < 3; i++ {
		ts.signup(t, project.Project.ID, fmt.Sprintf("p%d@example.com", i), "")
	}
	headers := map[string]string{HeaderAdminSecret: project.AdminSecret}
	base := "/api/admin/" + project.Project.ID + "/signups"

	type page struct {
		Signups []struct {
			Email    string `json:"email"`
			Position int64  `json:"position"`
		} `json:"signups"`
		PageInfo struct {
			NextPageToken string `json:"next_page_token"`
			HasMore       bool   `json:"has_more"`
		} `json:"pageInfo"`
	}

	rec := ts.do(t, http.MethodGet, base+"?page_size=2", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[page](t, rec)
	require.Len(t, first.Signups, 2)
	assert.True(t, first.PageInfo.HasMore)
	require.NotEmpty(t, first.PageInfo.NextPageToken)

	rec = ts.do(t, http.MethodGet, base+"?page_size=2&page_token="+first.PageInfo.NextPageToken, nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[page](t, rec)
	require.Len(t, second.Signups, 1)
	assert.EqualValues(t, 3, second.Signups[0].Position)
	assert.Equal(t, "p2@example.com", second.Signups[0].Email)
	assert.False(t, second.PageInfo.HasMore)

	rec = ts.do(t, http.MethodGet, base+"?page_token=%25%25", nil, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_page_token", decode[envelope](t, rec).Error.Errors[0].Code)
}

func TestAdminAuditLogs(t *testing.T) {
	ts := newTestServer(t)
	project := ts.createProject(t, "Audited Launch")
	headers := map[string]string{HeaderAdminSecret: project.AdminSecret}
	base := "/api/admin/" + project.Project.ID

	rec := ts.do(t, http.MethodGet, base+"/export", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, base+"/audit-logs", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	logs := decode[struct {
		AuditLogs []struct {
			Action    string         `json:"action"`
			ActorType string         `json:"actorType"`
			TargetID  string         `json:"targetId"`
			Metadata  map[string]any `json:"metadata"`
		} `json:"auditLogs"`
	}](t, rec)
	require.Len(t, logs.AuditLogs, 2)
	assert.Equal(t, "signups.exported", logs.AuditLogs[0].Action)
	assert.Equal(t, "admin", logs.AuditLogs[0].ActorType)
	assert.Equal(t, "project.created", logs.AuditLogs[1].Action)
	assert.Equal(t, "public", logs.AuditLogs[1].ActorType)
	assert.Equal(t, project.Project.ID, logs.AuditLogs[1].TargetID)
	assert.Equal(t, "o****@example.com", logs.AuditLogs[1].Metadata["owner_email"])

	rec = ts.do(t, http.MethodGet, base+"/audit-logs?action=project.created", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "project.created")
	assert.NotContains(t, rec.Body.String(), "signups.exported")

	rec = ts.do(t, http.MethodGet, base+"/audit-logs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGlobalStats(t *testing.T) {
	ts := newTestServer(t)
	project := ts.createProject(t, "Counted Launch")
	ts.signup(t, project.Project.ID, "s1@example.com", "")

	rec := ts.do(t, http.MethodGet, "/api/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]int64](t, rec)
	assert.EqualValues(t, 1, body["totalSignups"])
	assert.EqualValues(t, 1, body["totalProjects"])
	assert.EqualValues(t, 1, body["displaySignups"])
}

func TestPublicRoutesAnswerPreflight(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodOptions, "/api/signup", nil, map[string]string{
		"Origin":                        "https://customer.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	rec = ts.do(t, http.MethodGet, "/api/stats", nil, nil)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[envelope](t, rec).Error.Type)
}

func TestCronDripRequiresBearerSecret(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.CronSecret = "s3cret"
	})
	ts.notifications.result = notificationdomain.DripResult{Day2Sent: 2, Day5Sent: 1, Errors: []string{"signup 9: smtp down"}}

	rec := ts.do(t, http.MethodGet, "/api/cron/drip-emails", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/cron/drip-emails", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, ts.notifications.runs)

	rec = ts.do(t, http.MethodPost, "/api/cron/drip-emails", nil, map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, ts.notifications.runs)
	body := decode[struct {
		Success bool `json:"success"`
		Results struct {
			Day2EmailsSent int      `json:"day2EmailsSent"`
			Day5EmailsSent int      `json:"day5EmailsSent"`
			ErrorCount     int      `json:"errorCount"`
			Errors         []string `json:"errors"`
		} `json:"results"`
	}](t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Results.Day2EmailsSent)
	assert.Equal(t, 1, body.Results.Day5EmailsSent)
	assert.Equal(t, 1, body.Results.ErrorCount)
	assert.Equal(t, []string{"signup 9: smtp down"}, body.Results.Errors)
}

func TestCronDripWithoutSecret(t *testing.T) {
	open := newTestServer(t)
	rec := open.do(t, http.MethodGet, "/api/cron/drip-emails", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	closed := newTestServer(t, func(cfg *config.Config) {
		cfg.Environment = "production"
	})
	rec = closed.do(t, http.MethodGet, "/api/cron/drip-emails", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCronDripReportsFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.notifications.err = errors.New("database unavailable")

	rec := ts.do(t, http.MethodGet, "/api/cron/drip-emails", nil, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "database unavailable", body["error"])
}

func TestCheckoutPassesOrigin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/checkout", map[string]string{
		"priceId":   "price_pro",
		"email":     "buyer@example.com",
		"projectId": "42",
	}, map[string]string{"Origin": "https://app.example/"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "cs_test_1", body["sessionId"])
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", body["url"])

	require.Len(t, ts.billing.checkouts, 1)
	assert.Equal(t, billingdomain.CheckoutRequest{
		PriceID:   "price_pro",
		Email:     "buyer@example.com",
		ProjectID: "42",
		Origin:    "https://app.example",
	}, ts.billing.checkouts[0])
}

func TestBillingErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{billingdomain.ErrPriceRequired, http.StatusBadRequest, "validation_error"},
		{billingdomain.ErrUnknownPrice, http.StatusBadRequest, "validation_error"},
		{billingdomain.ErrNotConfigured, http.StatusServiceUnavailable, "service_unavailable"},
		{fmt.Errorf("%w: card declined", billingdomain.ErrProviderRequest), http.StatusBadGateway, "upstream_error"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			ts := newTestServer(t)
			ts.billing.err = tc.err

			rec := ts.do(t, http.MethodPost, "/api/checkout", map[string]string{"priceId": "x"}, nil)
			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.typ, decode[envelope](t, rec).Error.Type)
		})
	}
}

func TestCustomerPortal(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/customer-portal", map[string]string{"customerId": "cus_1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://billing.stripe.test/bps_1", decode[map[string]string](t, rec)["url"])
	require.Len(t, ts.billing.portals, 1)
	assert.Equal(t, "cus_1", ts.billing.portals[0].CustomerID)
}

func TestStripeWebhookReceivesRawBody(t *testing.T) {
	ts := newTestServer(t)
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.deleted"}`)

	rec := ts.do(t, http.MethodPost, "/api/webhooks/stripe", payload, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	require.Len(t, ts.billing.webhooks, 1)
	assert.Equal(t, payload, ts.billing.webhooks[0])

	ts.billing.err = billingdomain.ErrInvalidSignature
	rec = ts.do(t, http.MethodPost, "/api/webhooks/stripe", payload, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid signature", decode[envelope](t, rec).Error.Message)
}

func TestPlansCatalog(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/plans", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[config.PlanConfig](t, rec)
	require.NotEmpty(t, body.Plans)
	assert.Equal(t, "free", body.Plans[0].ID)
}

func TestSubmitFeedback(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/feedback", map[string]string{"feedback": "love it", "email": "f@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"id":"fb-1"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/feedback", map[string]string{"feedback": ""}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[envelope](t, rec)
	assert.Equal(t, "Feedback is required", body.Error.Message)
	assert.Equal(t, "feedback", body.Error.Errors[0].Field)
}
