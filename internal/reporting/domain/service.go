package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	signupdomain "github.com/smallbiznis/waitlist/internal/signup/domain"
	"github.com/smallbiznis/waitlist/pkg/db/pagination"
)

const (
	DefaultTopReferrers = 5
	AdminTopReferrers   = 10
	MaxTopReferrers     = 100
)

// CSVHeader is the first row of every export.
var CSVHeader = []string{"Position", "Email", "Referral Code", "Referred By", "Referral Count", "Signed Up At"}

type Service interface {
	ListSignups(ctx context.Context, projectID, secret string, page pagination.Pagination) (SignupPage, error)
	TopReferrers(ctx context.Context, projectID snowflake.ID, limit int) ([]signupdomain.RankedSignup, error)
	Stats(ctx context.Context, projectID snowflake.ID) (signupdomain.Stats, error)
	ExportCSV(ctx context.Context, projectID, secret string) (Export, error)
	AdminView(ctx context.Context, projectID, secret string) (AdminView, error)
	GlobalStats(ctx context.Context) (GlobalStats, error)
}

type SignupPage struct {
	Signups  []signupdomain.RankedSignup `json:"signups"`
	PageInfo pagination.PageInfo         `json:"pageInfo"`
}

type AdminProject struct {
	ID   snowflake.ID `json:"id"`
	Name string       `json:"name"`
	Slug string       `json:"slug"`
	Tier string       `json:"tier"`
}

type AdminView struct {
	Project      AdminProject                `json:"project"`
	Stats        signupdomain.Stats          `json:"stats"`
	Signups      []signupdomain.RankedSignup `json:"signups"`
	TopReferrers []signupdomain.RankedSignup `json:"topReferrers"`
}

type GlobalStats struct {
	TotalSignups   int64 `json:"totalSignups"`
	TotalProjects  int64 `json:"totalProjects"`
	DisplaySignups int64 `json:"displaySignups"`
}

type Export struct {
	Filename string
	Content  []byte
}
