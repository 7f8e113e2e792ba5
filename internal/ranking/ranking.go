// Package ranking derives queue positions from referral counts.
//
// Nothing about a position is stored. A signup ranks ahead of another when it
// has more referrals, then when it joined earlier, then by lower id, so the
// positions of a project always form a permutation of 1..n. A referral is a
// single atomic increment on the referrer's counter.
package ranking

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Order sorts signups by position. Listing and export share it so that the
// n-th row of a listing has position n.
const Order = "referral_count DESC, created_at ASC, id ASC"

var ErrSignupNotFound = errors.New("signup_not_found")

// Engine computes and updates ranks. Every method takes the *gorm.DB to run
// on so callers can compose it into their own transactions.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

type positionRow struct {
	SignupID snowflake.ID
	Position int64
}

// ComputePosition returns the 1-based position of a signup within its project.
// The self join evaluates in a single statement, so the answer reflects one
// consistent snapshot of the project's counters.
func (e *Engine) ComputePosition(ctx context.Context, db *gorm.DB, signupID snowflake.ID) (int64, error) {
	var row positionRow
	err := db.WithContext(ctx).Raw(
		`SELECT s.id AS signup_id, COUNT(o.id) + 1 AS position
		 FROM signups s
		 LEFT JOIN signups o
		   ON o.project_id = s.project_id
		  AND (o.referral_count > s.referral_count
		       OR (o.referral_count = s.referral_count
		           AND (o.created_at < s.created_at
		                OR (o.created_at = s.created_at AND o.id < s.id))))
		 WHERE s.id = ?
		 GROUP BY s.id`,
		signupID,
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	if row.SignupID == 0 {
		return 0, ErrSignupNotFound
	}
	return row.Position, nil
}

// InitialRank is the position of a signup right after it was inserted: behind
// everyone with referrals and behind everyone who joined before it.
func (e *Engine) InitialRank(ctx context.Context, db *gorm.DB, signupID snowflake.ID) (int64, error) {
	return e.ComputePosition(ctx, db, signupID)
}

// RecordReferral credits the signup owning referrerCode within projectID.
// Blank, unknown and cross-project codes, and a code that belongs to the
// referee itself, are ignored and report false.
func (e *Engine) RecordReferral(ctx context.Context, db *gorm.DB, projectID snowflake.ID, referrerCode string, refereeID snowflake.ID) (bool, error) {
	referrerCode = strings.TrimSpace(referrerCode)
	if referrerCode == "" || projectID == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE signups
		 SET referral_count = referral_count + 1
		 WHERE project_id = ? AND referral_code = ? AND id <> ?`,
		projectID,
		referrerCode,
		refereeID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
