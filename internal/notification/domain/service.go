package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Dispatch(ctx context.Context, limit int) (int, error)
	SendWelcome(ctx context.Context, signupID snowflake.ID) error
	SendDayTwo(ctx context.Context, signupID snowflake.ID) error
	SendDayFive(ctx context.Context, signupID snowflake.ID) error
	ProcessDrip(ctx context.Context) (DripResult, error)
}
