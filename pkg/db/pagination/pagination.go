package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Cursor marks where the next page of a ranked listing starts. Ranked lists
// reorder as referrals arrive, so the cursor is a rank offset, not a row key.
type Cursor struct {
	Offset int `json:"offset"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Normalize clamps the page size and decodes the token into an offset.
func (p Pagination) Normalize() (offset, limit int, err error) {
	limit = p.PageSize
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if p.PageToken == "" {
		return 0, limit, nil
	}
	cursor, err := DecodeCursor(p.PageToken)
	if err != nil || cursor.Offset < 0 {
		return 0, 0, ErrInvalidPageToken
	}
	return cursor.Offset, limit, nil
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// BuildPageInfo expects data fetched with limit+1 rows and trims the probe row.
func BuildPageInfo[T any](data []T, offset, limit int) ([]T, PageInfo) {
	if len(data) <= limit {
		return data, PageInfo{}
	}
	token, err := EncodeCursor(Cursor{Offset: offset + limit})
	if err != nil {
		return data[:limit], PageInfo{}
	}
	return data[:limit], PageInfo{NextPageToken: token, HasMore: true}
}
