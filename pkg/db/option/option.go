// Package option provides composable gorm query modifiers.
package option

import (
	"strings"

	"github.com/smallbiznis/firmbill/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination applies cursor pagination. It fetches one row beyond the
// page size so the caller can detect a next page.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := p.PageSize
		if size <= 0 {
			size = 10
		}
		if size > 250 {
			size = 250
		}

		if p.PageToken != "" {
			cursor, err := pagination.DecodeCursor(p.PageToken)
			if err == nil && cursor != nil && cursor.CreatedAt != "" {
				db = db.Where("created_at < ?", cursor.CreatedAt)
			}
		}

		return db.Limit(size + 1)
	})
}

// QuerySortBy restricts sortable columns to an allow list.
type QuerySortBy struct {
	Field string
	Desc  bool
	Allow map[string]bool
}

// WithSortBy orders results by an allowed column, defaulting to created_at
// descending.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(sort.Field)
		if field == "" || (sort.Allow != nil && !sort.Allow[field]) {
			field = "created_at"
			sort.Desc = true
		}
		if sort.Desc {
			return db.Order(field + " DESC")
		}
		return db.Order(field)
	})
}
