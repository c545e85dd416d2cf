// Package repository is a thin generic layer over gorm for single-table ledger
// access. Every helper is bound to the *gorm.DB it was built with, so callers
// inside a transaction pass the transaction handle.
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Table reads and appends rows of T.
type Table[T any] struct {
	db *gorm.DB
}

// For binds a Table to db, which may be a transaction.
func For[T any](db *gorm.DB) Table[T] {
	return Table[T]{db: db}
}

// Option narrows or orders a query.
type Option func(db *gorm.DB) *gorm.DB

func OrderBy(expr string) Option {
	return func(db *gorm.DB) *gorm.DB { return db.Order(expr) }
}

func Limit(n int) Option {
	return func(db *gorm.DB) *gorm.DB { return db.Limit(n) }
}

// Where adds a raw condition on top of the struct filter.
func Where(query string, args ...any) Option {
	return func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) }
}

// First returns the first row matching filter, or nil without error when none does.
func (t Table[T]) First(ctx context.Context, filter *T, opts ...Option) (*T, error) {
	var row T
	err := t.query(ctx, filter, opts).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// List returns every row matching filter.
func (t Table[T]) List(ctx context.Context, filter *T, opts ...Option) ([]T, error) {
	var rows []T
	if err := t.query(ctx, filter, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (t Table[T]) Count(ctx context.Context, filter *T, opts ...Option) (int64, error) {
	var n int64
	err := t.query(ctx, filter, opts).Model(new(T)).Count(&n).Error
	return n, err
}

func (t Table[T]) Exists(ctx context.Context, filter *T, opts ...Option) (bool, error) {
	n, err := t.Count(ctx, filter, opts...)
	return n > 0, err
}

// Append inserts rows in one statement. Ledger tables are append-only, so there
// is no update or delete counterpart.
func (t Table[T]) Append(ctx context.Context, rows ...*T) error {
	switch len(rows) {
	case 0:
		return nil
	case 1:
		return t.db.WithContext(ctx).Create(rows[0]).Error
	default:
		return t.db.WithContext(ctx).Create(rows).Error
	}
}

func (t Table[T]) query(ctx context.Context, filter *T, opts []Option) *gorm.DB {
	db := t.db.WithContext(ctx)
	if filter != nil {
		db = db.Where(filter)
	}
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}
