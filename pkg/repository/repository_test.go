package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type event struct {
	ID     int64 `gorm:"primaryKey"`
	Source string
	Seq    int
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&event{}))
	return db
}

func TestTableAppendListAndFirst(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	events := For[event](db)

	require.NoError(t, events.Append(ctx))
	require.NoError(t, events.Append(ctx, &event{ID: 1, Source: "ecs", Seq: 2}))
	require.NoError(t, events.Append(ctx,
		&event{ID: 2, Source: "ecs", Seq: 1},
		&event{ID: 3, Source: "codebuild", Seq: 3},
	))

	rows, err := events.List(ctx, &event{Source: "ecs"}, OrderBy("seq ASC"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].ID)

	latest, err := events.First(ctx, nil, Where("seq > ?", 1), OrderBy("seq DESC"))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(3), latest.ID)

	missing, err := events.First(ctx, &event{Source: "sns"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTableCountAndExists(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	events := For[event](db)
	require.NoError(t, events.Append(ctx, &event{ID: 1, Source: "ecs"}, &event{ID: 2, Source: "ecs"}))

	n, err := events.Count(ctx, &event{Source: "ecs"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := events.Exists(ctx, nil, Where("source = ?", "codebuild"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTableFollowsTransaction(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := For[event](tx).Append(ctx, &event{ID: 1, Source: "ecs"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	ok, err := For[event](db).Exists(ctx, &event{ID: 1})
	require.NoError(t, err)
	assert.False(t, ok)
}
