package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"confessions/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	comment := &models.Comment{Content: "Same here", ConfessionRef: "ref-7", ConfessionID: 7, AuthorID: "u-1"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "confession_comments"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.Create(ctx, comment)
	assert.NoError(t, err)
	assert.Equal(t, uint(1), comment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_CreateError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "confession_comments"`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Comment{Content: "x", ConfessionRef: "ref-1", ConfessionID: 1, AuthorID: "u"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_CountByConfession(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "confession_comments" WHERE confession_ref = $1`)).
		WithArgs("ref-7").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountByConfession(context.Background(), "ref-7")
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_ListByConfession(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Create(ctx, &models.Comment{
			ConfessionRef: "ref-a",
			ConfessionID:  7,
			AuthorID:      "u-1",
			Content:       content,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// Same local id, different document.
	require.NoError(t, repo.Create(ctx, &models.Comment{
		ConfessionRef: "ref-b", ConfessionID: 7, AuthorID: "u-2", Content: "elsewhere", CreatedAt: base,
	}))

	all, err := repo.ListByConfession(ctx, "ref-a", 50, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Content)
	assert.Equal(t, "third", all[2].Content)

	page, err := repo.ListByConfession(ctx, "ref-a", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "second", page[0].Content)

	n, err := repo.CountByConfession(ctx, "ref-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.CountByConfession(ctx, "ref-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
