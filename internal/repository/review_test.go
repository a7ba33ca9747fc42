package repository

import (
	"context"
	"testing"
	"time"

	"recipebox/internal/models"
	"recipebox/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewRepository_ListByRecipe(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, testutil.Approved())
	alice := testutil.CreateUser(t, db, testutil.Approved(), testutil.WithUsername("alice"))
	bob := testutil.CreateUser(t, db, testutil.Approved(), testutil.WithUsername("bob"))
	recipe := testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())

	older := &models.Review{RecipeID: recipe.ID, UserID: alice.ID, Rating: 4, Comment: "nice", CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, repo.Create(ctx, older))
	newer := &models.Review{RecipeID: recipe.ID, UserID: bob.ID, Rating: 2, Comment: "meh"}
	require.NoError(t, repo.Create(ctx, newer))

	reviews, err := repo.ListByRecipe(ctx, recipe.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, newer.ID, reviews[0].ID)
	assert.Equal(t, "bob", reviews[0].ReviewerUsername)
	assert.Equal(t, "alice", reviews[1].ReviewerUsername)
	assert.Equal(t, "nice", reviews[1].Comment)
}

func TestReviewRepository_Summary(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, testutil.Approved())
	reviewer := testutil.CreateUser(t, db, testutil.Approved())
	recipe := testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())

	empty, err := repo.Summary(ctx, recipe.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RatingSummary{}, empty)

	for _, rating := range []int{1, 2, 2} {
		testutil.CreateReview(t, db, recipe, reviewer, rating, "")
	}
	summary, err := repo.Summary(ctx, recipe.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.7, summary.Average, 0.001)
	assert.Equal(t, int64(3), summary.Count)
}

func TestReviewRepository_CreateRejectsOutOfRangeRating(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewReviewRepository(db)

	owner := testutil.CreateUser(t, db, testutil.Approved())
	recipe := testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())

	err := repo.Create(context.Background(), &models.Review{RecipeID: recipe.ID, UserID: owner.ID, Rating: 6})
	assert.True(t, models.HasCode(err, models.CodeInternal))
}
