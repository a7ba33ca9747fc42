package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/notifications"
	"recipebox/internal/repository"
	"recipebox/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecipeInput() RecipeInput {
	return RecipeInput{
		Title:        "Shakshuka",
		Ingredients:  "eggs\ntomatoes\npeppers",
		Instructions: "Simmer the sauce, crack in the eggs.",
		Category:     "Breakfast",
		ImageURL:     "https://example.com/shakshuka.jpg",
	}
}

func TestRecipeService_Submit(t *testing.T) {
	t.Parallel()

	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, testutil.Approved())
	pub := &publisherStub{}
	svc := NewRecipeService(repository.NewRecipeRepository(db), pub)

	recipe, err := svc.Submit(context.Background(), owner.ID, validRecipeInput())
	require.NoError(t, err)
	assert.Equal(t, models.RecipeStatusPending, recipe.Status, "submissions always wait for approval")
	assert.False(t, recipe.DeleteRequest)
	assert.Equal(t, owner.ID, recipe.UserID)

	admin := pub.adminEvents()
	require.Len(t, admin, 1)
	assert.Equal(t, notifications.EventQueueChanged, admin[0].Type)
	assert.Equal(t, recipe.ID, admin[0].RecipeID)

	approved, err := svc.ListApproved(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, approved, "pending recipes are not public")
}

// Not parallel: swaps the package logger.
func TestRecipeService_LogsPublishFailures(t *testing.T) {
	var buf bytes.Buffer
	original := middleware.Logger
	middleware.Logger = middleware.NewLogger(&buf, "production", "debug")
	t.Cleanup(func() { middleware.Logger = original })

	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, testutil.Approved())
	pub := &publisherStub{err: errors.New("redis down")}
	svc := NewRecipeService(repository.NewRecipeRepository(db), pub)

	recipe, err := svc.Submit(context.Background(), owner.ID, validRecipeInput())
	require.NoError(t, err, "a failed notification does not fail the submission")
	assert.Contains(t, buf.String(), "failed to publish admin event")
	assert.Contains(t, buf.String(), "redis down")

	buf.Reset()
	_, err = svc.RequestDelete(context.Background(), recipe.ID, owner.ID)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "failed to publish admin event")
}

func TestRecipeService_Submit_RequiresFields(t *testing.T) {
	t.Parallel()

	svc := NewRecipeService(repository.NewRecipeRepository(testutil.NewTestDB(t)), &publisherStub{})

	for name, mutate := range map[string]func(*RecipeInput){
		"title":        func(in *RecipeInput) { in.Title = "  " },
		"ingredients":  func(in *RecipeInput) { in.Ingredients = "" },
		"instructions": func(in *RecipeInput) { in.Instructions = "" },
		"category":     func(in *RecipeInput) { in.Category = "" },
		"image":        func(in *RecipeInput) { in.ImageURL = "" },
	} {
		t.Run(name, func(t *testing.T) {
			in := validRecipeInput()
			mutate(&in)
			_, err := svc.Submit(context.Background(), 1, in)
			assertValidationError(t, err)
		})
	}
}

func TestRecipeService_GetVisibility(t *testing.T) {
	t.Parallel()

	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, testutil.Approved())
	other := testutil.CreateUser(t, db, testutil.Approved())
	admin := testutil.CreateUser(t, db, testutil.Admin())
	pending := testutil.CreateRecipe(t, db, owner)
	approved := testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())

	svc := NewRecipeService(repository.NewRecipeRepository(db), &publisherStub{})
	ctx := context.Background()

	_, err := svc.Get(ctx, approved.ID, Viewer{})
	assert.NoError(t, err, "approved recipes are public")

	_, err = svc.Get(ctx, pending.ID, Viewer{})
	assertAppErrorCode(t, err, models.CodeNotFound)
	_, err = svc.Get(ctx, pending.ID, Viewer{UserID: other.ID})
	assertAppErrorCode(t, err, models.CodeNotFound)

	got, err := svc.Get(ctx, pending.ID, Viewer{UserID: owner.ID})
	require.NoError(t, err)
	assert.Equal(t, owner.Username, got.CreatorUsername)

	_, err = svc.Get(ctx, pending.ID, Viewer{UserID: admin.ID, IsAdmin: true})
	assert.NoError(t, err)

	_, err = svc.Get(ctx, 9999, Viewer{IsAdmin: true})
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func TestRecipeService_UpdateOwnerOnly(t *testing.T) {
	t.Parallel()

	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, testutil.Approved())
	other := testutil.CreateUser(t, db, testutil.Approved())
	recipe := testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())

	svc := NewRecipeService(repository.NewRecipeRepository(db), &publisherStub{})
	ctx := context.Background()

	in := validRecipeInput()
	in.Title = "Better Shakshuka"

	_, err := svc.Update(ctx, recipe.ID, other.ID, in)
	assertAppErrorCode(t, err, models.CodeNotFound)

	updated, err := svc.Update(ctx, recipe.ID, owner.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Better Shakshuka", updated.Title)
	assert.Equal(t, models.RecipeStatusApproved, updated.Status, "edits keep the moderation state")

	got, err := svc.GetOwned(ctx, recipe.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "Better Shakshuka", got.Title)
}

func TestRecipeService_RequestDelete(t *testing.T) {
	t.Parallel()

	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, testutil.Approved())
	other := testutil.CreateUser(t, db, testutil.Approved())
	recipe := testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())

	pub := &publisherStub{}
	svc := NewRecipeService(repository.NewRecipeRepository(db), pub)
	ctx := context.Background()

	_, err := svc.RequestDelete(ctx, recipe.ID, other.ID)
	assertAppErrorCode(t, err, models.CodeNotFound)

	flagged, err := svc.RequestDelete(ctx, recipe.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, flagged.DeleteRequest)

	mine, err := svc.ListMine(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].DeleteRequest, "the recipe stays until an admin decides")
	assert.Len(t, pub.adminEvents(), 1)
}

func TestRecipeService_ListApproved(t *testing.T) {
	t.Parallel()

	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, testutil.Approved())
	testutil.CreateRecipe(t, db, owner)
	testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())
	testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())

	svc := NewRecipeService(repository.NewRecipeRepository(db), &publisherStub{})

	list, err := svc.ListApproved(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	count, err := svc.CountApproved(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
