package service

import (
	"context"
	"testing"

	"recipebox/internal/cache"
	"recipebox/internal/models"
	"recipebox/internal/notifications"
	"recipebox/internal/repository"
	"recipebox/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestModeration(t *testing.T) (*gorm.DB, *ModerationService, *publisherStub) {
	t.Helper()
	db := testutil.NewTestDB(t)
	pub := &publisherStub{}
	svc := NewModerationService(repository.NewUserRepository(db), repository.NewRecipeRepository(db), pub)
	return db, svc, pub
}

func countRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func TestModerationService_UserApproval(t *testing.T) {
	t.Parallel()

	db, svc, pub := newTestModeration(t)
	ctx := context.Background()
	pending := testutil.CreateUser(t, db)
	other := testutil.CreateUser(t, db)
	admin := testutil.CreateUser(t, db, testutil.Admin())

	queue, err := svc.PendingUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 2)

	approved, err := svc.ApproveUser(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)

	events := pub.userEvents(pending.ID)
	require.Len(t, events, 1)
	assert.Equal(t, notifications.EventAccountApproved, events[0].Type)

	_, err = svc.ApproveUser(ctx, pending.ID)
	assertAppErrorCode(t, err, models.CodeConflict)
	_, err = svc.RejectUser(ctx, pending.ID)
	assertAppErrorCode(t, err, models.CodeConflict)
	_, err = svc.RejectUser(ctx, admin.ID)
	assertAppErrorCode(t, err, models.CodeConflict)

	_, err = svc.RejectUser(ctx, other.ID)
	require.NoError(t, err)
	assert.Zero(t, countRows(t, db, &models.User{}, "id = ?", other.ID))

	queue, err = svc.PendingUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)

	_, err = svc.ApproveUser(ctx, 9999)
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func TestModerationService_RecipeApproval(t *testing.T) {
	t.Parallel()

	db, svc, pub := newTestModeration(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, testutil.Approved())
	first := testutil.CreateRecipe(t, db, owner)
	second := testutil.CreateRecipe(t, db, owner)

	queue, err := svc.PendingRecipes(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, first.ID, queue[0].ID, "oldest first")

	approved, err := svc.ApproveRecipe(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecipeStatusApproved, approved.Status)

	_, err = svc.ApproveRecipe(ctx, first.ID)
	assertAppErrorCode(t, err, models.CodeConflict)
	_, err = svc.RejectRecipe(ctx, first.ID)
	assertAppErrorCode(t, err, models.CodeConflict)

	_, err = svc.RejectRecipe(ctx, second.ID)
	require.NoError(t, err)
	assert.Zero(t, countRows(t, db, &models.Recipe{}, "id = ?", second.ID))

	var types []string
	for _, e := range pub.userEvents(owner.ID) {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{notifications.EventRecipeApproved, notifications.EventRecipeRejected}, types)
	assert.Len(t, pub.adminEvents(), 2)
}

func TestModerationService_DeleteRequests(t *testing.T) {
	t.Parallel()

	db, svc, _ := newTestModeration(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, testutil.Approved())
	reviewer := testutil.CreateUser(t, db, testutil.Approved())
	keep := testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe(), testutil.DeleteRequested())
	drop := testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe(), testutil.DeleteRequested())
	unflagged := testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())
	testutil.CreateReview(t, db, drop, reviewer, 5, "great")

	requests, err := svc.DeleteRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, requests, 2)

	_, err = svc.ApproveDelete(ctx, unflagged.ID)
	assertAppErrorCode(t, err, models.CodeConflict)
	_, err = svc.RejectDelete(ctx, unflagged.ID)
	assertAppErrorCode(t, err, models.CodeConflict)

	kept, err := svc.RejectDelete(ctx, keep.ID)
	require.NoError(t, err)
	assert.False(t, kept.DeleteRequest)
	assert.Equal(t, models.RecipeStatusApproved, kept.Status)

	_, err = svc.ApproveDelete(ctx, drop.ID)
	require.NoError(t, err)
	assert.Zero(t, countRows(t, db, &models.Recipe{}, "id = ?", drop.ID))
	assert.Zero(t, countRows(t, db, &models.Review{}, "recipe_id = ?", drop.ID), "reviews go with the recipe")

	requests, err = svc.DeleteRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestModerationService_ManageUsers(t *testing.T) {
	t.Parallel()

	db, svc, _ := newTestModeration(t)
	ctx := context.Background()
	member := testutil.CreateUser(t, db, testutil.Approved())
	taken := testutil.CreateUser(t, db, testutil.Approved())
	admin := testutil.CreateUser(t, db, testutil.Admin())
	recipe := testutil.CreateRecipe(t, db, member, testutil.ApprovedRecipe())
	testutil.CreateReview(t, db, recipe, taken, 4, "")

	detail, err := svc.GetUser(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, member.Email, detail.User.Email)
	require.Len(t, detail.Recipes, 1)
	assert.Equal(t, recipe.ID, detail.Recipes[0].ID)

	_, err = svc.GetUser(ctx, admin.ID)
	assertAppErrorCode(t, err, models.CodeForbidden)

	members, err := svc.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 2, "administrators are not listed")

	updated, err := svc.UpdateUser(ctx, member.ID, AdminUserInput{Username: "renamed_cook", Email: "renamed@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "renamed_cook", updated.Username)

	_, err = svc.UpdateUser(ctx, member.ID, AdminUserInput{Username: taken.Username, Email: "renamed@example.com"})
	assertAppErrorCode(t, err, models.CodeConflict)
	_, err = svc.UpdateUser(ctx, member.ID, AdminUserInput{Username: "renamed_cook", Email: "bogus"})
	assertValidationError(t, err)
	_, err = svc.UpdateUser(ctx, admin.ID, AdminUserInput{Username: "root_cook", Email: "root@example.com"})
	assertAppErrorCode(t, err, models.CodeForbidden)

	_, err = svc.DeleteUser(ctx, admin.ID)
	assertAppErrorCode(t, err, models.CodeForbidden)

	_, err = svc.DeleteUser(ctx, member.ID)
	require.NoError(t, err)
	assert.Zero(t, countRows(t, db, &models.User{}, "id = ?", member.ID))
	assert.Zero(t, countRows(t, db, &models.Recipe{}, "user_id = ?", member.ID))
	assert.Zero(t, countRows(t, db, &models.Review{}, "recipe_id = ?", recipe.ID))
}

func TestModerationService_AdminRights(t *testing.T) {
	t.Parallel()

	db, svc, _ := newTestModeration(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, testutil.Admin())
	pending := testutil.CreateUser(t, db)

	_, err := svc.DemoteAdmin(ctx, admin.ID)
	assertAppErrorCode(t, err, models.CodeConflict)

	promoted, err := svc.PromoteAdmin(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin)
	assert.True(t, promoted.IsApproved)
	_, err = svc.PromoteAdmin(ctx, pending.ID)
	assertAppErrorCode(t, err, models.CodeConflict)

	admins, err := svc.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, admin.ID, admins[0].ID)

	demoted, err := svc.DemoteAdmin(ctx, admin.ID)
	require.NoError(t, err)
	assert.False(t, demoted.IsAdmin)
	_, err = svc.DemoteAdmin(ctx, admin.ID)
	assertAppErrorCode(t, err, models.CodeConflict)
	_, err = svc.DemoteAdmin(ctx, pending.ID)
	assertAppErrorCode(t, err, models.CodeConflict)

	_, err = svc.PromoteAdmin(ctx, 9999)
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func TestModerationService_DeleteRecipe(t *testing.T) {
	t.Parallel()

	db, svc, pub := newTestModeration(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, testutil.Approved())
	recipe := testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())

	_, err := svc.DeleteRecipe(ctx, recipe.ID)
	require.NoError(t, err)
	assert.Zero(t, countRows(t, db, &models.Recipe{}, "id = ?", recipe.ID))

	events := pub.userEvents(owner.ID)
	require.Len(t, events, 1)
	assert.Equal(t, notifications.EventRecipeRemoved, events[0].Type)

	_, err = svc.DeleteRecipe(ctx, recipe.ID)
	assertAppErrorCode(t, err, models.CodeNotFound)
}

// Not parallel: installs the package-level Redis client.
func TestModerationService_StatsCachedUntilDecision(t *testing.T) {
	_, rdb := testutil.NewTestRedis(t)
	cache.SetClient(rdb)
	t.Cleanup(func() { cache.SetClient(nil) })

	db, svc, _ := newTestModeration(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, testutil.Approved())
	testutil.CreateUser(t, db, testutil.Admin())
	pending := testutil.CreateRecipe(t, db, owner)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DashboardStats{ApprovedRecipes: 0, Members: 1, Admins: 1}, stats)

	// A write that bypasses the service is hidden by the cache.
	testutil.CreateRecipe(t, db, owner, testutil.ApprovedRecipe())
	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ApprovedRecipes)

	_, err = svc.ApproveRecipe(ctx, pending.ID)
	require.NoError(t, err)
	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ApprovedRecipes, "decisions invalidate the cached totals")
}
