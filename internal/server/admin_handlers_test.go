package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recipebox/internal/models"
	"recipebox/internal/service"
	"recipebox/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func adminBrowser(t *testing.T, env *testEnv) (*browser, *models.User) {
	t.Helper()
	admin := testutil.CreateUser(t, env.db, testutil.Admin())
	b := env.browser()
	b.login(admin, "/admin_dashboard")
	return b, admin
}

// storeUpload writes a stand-in for a stored photo and returns its URL.
func storeUpload(t *testing.T, env *testEnv, seed string) string {
	t.Helper()
	name := strings.Repeat(seed, 32) + ".webp"
	require.NoError(t, os.MkdirAll(env.cfg.ImageUploadDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(env.cfg.ImageUploadDir, name), []byte("webp"), 0o600))
	return service.UploadsURLPrefix + name
}

func uploadPath(env *testEnv, url string) string {
	return filepath.Join(env.cfg.ImageUploadDir, strings.TrimPrefix(url, service.UploadsURLPrefix))
}

func TestAdminPages_RequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	member := testutil.CreateUser(t, env.db, testutil.Approved())
	target := testutil.CreateUser(t, env.db)

	b := env.browser()
	b.login(member, "/user_dashboard")

	for _, path := range []string{"/admin_dashboard", "/admin_requests", fmt.Sprintf("/admin/edit_user/%d", target.ID)} {
		assertRedirect(t, b.get(path), "/login")
	}
	assertRedirect(t, b.postForm(fmt.Sprintf("/admin/approve_user/%d", target.ID), nil), "/login")
	assertRedirect(t, env.browser().get("/admin_dashboard"), "/login")

	var got models.User
	require.NoError(t, env.db.First(&got, target.ID).Error)
	assert.False(t, got.IsApproved)

	t.Run("ajax endpoint answers with json", func(t *testing.T) {
		resp := b.get(fmt.Sprintf("/admin/get_user_recipes/%d", target.ID))
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		var body map[string]string
		decodeJSON(t, resp, &body)
		assert.Equal(t, "Unauthorized", body["error"])
	})
}

func TestAdminDashboard(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved(), testutil.WithUsername("pastry_chef"))
	testutil.CreateRecipe(t, env.db, chef, testutil.ApprovedRecipe())
	b, _ := adminBrowser(t, env)

	body := b.getBody("/admin_dashboard")
	assert.Contains(t, body, "Approved recipes")
	assert.Contains(t, body, "pastry_chef")
}

func TestAdminApproveUser(t *testing.T) {
	env := newTestEnv(t)
	pending := testutil.CreateUser(t, env.db, testutil.WithUsername("waiting_cook"))
	b, _ := adminBrowser(t, env)

	assert.Contains(t, b.getBody("/admin_requests"), "waiting_cook")

	path := fmt.Sprintf("/admin/approve_user/%d", pending.ID)
	assertRedirect(t, b.postForm(path, nil), "/admin_requests")
	body := b.getBody("/admin_requests")
	assert.Contains(t, body, "User waiting_cook approved.")
	assert.Contains(t, body, "No accounts are waiting.")

	assertRedirect(t, b.postForm(path, nil), "/admin_requests")
	assert.Contains(t, b.getBody("/admin_requests"), "User is already approved")

	member := env.browser()
	member.login(pending, "/user_dashboard")
}

func TestAdminRejectUser(t *testing.T) {
	env := newTestEnv(t)
	pending := testutil.CreateUser(t, env.db)
	approved := testutil.CreateUser(t, env.db, testutil.Approved())
	b, _ := adminBrowser(t, env)

	assertRedirect(t, b.postForm(fmt.Sprintf("/admin/reject_user/%d", approved.ID), nil), "/admin_requests")
	assert.Contains(t, b.getBody("/admin_requests"), "Only pending accounts can be rejected")

	assertRedirect(t, b.postForm(fmt.Sprintf("/admin/reject_user/%d", pending.ID), nil), "/admin_requests")
	err := env.db.First(&models.User{}, pending.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAdminRecipeDecisions(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	b, _ := adminBrowser(t, env)

	t.Run("approve", func(t *testing.T) {
		recipe := testutil.CreateRecipe(t, env.db, chef, testutil.Titled("Waiting Waffles"))
		assert.Contains(t, b.getBody("/admin_requests"), "Waiting Waffles")

		assertRedirect(t, b.postForm(fmt.Sprintf("/admin/approve_recipe/%d", recipe.ID), nil), "/admin_requests")
		assert.Contains(t, b.getBody("/admin_requests"), "Recipe Waiting Waffles approved.")
		assert.Contains(t, env.browser().getBody("/view_recipes"), "Waiting Waffles")
	})

	t.Run("reject", func(t *testing.T) {
		photo := storeUpload(t, env, "a1")
		recipe := testutil.CreateRecipe(t, env.db, chef, testutil.WithImage(photo))
		assertRedirect(t, b.postForm(fmt.Sprintf("/admin/reject_recipe/%d", recipe.ID), nil), "/admin_requests")
		assert.ErrorIs(t, env.db.First(&models.Recipe{}, recipe.ID).Error, gorm.ErrRecordNotFound)
		assert.NoFileExists(t, uploadPath(env, photo))
	})

	t.Run("approve delete", func(t *testing.T) {
		recipe := testutil.CreateRecipe(t, env.db, chef, testutil.ApprovedRecipe(), testutil.DeleteRequested())
		critic := testutil.CreateUser(t, env.db, testutil.Approved())
		testutil.CreateReview(t, env.db, recipe, critic, 3, "fine")

		assertRedirect(t, b.postForm(fmt.Sprintf("/admin/approve_delete/%d", recipe.ID), nil), "/admin_requests")
		assert.ErrorIs(t, env.db.First(&models.Recipe{}, recipe.ID).Error, gorm.ErrRecordNotFound)

		var reviews int64
		require.NoError(t, env.db.Model(&models.Review{}).Where("recipe_id = ?", recipe.ID).Count(&reviews).Error)
		assert.Zero(t, reviews)
	})

	t.Run("reject delete keeps the recipe", func(t *testing.T) {
		recipe := testutil.CreateRecipe(t, env.db, chef, testutil.ApprovedRecipe(), testutil.DeleteRequested())
		assertRedirect(t, b.postForm(fmt.Sprintf("/admin/reject_delete/%d", recipe.ID), nil), "/admin_requests")

		var got models.Recipe
		require.NoError(t, env.db.First(&got, recipe.ID).Error)
		assert.False(t, got.DeleteRequest)

		assertRedirect(t, b.postForm(fmt.Sprintf("/admin/reject_delete/%d", recipe.ID), nil), "/admin_requests")
		assert.Contains(t, b.getBody("/admin_requests"), "No deletion was requested for this recipe")
	})

	t.Run("unknown recipe", func(t *testing.T) {
		assertRedirect(t, b.postForm("/admin/approve_recipe/99999", nil), "/admin_requests")
		assertRedirect(t, b.postForm("/admin/approve_recipe/abc", nil), "/admin_requests")
	})
}

func TestAdminUserRecipes(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	testutil.CreateRecipe(t, env.db, chef, testutil.Titled("Fig Jam"))
	testutil.CreateRecipe(t, env.db, chef, testutil.ApprovedRecipe(), testutil.Titled("Plum Jam"))
	b, _ := adminBrowser(t, env)

	resp := b.get(fmt.Sprintf("/admin/get_user_recipes/%d", chef.ID))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var recipes []models.RecipeSummary
	decodeJSON(t, resp, &recipes)
	require.Len(t, recipes, 2)
	assert.Equal(t, "Fig Jam", recipes[0].Title)
	assert.Equal(t, models.RecipeStatusPending, recipes[0].Status)
	assert.Equal(t, "Plum Jam", recipes[1].Title)

	resp = b.get("/admin/get_user_recipes/zero")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAdminEditUser(t *testing.T) {
	env := newTestEnv(t)
	member := testutil.CreateUser(t, env.db, testutil.Approved())
	taken := testutil.CreateUser(t, env.db, testutil.Approved())
	b, admin := adminBrowser(t, env)
	path := fmt.Sprintf("/admin/edit_user/%d", member.ID)

	assert.Contains(t, b.getBody(path), member.Email)

	assertRedirect(t, b.postForm(path, url.Values{"username": {"renamed_cook"}, "email": {"renamed@example.com"}}), "/admin_dashboard")
	assert.Contains(t, b.getBody("/admin_dashboard"), "User renamed_cook updated.")

	var got models.User
	require.NoError(t, env.db.First(&got, member.ID).Error)
	assert.Equal(t, "renamed_cook", got.Username)
	assert.Equal(t, "renamed@example.com", got.Email)

	t.Run("taken email", func(t *testing.T) {
		assertRedirect(t, b.postForm(path, url.Values{"username": {"renamed_cook"}, "email": {taken.Email}}), "/admin_dashboard")
		require.NoError(t, env.db.First(&got, member.ID).Error)
		assert.Equal(t, "renamed@example.com", got.Email)
	})

	t.Run("administrators are off limits", func(t *testing.T) {
		assertRedirect(t, b.get(fmt.Sprintf("/admin/edit_user/%d", admin.ID)), "/admin_dashboard")
		assert.Contains(t, b.getBody("/admin_dashboard"), "Administrator accounts cannot be managed here")
	})
}

func TestAdminDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	member := testutil.CreateUser(t, env.db, testutil.Approved())
	other := testutil.CreateUser(t, env.db, testutil.Approved())
	own := storeUpload(t, env, "b2")
	shared := storeUpload(t, env, "c3")
	recipe := testutil.CreateRecipe(t, env.db, member, testutil.ApprovedRecipe(), testutil.WithImage(own))
	testutil.CreateRecipe(t, env.db, member, testutil.WithImage(shared))
	testutil.CreateRecipe(t, env.db, other, testutil.ApprovedRecipe(), testutil.WithImage(shared))
	b, admin := adminBrowser(t, env)

	memberSession := env.browser()
	memberSession.login(member, "/user_dashboard")

	assertRedirect(t, b.postForm(fmt.Sprintf("/admin/delete_user/%d", member.ID), nil), "/admin_dashboard")
	assert.ErrorIs(t, env.db.First(&models.User{}, member.ID).Error, gorm.ErrRecordNotFound)
	assert.ErrorIs(t, env.db.First(&models.Recipe{}, recipe.ID).Error, gorm.ErrRecordNotFound)
	assert.NoFileExists(t, uploadPath(env, own))
	assert.FileExists(t, uploadPath(env, shared), "still shown by another member's recipe")

	assertRedirect(t, memberSession.get("/user_dashboard"), "/login")

	assertRedirect(t, b.postForm(fmt.Sprintf("/admin/delete_user/%d", admin.ID), nil), "/admin_dashboard")
	require.NoError(t, env.db.First(&models.User{}, admin.ID).Error)
}

func TestAdminDeleteRecipe(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	b, _ := adminBrowser(t, env)

	post := func(recipe *models.Recipe, referer string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/admin/delete_recipe/%d", recipe.ID), nil)
		if referer != "" {
			req.Header.Set(fiber.HeaderReferer, referer)
		}
		return b.do(req)
	}

	editPage := fmt.Sprintf("/admin/edit_user/%d", chef.ID)
	recipe := testutil.CreateRecipe(t, env.db, chef)
	assertRedirect(t, post(recipe, "http://example.com"+editPage), editPage)
	assert.ErrorIs(t, env.db.First(&models.Recipe{}, recipe.ID).Error, gorm.ErrRecordNotFound)

	recipe = testutil.CreateRecipe(t, env.db, chef)
	assertRedirect(t, post(recipe, "http://example.com"+recipePath(recipe)), "/admin_dashboard")

	recipe = testutil.CreateRecipe(t, env.db, chef)
	assertRedirect(t, post(recipe, "https://evil.example.org/phish"), "/admin_dashboard")
}

func TestRecipeModerationFlow(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	cook := env.browser()
	cook.login(chef, "/user_dashboard")
	visitor := env.browser()

	listedViaAPI := func() []models.Recipe {
		t.Helper()
		resp := env.apiRequest(http.MethodGet, "/api/recipes", "", "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var body struct {
			Recipes []models.Recipe `json:"recipes"`
		}
		decodeJSON(t, resp, &body)
		return body.Recipes
	}

	assertRedirect(t, cook.postForm("/add_recipe", recipeFields("Midnight Ramen")), "/user_dashboard")
	recipe := latestRecipe(t, env, "Midnight Ramen")
	assert.Equal(t, models.RecipeStatusPending, recipe.Status)
	assert.NotContains(t, visitor.getBody("/view_recipes"), "Midnight Ramen")
	assert.Empty(t, listedViaAPI())

	admin, _ := adminBrowser(t, env)
	assertRedirect(t, admin.postForm(fmt.Sprintf("/admin/approve_recipe/%d", recipe.ID), nil), "/admin_requests")

	assert.Equal(t, models.RecipeStatusApproved, latestRecipe(t, env, "Midnight Ramen").Status)
	body := visitor.getBody("/view_recipes")
	assert.Contains(t, body, "Midnight Ramen")
	assert.Contains(t, body, "by "+chef.Username)

	listed := listedViaAPI()
	require.Len(t, listed, 1)
	assert.Equal(t, recipe.ID, listed[0].ID)
	assert.Equal(t, chef.ID, listed[0].UserID)
	assert.Equal(t, chef.Username, listed[0].CreatorUsername)
}
