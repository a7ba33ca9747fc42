package server

import (
	"bytes"
	"fmt"
	"mime/multipart"
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
)

func recipeFields(title string) url.Values {
	return url.Values{
		"title":        {title},
		"ingredients":  {"2 eggs\n1 cup flour"},
		"instructions": {"Whisk.\nBake for 20 minutes."},
		"category":     {"Dessert"},
		"image_url":    {"https://example.com/cake.jpg"},
		"video_url":    {"https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
	}
}

func recipePath(recipe *models.Recipe) string {
	return fmt.Sprintf("/recipe/%d", recipe.ID)
}

// postMultipart submits fields and an optional image like the recipe form.
func (b *browser) postMultipart(path string, fields url.Values, image []byte) *http.Response {
	b.env.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, values := range fields {
		for _, v := range values {
			require.NoError(b.env.t, w.WriteField(name, v))
		}
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "photo.png")
		require.NoError(b.env.t, err)
		_, err = part.Write(image)
		require.NoError(b.env.t, err)
	}
	require.NoError(b.env.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return b.do(req)
}

func latestRecipe(t *testing.T, env *testEnv, title string) *models.Recipe {
	t.Helper()
	var recipe models.Recipe
	require.NoError(t, env.db.Where("title = ?", title).Order("id DESC").First(&recipe).Error)
	return &recipe
}

func TestAddRecipe(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	b := env.browser()

	assertRedirect(t, b.get("/add_recipe"), "/login")
	b.login(chef, "/user_dashboard")

	resp := b.postForm("/add_recipe", recipeFields("Sponge Cake"))
	assertRedirect(t, resp, "/user_dashboard")

	body := b.getBody("/user_dashboard")
	assert.Contains(t, body, "Recipe submitted!")
	assert.Contains(t, body, "Sponge Cake")
	assert.Contains(t, body, "Pending")

	recipe := latestRecipe(t, env, "Sponge Cake")
	assert.Equal(t, chef.ID, recipe.UserID)
	assert.Equal(t, models.RecipeStatusPending, recipe.Status)
	assert.Equal(t, "https://example.com/cake.jpg", recipe.ImageURL)
}

func TestAddRecipe_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	b := env.browser()
	b.login(chef, "/user_dashboard")

	fields := recipeFields("Half a Recipe")
	fields.Del("instructions")
	resp := b.postForm("/add_recipe", fields)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Instructions is required")
	assert.Contains(t, body, "Half a Recipe", "form keeps the submitted values")

	var count int64
	require.NoError(t, env.db.Model(&models.Recipe{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAddRecipe_Upload(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	b := env.browser()
	b.login(chef, "/user_dashboard")

	fields := recipeFields("Photo Pie")
	fields.Del("image_url")
	resp := b.postMultipart("/add_recipe", fields, testutil.TinyPNG(t, 40, 30))
	assertRedirect(t, resp, "/user_dashboard")

	recipe := latestRecipe(t, env, "Photo Pie")
	require.True(t, strings.HasPrefix(recipe.ImageURL, service.UploadsURLPrefix), recipe.ImageURL)
	assert.True(t, strings.HasSuffix(recipe.ImageURL, ".webp"))

	_, err := os.Stat(filepath.Join(env.cfg.ImageUploadDir, strings.TrimPrefix(recipe.ImageURL, service.UploadsURLPrefix)))
	require.NoError(t, err)

	resp = b.get(recipe.ImageURL)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	t.Run("broken image is rejected", func(t *testing.T) {
		resp := b.postMultipart("/add_recipe", recipeFields("Broken"), []byte("not an image at all"))
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "Invalid image type")
	})
}

func TestShowRecipe_Visibility(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	other := testutil.CreateUser(t, env.db, testutil.Approved())
	admin := testutil.CreateUser(t, env.db, testutil.Admin())
	pending := testutil.CreateRecipe(t, env.db, chef, testutil.Titled("Draft Dumplings"))
	approved := testutil.CreateRecipe(t, env.db, chef, testutil.ApprovedRecipe(), testutil.Titled("Public Pasta"))

	t.Run("anyone sees an approved recipe", func(t *testing.T) {
		body := env.browser().getBody(recipePath(approved))
		assert.Contains(t, body, "Public Pasta")
		assert.Contains(t, body, "Log in</a> to leave a review")
		assert.NotContains(t, body, "/edit_recipe/")
	})

	t.Run("pending recipe is hidden from others", func(t *testing.T) {
		anon := env.browser()
		assertRedirect(t, anon.get(recipePath(pending)), "/view_recipes")
		assert.Contains(t, anon.getBody("/view_recipes"), msgRecipeMissing)

		b := env.browser()
		b.login(other, "/user_dashboard")
		assertRedirect(t, b.get(recipePath(pending)), "/view_recipes")
	})

	t.Run("owner sees their pending recipe", func(t *testing.T) {
		b := env.browser()
		b.login(chef, "/user_dashboard")
		body := b.getBody(recipePath(pending))
		assert.Contains(t, body, "Draft Dumplings")
		assert.Contains(t, body, "waiting for approval")
		assert.Contains(t, body, fmt.Sprintf("/edit_recipe/%d", pending.ID))
		assert.NotContains(t, body, "add_review", "pending recipes take no reviews")
	})

	t.Run("admin sees a pending recipe", func(t *testing.T) {
		b := env.browser()
		b.login(admin, "/admin_dashboard")
		assert.Contains(t, b.getBody(recipePath(pending)), "Draft Dumplings")
	})

	t.Run("unknown id", func(t *testing.T) {
		assertRedirect(t, env.browser().get("/recipe/99999"), "/view_recipes")
		assertRedirect(t, env.browser().get("/recipe/abc"), "/view_recipes")
	})
}

func TestViewRecipes_Paging(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	for i := range recipesPerPage + 2 {
		testutil.CreateRecipe(t, env.db, chef, testutil.ApprovedRecipe(), testutil.Titled(fmt.Sprintf("Soup No. %02d", i)))
	}
	testutil.CreateRecipe(t, env.db, chef, testutil.Titled("Unreleased Soup"))
	b := env.browser()

	first := b.getBody("/view_recipes")
	assert.Contains(t, first, "Soup No. 13", "newest first")
	assert.NotContains(t, first, "Soup No. 00")
	assert.NotContains(t, first, "Unreleased Soup")
	assert.Contains(t, first, "page=2")

	second := b.getBody("/view_recipes?page=2")
	assert.Contains(t, second, "Soup No. 00")
	assert.Contains(t, second, "Soup No. 01")
	assert.NotContains(t, second, "Soup No. 13")

	assert.Contains(t, b.getBody("/view_recipes?page=-4"), "Soup No. 13")
}

func TestAddReview(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	critic := testutil.CreateUser(t, env.db, testutil.Approved())
	recipe := testutil.CreateRecipe(t, env.db, chef, testutil.ApprovedRecipe())
	pending := testutil.CreateRecipe(t, env.db, chef)

	b := env.browser()
	assertRedirect(t, b.postForm(recipePath(recipe)+"/add_review", url.Values{"rating": {"5"}}), "/login")
	b.login(critic, "/user_dashboard")

	resp := b.postForm(recipePath(recipe)+"/add_review", url.Values{"rating": {"4"}, "comment": {"Lovely crust"}})
	assertRedirect(t, resp, recipePath(recipe))
	resp = b.postForm(recipePath(recipe)+"/add_review", url.Values{"rating": {"5"}})
	assertRedirect(t, resp, recipePath(recipe))

	body := b.getBody(recipePath(recipe))
	assert.Contains(t, body, "Thanks for your review!")
	assert.Contains(t, body, "Lovely crust")
	assert.Contains(t, body, critic.Username)
	assert.Contains(t, body, "4.5")

	t.Run("ajax summary", func(t *testing.T) {
		resp := env.browser().get(recipePath(recipe) + "/reviews")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var payload struct {
			Summary models.RatingSummary `json:"summary"`
			Reviews []models.Review      `json:"reviews"`
		}
		decodeJSON(t, resp, &payload)
		assert.InDelta(t, 4.5, payload.Summary.Average, 0.001)
		assert.EqualValues(t, 2, payload.Summary.Count)
		assert.Len(t, payload.Reviews, 2)

		resp = env.browser().get(recipePath(pending) + "/reviews")
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("rating out of range", func(t *testing.T) {
		for _, rating := range []string{"0", "6", "five"} {
			resp := b.postForm(recipePath(recipe)+"/add_review", url.Values{"rating": {rating}})
			assertRedirect(t, resp, recipePath(recipe))
			assert.Contains(t, b.getBody(recipePath(recipe)), "Rating must be between 1 and 5")
		}
	})

	t.Run("pending recipe", func(t *testing.T) {
		resp := b.postForm(recipePath(pending)+"/add_review", url.Values{"rating": {"3"}})
		assertRedirect(t, resp, "/view_recipes")
	})

	var count int64
	require.NoError(t, env.db.Model(&models.Review{}).Where("recipe_id = ?", recipe.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestEditRecipe(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	other := testutil.CreateUser(t, env.db, testutil.Approved())
	recipe := testutil.CreateRecipe(t, env.db, chef, testutil.ApprovedRecipe(), testutil.Titled("Plain Bread"))
	editPath := fmt.Sprintf("/edit_recipe/%d", recipe.ID)

	t.Run("other members are sent away", func(t *testing.T) {
		b := env.browser()
		b.login(other, "/user_dashboard")
		assertRedirect(t, b.get(editPath), "/user_dashboard")
		assertRedirect(t, b.postForm(editPath, recipeFields("Hijacked")), "/user_dashboard")
	})

	b := env.browser()
	b.login(chef, "/user_dashboard")
	assert.Contains(t, b.getBody(editPath), "Plain Bread")

	t.Run("keeps the image when none is given", func(t *testing.T) {
		fields := recipeFields("Seeded Bread")
		fields.Del("image_url")
		assertRedirect(t, b.postForm(editPath, fields), recipePath(recipe))

		got := latestRecipe(t, env, "Seeded Bread")
		assert.Equal(t, recipe.ID, got.ID)
		assert.Equal(t, "https://example.com/bread.jpg", got.ImageURL)
		assert.Equal(t, models.RecipeStatusApproved, got.Status)
		assert.Contains(t, b.getBody(recipePath(recipe)), "Recipe updated.")
	})

	t.Run("invalid edit re-renders the form", func(t *testing.T) {
		fields := recipeFields("")
		resp := b.postForm(editPath, fields)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "Title is required")
	})

	t.Run("replaced upload is removed", func(t *testing.T) {
		fields := recipeFields("Seeded Bread")
		fields.Del("image_url")
		assertRedirect(t, b.postMultipart(editPath, fields, testutil.TinyPNG(t, 20, 20)), recipePath(recipe))
		first := latestRecipe(t, env, "Seeded Bread").ImageURL
		require.True(t, strings.HasPrefix(first, service.UploadsURLPrefix))

		assertRedirect(t, b.postMultipart(editPath, fields, testutil.TinyPNG(t, 30, 20)), recipePath(recipe))
		second := latestRecipe(t, env, "Seeded Bread").ImageURL
		require.NotEqual(t, first, second)

		_, err := os.Stat(filepath.Join(env.cfg.ImageUploadDir, strings.TrimPrefix(first, service.UploadsURLPrefix)))
		assert.True(t, os.IsNotExist(err), "old upload should be gone")
		_, err = os.Stat(filepath.Join(env.cfg.ImageUploadDir, strings.TrimPrefix(second, service.UploadsURLPrefix)))
		assert.NoError(t, err)
	})
}

func TestDeleteRecipeRequest(t *testing.T) {
	env := newTestEnv(t)
	chef := testutil.CreateUser(t, env.db, testutil.Approved())
	other := testutil.CreateUser(t, env.db, testutil.Approved())
	recipe := testutil.CreateRecipe(t, env.db, chef, testutil.ApprovedRecipe())
	deletePath := fmt.Sprintf("/delete_recipe/%d", recipe.ID)

	intruder := env.browser()
	intruder.login(other, "/user_dashboard")
	assertRedirect(t, intruder.postForm(deletePath, nil), "/user_dashboard")

	var got models.Recipe
	require.NoError(t, env.db.First(&got, recipe.ID).Error)
	assert.False(t, got.DeleteRequest)

	b := env.browser()
	b.login(chef, "/user_dashboard")
	assertRedirect(t, b.postForm(deletePath, nil), "/user_dashboard")

	body := b.getBody("/user_dashboard")
	assert.Contains(t, body, "Deletion requested.")
	assert.Contains(t, body, "Deletion requested</span>")

	require.NoError(t, env.db.First(&got, recipe.ID).Error)
	assert.True(t, got.DeleteRequest)
	assert.Equal(t, models.RecipeStatusApproved, got.Status, "the recipe stays listed until an admin decides")
}
