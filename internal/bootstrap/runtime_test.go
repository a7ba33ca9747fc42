package bootstrap

import (
	"context"
	"testing"

	"recipebox/internal/models"
	"recipebox/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestEnsureDefaultAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the configured admin once", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		cfg := testutil.TestConfig()

		require.NoError(t, EnsureDefaultAdmin(ctx, cfg, db))
		require.NoError(t, EnsureDefaultAdmin(ctx, cfg, db))

		var admins []models.User
		require.NoError(t, db.Where("is_admin = ?", true).Find(&admins).Error)
		require.Len(t, admins, 1)
		assert.Equal(t, cfg.AdminUsername, admins[0].Username)
		assert.Equal(t, cfg.AdminEmail, admins[0].Email)
		assert.True(t, admins[0].IsApproved)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admins[0].Password), []byte(cfg.AdminPassword)))
	})

	t.Run("promotes an account that owns the seed email", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		cfg := testutil.TestConfig()
		existing := testutil.CreateUser(t, db, testutil.WithEmail(cfg.AdminEmail))

		require.NoError(t, EnsureDefaultAdmin(ctx, cfg, db))

		var got models.User
		require.NoError(t, db.First(&got, existing.ID).Error)
		assert.True(t, got.IsAdmin)
		assert.True(t, got.IsApproved)

		var count int64
		require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})

	t.Run("leaves an existing admin alone", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		cfg := testutil.TestConfig()
		testutil.CreateUser(t, db, testutil.Admin(), testutil.WithUsername("chief"))

		require.NoError(t, EnsureDefaultAdmin(ctx, cfg, db))

		var count int64
		require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})

	t.Run("requires an email", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		cfg := testutil.TestConfig()
		cfg.AdminEmail = ""

		assert.Error(t, EnsureDefaultAdmin(ctx, cfg, db))
	})
}
