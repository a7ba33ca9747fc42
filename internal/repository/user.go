package repository

import (
	"context"
	"errors"
	"time"

	"recipebox/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// Transition locks the account, lets decide mutate it and persists the
	// returned Action in one transaction.
	Transition(ctx context.Context, id uint, decide func(u *models.User) (Action, error)) (*models.User, error)
	ListMembers(ctx context.Context) ([]models.MemberSummary, error)
	ListPending(ctx context.Context) ([]models.User, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
	CountApprovedMembers(ctx context.Context) (int64, error)
	CountAdmins(ctx context.Context) (int64, error)
}

var errAccountTaken = models.NewConflictError("An account with that email or username already exists")

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := findOne[models.User](reader(ctx, r.db).Where("id = ?", id))
	if err == nil && user == nil {
		return nil, models.NewNotFoundError("User", id)
	}
	return user, err
}

// GetByEmail matches the stored address exactly. A miss is (nil, nil).
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return findOne[models.User](reader(ctx, r.db).Where("email = ?", email))
}

// GetByUsername is GetByEmail for usernames.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return findOne[models.User](reader(ctx, r.db).Where("username = ?", username))
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	switch {
	case isUniqueConstraintError(err):
		return errAccountTaken
	case err != nil:
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) Transition(ctx context.Context, id uint, decide func(u *models.User) (Action, error)) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := forUpdate(tx).First(&user, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("User", id)
		} else if err != nil {
			return models.NewInternalError(err)
		}

		action, err := decide(&user)
		if err != nil {
			return err
		}
		switch action {
		case Save:
			return saveUser(tx, &user)
		case Remove:
			if err := deleteUserCascade(tx, &user); err != nil {
				return models.NewInternalError(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// saveUser writes every mutable column, including false booleans that
// Updates with a struct would skip.
func saveUser(tx *gorm.DB, u *models.User) error {
	u.UpdatedAt = time.Now()
	err := tx.Model(&models.User{}).Where("id = ?", u.ID).Updates(map[string]any{
		"username":    u.Username,
		"email":       u.Email,
		"password":    u.Password,
		"is_admin":    u.IsAdmin,
		"is_approved": u.IsApproved,
		"updated_at":  u.UpdatedAt,
	}).Error
	switch {
	case isUniqueConstraintError(err):
		return errAccountTaken
	case err != nil:
		return models.NewInternalError(err)
	}
	return nil
}

// deleteUserCascade removes the account, its recipes, reviews on those
// recipes and reviews it wrote. The image URLs of the removed recipes are
// left in u.RemovedImages.
func deleteUserCascade(tx *gorm.DB, u *models.User) error {
	userID := u.ID
	err := tx.Model(&models.Recipe{}).
		Where("user_id = ? AND image_url <> ''", userID).
		Distinct().Pluck("image_url", &u.RemovedImages).Error
	if err != nil {
		return err
	}

	owned := tx.Model(&models.Recipe{}).Select("id").Where("user_id = ?", userID)
	if err := tx.Where("recipe_id IN (?) OR user_id = ?", owned, userID).Delete(&models.Review{}).Error; err != nil {
		return err
	}
	if err := tx.Where("user_id = ?", userID).Delete(&models.Recipe{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.User{}, userID).Error
}

// ListMembers returns non-admin accounts with their recipe counts.
func (r *userRepository) ListMembers(ctx context.Context) ([]models.MemberSummary, error) {
	var members []models.MemberSummary
	err := reader(ctx, r.db).
		Table("users").
		Select("users.id, users.username, users.email, users.is_approved, COUNT(recipes.id) AS recipe_count").
		Joins("LEFT JOIN recipes ON recipes.user_id = users.id").
		Where("users.is_admin = ?", false).
		Group("users.id, users.username, users.email, users.is_approved").
		Order("users.id").
		Scan(&members).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return members, nil
}

// ListPending returns signups awaiting approval, oldest first.
func (r *userRepository) ListPending(ctx context.Context) ([]models.User, error) {
	return findAll[models.User](reader(ctx, r.db).
		Where("is_approved = ? AND is_admin = ?", false, false).
		Order("created_at, id"))
}

func (r *userRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	return findAll[models.User](reader(ctx, r.db).Where("is_admin = ?", true).Order("id"))
}

func (r *userRepository) CountApprovedMembers(ctx context.Context) (int64, error) {
	return count(reader(ctx, r.db).Model(&models.User{}).Where("is_approved = ? AND is_admin = ?", true, false))
}

func (r *userRepository) CountAdmins(ctx context.Context) (int64, error) {
	return count(reader(ctx, r.db).Model(&models.User{}).Where("is_admin = ?", true))
}
