package service

import (
	"context"
	"errors"
	"strings"

	"recipebox/internal/models"
	"recipebox/internal/observability"
	"recipebox/internal/repository"
	"recipebox/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// Login failure messages shown to users.
const (
	msgInvalidCredentials = "Invalid email or password"
	msgPendingApproval    = "Your account is awaiting admin approval."
	msgEmailTaken         = "Email already exists! Try logging in."
)

// ErrEmailTaken is wrapped by the CONFLICT returned when an email address
// already belongs to another account.
var ErrEmailTaken = errors.New("email already registered")

// AccountService handles signup, login and profile changes.
type AccountService struct {
	users      repository.UserRepository
	bcryptCost int
}

// RegisterInput is a signup form.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// ProfileInput is a self-service profile change.
type ProfileInput struct {
	UserID   uint
	Username string
}

// NewAccountService returns an AccountService.
func NewAccountService(users repository.UserRepository) *AccountService {
	return &AccountService{users: users, bcryptCost: bcrypt.DefaultCost}
}

// StageRegistration validates a signup and hashes its password without
// writing anything. The returned account is unapproved and unsaved.
func (s *AccountService) StageRegistration(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := s.ensureAvailable(ctx, 0, username, email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	return &models.User{
		Username: username,
		Email:    email,
		Password: string(hash),
	}, nil
}

// CompleteRegistration persists a staged account. Availability is checked
// again because another signup may have claimed the address meanwhile.
func (s *AccountService) CompleteRegistration(ctx context.Context, staged *models.User) (*models.User, error) {
	if err := s.ensureAvailable(ctx, 0, staged.Username, staged.Email); err != nil {
		return nil, err
	}
	user := &models.User{
		Username: staged.Username,
		Email:    staged.Email,
		Password: staged.Password,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Register creates an unapproved account in one step.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	staged, err := s.StageRegistration(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.CompleteRegistration(ctx, staged)
}

// Authenticate checks credentials and the approval gate. Nothing about the
// account is returned unless both pass.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		observability.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, models.NewUnauthorizedError(msgInvalidCredentials)
	}
	if !user.CanLogin() {
		observability.LoginAttempts.WithLabelValues("pending").Inc()
		return nil, models.NewPendingApprovalError(msgPendingApproval)
	}
	observability.LoginAttempts.WithLabelValues("success").Inc()
	return user, nil
}

// GetUser returns an account by id.
func (s *AccountService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// StageEmailChange validates a requested address and returns it normalized.
func (s *AccountService) StageEmailChange(ctx context.Context, userID uint, newEmail string) (string, error) {
	email := strings.TrimSpace(newEmail)
	if err := validation.ValidateEmail(email); err != nil {
		return "", models.NewValidationError(err.Error())
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.Email == email {
		return "", models.NewValidationError("That is already your email address")
	}
	if err := s.ensureAvailable(ctx, userID, "", email); err != nil {
		return "", err
	}
	return email, nil
}

// CompleteEmailChange stores a verified address.
func (s *AccountService) CompleteEmailChange(ctx context.Context, userID uint, email string) (*models.User, error) {
	if err := s.ensureAvailable(ctx, userID, "", email); err != nil {
		return nil, err
	}
	return s.users.Transition(ctx, userID, func(u *models.User) (repository.Action, error) {
		u.Email = email
		return repository.Save, nil
	})
}

// UpdateProfile changes the username.
func (s *AccountService) UpdateProfile(ctx context.Context, in ProfileInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := s.ensureAvailable(ctx, in.UserID, username, ""); err != nil {
		return nil, err
	}
	return s.users.Transition(ctx, in.UserID, func(u *models.User) (repository.Action, error) {
		if u.Username == username {
			return repository.Keep, nil
		}
		u.Username = username
		return repository.Save, nil
	})
}

// ensureAvailable reports CONFLICT when username or email belongs to an
// account other than selfID. Empty values are not checked.
func (s *AccountService) ensureAvailable(ctx context.Context, selfID uint, username, email string) error {
	if email != "" {
		existing, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != selfID {
			return &models.AppError{Code: models.CodeConflict, Message: msgEmailTaken, Err: ErrEmailTaken}
		}
	}
	if username != "" {
		existing, err := s.users.GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != selfID {
			return models.NewConflictError("That username is taken")
		}
	}
	return nil
}
