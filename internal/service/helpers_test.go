package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"recipebox/internal/models"
	"recipebox/internal/notifications"
	"recipebox/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userRepoStub struct {
	getByIDFn       func(context.Context, uint) (*models.User, error)
	getByEmailFn    func(context.Context, string) (*models.User, error)
	getByUsernameFn func(context.Context, string) (*models.User, error)
	createFn        func(context.Context, *models.User) error
	transitionFn    func(context.Context, uint, func(*models.User) (repository.Action, error)) (*models.User, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Transition(ctx context.Context, id uint, decide func(*models.User) (repository.Action, error)) (*models.User, error) {
	return s.transitionFn(ctx, id, decide)
}
func (s *userRepoStub) ListMembers(context.Context) ([]models.MemberSummary, error) {
	return nil, nil
}
func (s *userRepoStub) ListPending(context.Context) ([]models.User, error) { return nil, nil }
func (s *userRepoStub) ListAdmins(context.Context) ([]models.User, error)  { return nil, nil }
func (s *userRepoStub) CountApprovedMembers(context.Context) (int64, error) {
	return 0, nil
}
func (s *userRepoStub) CountAdmins(context.Context) (int64, error) { return 0, nil }

// noopUserRepo finds nobody and accepts every write.
func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) {
			return nil, models.NewNotFoundError("User", id)
		},
		getByEmailFn:    func(context.Context, string) (*models.User, error) { return nil, nil },
		getByUsernameFn: func(context.Context, string) (*models.User, error) { return nil, nil },
		createFn:        func(context.Context, *models.User) error { return nil },
		transitionFn: func(_ context.Context, id uint, _ func(*models.User) (repository.Action, error)) (*models.User, error) {
			return nil, models.NewNotFoundError("User", id)
		},
	}
}

// applyTransition runs decide against u the way the repository would and
// records the resulting action.
func applyTransition(u *models.User, action *repository.Action) func(context.Context, uint, func(*models.User) (repository.Action, error)) (*models.User, error) {
	return func(_ context.Context, _ uint, decide func(*models.User) (repository.Action, error)) (*models.User, error) {
		a, err := decide(u)
		if err != nil {
			return nil, err
		}
		*action = a
		return u, nil
	}
}

type sentEvent struct {
	userID uint
	admins bool
	event  notifications.Event
}

// publisherStub records published events and then returns err.
type publisherStub struct {
	mu     sync.Mutex
	events []sentEvent
	err    error
}

func (p *publisherStub) PublishUser(_ context.Context, userID uint, event notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sentEvent{userID: userID, event: event})
	return p.err
}

func (p *publisherStub) PublishAdmins(_ context.Context, event notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sentEvent{admins: true, event: event})
	return p.err
}

func (p *publisherStub) userEvents(userID uint) []notifications.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notifications.Event
	for _, e := range p.events {
		if !e.admins && e.userID == userID {
			out = append(out, e.event)
		}
	}
	return out
}

func (p *publisherStub) adminEvents() []notifications.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notifications.Event
	for _, e := range p.events {
		if e.admins {
			out = append(out, e.event)
		}
	}
	return out
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppErrorCode(t, err, models.CodeValidation)
}
