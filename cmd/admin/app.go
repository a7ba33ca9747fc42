package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"recipebox/internal/bootstrap"
	"recipebox/internal/config"
	"recipebox/internal/models"
	"recipebox/internal/notifications"
	"recipebox/internal/repository"
	"recipebox/internal/service"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// moderator is the slice of the moderation service the CLI drives.
type moderator interface {
	ListMembers(ctx context.Context) ([]models.MemberSummary, error)
	PendingUsers(ctx context.Context) ([]models.User, error)
	ApproveUser(ctx context.Context, userID uint) (*models.User, error)
	RejectUser(ctx context.Context, userID uint) (*models.User, error)

	ListAdmins(ctx context.Context) ([]models.User, error)
	PromoteAdmin(ctx context.Context, userID uint) (*models.User, error)
	DemoteAdmin(ctx context.Context, userID uint) (*models.User, error)

	PendingRecipes(ctx context.Context) ([]models.Recipe, error)
	DeleteRequests(ctx context.Context) ([]models.Recipe, error)
	ApproveRecipe(ctx context.Context, recipeID uint) (*models.Recipe, error)
	RejectRecipe(ctx context.Context, recipeID uint) (*models.Recipe, error)
	ApproveDelete(ctx context.Context, recipeID uint) (*models.Recipe, error)
	RejectDelete(ctx context.Context, recipeID uint) (*models.Recipe, error)
}

// app carries what every subcommand needs. connect runs once before any
// subcommand and fills mod.
type app struct {
	mod     moderator
	connect func(ctx context.Context) (moderator, error)
}

func newApp() *app {
	return &app{connect: connectRuntime}
}

// connectRuntime opens the same database and Redis the server uses, so
// decisions made here reach connected browsers and clear the cached
// dashboard totals.
func connectRuntime(ctx context.Context) (moderator, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, rdb, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return service.NewModerationService(
		repository.NewUserRepository(db),
		repository.NewRecipeRepository(db),
		notifications.NewNotifier(rdb),
	), nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "admin",
		Short: "RecipeBox moderation tools",
		Long: `Moderate RecipeBox from the terminal.

Subcommands:
  users     - Review and approve account signups
  admins    - Grant or revoke administrator rights
  recipes   - Review submitted recipes and delete requests
  moderate  - Work through every queue interactively`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.mod != nil {
				return nil
			}
			mod, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			a.mod = mod
			return nil
		},
	}
	root.AddCommand(newUsersCmd(a), newAdminsCmd(a), newRecipesCmd(a), newModerateCmd(a))
	return root
}

// parseID reads a positive numeric id argument.
func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return uint(id), nil
}

// idCommand builds a subcommand that takes one id and performs act on it.
func idCommand(use, short string, act func(cmd *cobra.Command, id uint) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return act(cmd, id)
		},
	}
}

var (
	successMark = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true).Render("✓ ")
	emptyStyle  = lipgloss.NewStyle().Foreground(colorMuted)
)

func success(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprint(w, successMark)
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

func empty(w io.Writer, msg string) {
	_, _ = fmt.Fprintln(w, emptyStyle.Render(msg))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
