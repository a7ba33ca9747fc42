package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"recipebox/internal/models"

	"github.com/spf13/cobra"
)

func newRecipesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "Review submitted recipes and delete requests",
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List recipes waiting for approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recipes, err := a.mod.PendingRecipes(cmd.Context())
			if err != nil {
				return err
			}
			return printRecipes(cmd.OutOrStdout(), recipes, "No recipes are waiting.")
		},
	}

	deletions := &cobra.Command{
		Use:   "deletions",
		Short: "List recipes whose owners asked for deletion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recipes, err := a.mod.DeleteRequests(cmd.Context())
			if err != nil {
				return err
			}
			return printRecipes(cmd.OutOrStdout(), recipes, "No deletion requests.")
		},
	}

	approve := idCommand("approve", "Publish a pending recipe", func(cmd *cobra.Command, id uint) error {
		recipe, err := a.mod.ApproveRecipe(cmd.Context(), id)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Approved %q (ID: %d)", recipe.Title, recipe.ID)
		return nil
	})

	reject := idCommand("reject", "Reject and remove a pending recipe", func(cmd *cobra.Command, id uint) error {
		recipe, err := a.mod.RejectRecipe(cmd.Context(), id)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Rejected %q (ID: %d)", recipe.Title, recipe.ID)
		return nil
	})

	approveDelete := idCommand("approve-delete", "Delete a recipe as its owner requested", func(cmd *cobra.Command, id uint) error {
		recipe, err := a.mod.ApproveDelete(cmd.Context(), id)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Deleted %q (ID: %d)", recipe.Title, recipe.ID)
		return nil
	})

	rejectDelete := idCommand("reject-delete", "Keep a recipe and clear its delete request", func(cmd *cobra.Command, id uint) error {
		recipe, err := a.mod.RejectDelete(cmd.Context(), id)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Kept %q (ID: %d)", recipe.Title, recipe.ID)
		return nil
	})

	cmd.AddCommand(pending, deletions, approve, reject, approveDelete, rejectDelete)
	return cmd
}

func printRecipes(out io.Writer, recipes []models.Recipe, none string) error {
	if len(recipes) == 0 {
		empty(out, none)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tBY\tSUBMITTED")
	for _, r := range recipes {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Title, r.Category, r.CreatorUsername, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
