package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Review and approve account signups",
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List accounts waiting for approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := a.mod.PendingUsers(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(users) == 0 {
				empty(out, "No accounts are waiting.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tSIGNED UP")
			for _, u := range users {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every member with their recipe count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			members, err := a.mod.ListMembers(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(members) == 0 {
				empty(out, "No members yet.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tAPPROVED\tRECIPES")
			for _, m := range members {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", m.ID, m.Username, m.Email, yesNo(m.IsApproved), m.RecipeCount)
			}
			return w.Flush()
		},
	}

	approve := idCommand("approve", "Approve a pending account", func(cmd *cobra.Command, id uint) error {
		user, err := a.mod.ApproveUser(cmd.Context(), id)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Approved %s (ID: %d)", user.Username, user.ID)
		return nil
	})

	reject := idCommand("reject", "Reject and remove a pending account", func(cmd *cobra.Command, id uint) error {
		user, err := a.mod.RejectUser(cmd.Context(), id)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Rejected %s (ID: %d)", user.Username, user.ID)
		return nil
	})

	cmd.AddCommand(pending, list, approve, reject)
	return cmd
}

func newAdminsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admins",
		Short: "Grant or revoke administrator rights",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all administrators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admins, err := a.mod.ListAdmins(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(admins) == 0 {
				empty(out, "No admins found in the system")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL")
			for _, u := range admins {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.Username, u.Email)
			}
			return w.Flush()
		},
	}

	promote := idCommand("promote", "Promote an account to administrator", func(cmd *cobra.Command, id uint) error {
		user, err := a.mod.PromoteAdmin(cmd.Context(), id)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Promoted %s (ID: %d) to admin", user.Username, user.ID)
		return nil
	})

	demote := idCommand("demote", "Revoke administrator rights", func(cmd *cobra.Command, id uint) error {
		user, err := a.mod.DemoteAdmin(cmd.Context(), id)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Demoted %s (ID: %d) from admin", user.Username, user.ID)
		return nil
	})

	cmd.AddCommand(list, promote, demote)
	return cmd
}
