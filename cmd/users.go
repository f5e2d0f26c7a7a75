package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage reviewers",
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a reviewer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		email, _ := cmd.Flags().GetString("email")
		role, _ := cmd.Flags().GetString("role")
		email = strings.TrimSpace(email)
		if email == "" {
			return eris.New("users add: --email is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		u, err := st.CreateUser(ctx, email, role)
		if err != nil {
			return eris.Wrap(err, "users add")
		}
		return printJSON(cmd.OutOrStdout(), u)
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reviewers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		users, err := st.ListUsers(ctx)
		if err != nil {
			return eris.Wrap(err, "users list")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tEMAIL\tROLE\tCREATED")
		for _, u := range users {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Email, u.Role, u.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	usersAddCmd.Flags().String("email", "", "reviewer email")
	usersAddCmd.Flags().String("role", "admin", "reviewer role")

	usersCmd.AddCommand(usersAddCmd, usersListCmd)
	rootCmd.AddCommand(usersCmd)
}
