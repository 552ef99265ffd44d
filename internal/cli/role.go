package cli

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

const (
	matchFlag = "match"
	forceFlag = "force"
)

func newRoleCommand(roles Roles) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles and role membership",
	}
	cmd.AddCommand(
		newRoleCreateCommand(roles),
		newRoleDeleteCommand(roles),
		newRoleExistsCommand(roles),
		newRoleListCommand(roles),
		newRoleAddCommand(roles),
		newRoleRemoveCommand(roles),
		newRoleUsersCommand(roles),
		newRoleOfCommand(roles),
	)
	return cmd
}

func newRoleCreateCommand(roles Roles) *cobra.Command {
	return &cobra.Command{
		Use:   "create <role>",
		Short: "Create a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := roles.CreateRole(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created")
			return nil
		},
	}
}

func newRoleDeleteCommand(roles Roles) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <role>",
		Short: "Delete a role; populated roles need --force",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := roles.DeleteRole(cmd.Context(), args[0], !force); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, forceFlag, false, "Delete even if the role has members")
	return cmd
}

func newRoleExistsCommand(roles Roles) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <role>",
		Short: "Print whether a role exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := roles.RoleExists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}
}

func newRoleListCommand(roles Roles) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := roles.GetAllRoles(cmd.Context())
			if err != nil {
				return err
			}
			printLines(cmd, names)
			return nil
		},
	}
}

func newRoleAddCommand(roles Roles) *cobra.Command {
	return &cobra.Command{
		Use:   "add <role> <user>...",
		Short: "Add users to a role; nothing changes if any of them is already a member",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := roles.AddUsersToRoles(cmd.Context(), args[1:], args[:1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d user(s) to %s\n", len(args)-1, args[0])
			return nil
		},
	}
}

func newRoleRemoveCommand(roles Roles) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <role> <user>...",
		Short: "Remove users from a role; nothing changes if any of them is not a member",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := roles.RemoveUsersFromRoles(cmd.Context(), args[1:], args[:1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d user(s) from %s\n", len(args)-1, args[0])
			return nil
		},
	}
}

func newRoleUsersCommand(roles Roles) *cobra.Command {
	flags := map[string]cobraflags.Flag{
		matchFlag: &cobraflags.StringFlag{
			Name:  matchFlag,
			Usage: "Only members whose name contains this text",
		},
	}
	cmd := &cobra.Command{
		Use:   "users <role>",
		Short: "List the members of a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := roles.FindUsersInRole(cmd.Context(), args[0], flags[matchFlag].GetString())
			if err != nil {
				return err
			}
			printLines(cmd, names)
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func newRoleOfCommand(roles Roles) *cobra.Command {
	return &cobra.Command{
		Use:   "of <user>",
		Short: "List the roles of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := roles.GetRolesForUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printLines(cmd, names)
			return nil
		},
	}
}

func printLines(cmd *cobra.Command, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), l)
	}
}
