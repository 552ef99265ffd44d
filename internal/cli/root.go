// Package cli implements the membership admin command line. Every command
// runs exactly one provider operation.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/membership/internal/server/models"
	"github.com/dmitrijs2005/membership/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// Users is the subset of services.UserService driven by the CLI.
type Users interface {
	CreateUser(ctx context.Context, in services.CreateUserInput) (*models.User, services.CreateStatus, error)
	ValidateUser(ctx context.Context, userName, password string) (bool, error)
	ChangePassword(ctx context.Context, userName, oldPassword, newPassword string) (bool, error)
	ResetPassword(ctx context.Context, userName, answer string) (string, error)
	UnlockUser(ctx context.Context, userName string) (bool, error)
	DeleteUser(ctx context.Context, userName string, deleteAllRelatedData bool) (bool, error)
	GetUser(ctx context.Context, userName string, online bool) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]*models.User, error)
	FindUsersByName(ctx context.Context, pattern string) ([]*models.User, error)
	FindUsersByEmail(ctx context.Context, pattern string) ([]*models.User, error)
}

// Roles is the subset of services.RoleService driven by the CLI.
type Roles interface {
	CreateRole(ctx context.Context, roleName string) error
	DeleteRole(ctx context.Context, roleName string, failIfPopulated bool) (bool, error)
	RoleExists(ctx context.Context, roleName string) (bool, error)
	GetAllRoles(ctx context.Context) ([]string, error)
	AddUsersToRoles(ctx context.Context, userNames, roleNames []string) error
	RemoveUsersFromRoles(ctx context.Context, userNames, roleNames []string) error
	FindUsersInRole(ctx context.Context, roleName, userNameToMatch string) ([]string, error)
	GetRolesForUser(ctx context.Context, userName string) ([]string, error)
}

// Deps are the collaborators of the command tree.
type Deps struct {
	Migrate func(context.Context) error
	Users   Users
	Roles   Roles
	Metrics prometheus.Gatherer
}

// NewRootCommand builds the membership command tree. Unless a command is
// "migrate" itself, the schema is brought up to date before it runs.
func NewRootCommand(d Deps) *cobra.Command {
	var printMetrics bool

	root := &cobra.Command{
		Use:          "membership",
		Short:        "Administer membership users and roles",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "migrate" || d.Migrate == nil {
				return nil
			}
			return d.Migrate(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if !printMetrics || d.Metrics == nil {
				return nil
			}
			return writeMetrics(cmd.ErrOrStderr(), d.Metrics)
		},
	}
	root.PersistentFlags().BoolVar(&printMetrics, "print-metrics", false, "Write collected metrics to stderr after the command")

	root.AddCommand(newMigrateCommand(d))
	root.AddCommand(newUserCommand(d.Users))
	root.AddCommand(newRoleCommand(d.Roles))
	return root
}

func newMigrateCommand(d Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if d.Migrate == nil {
				return nil
			}
			if err := d.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
