package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/membership/internal/server/models"
	"github.com/dmitrijs2005/membership/internal/server/services"
	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

const (
	emailFlag     = "email"
	questionFlag  = "question"
	answerFlag    = "answer"
	commentFlag   = "comment"
	nameLikeFlag  = "name-like"
	emailLikeFlag = "email-like"
	approvedFlag  = "approved"
	allDataFlag   = "all-data"
	onlineFlag    = "online"
)

func newUserCommand(users Users) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(
		newUserCreateCommand(users),
		newUserValidateCommand(users),
		newUserChangePasswordCommand(users),
		newUserResetPasswordCommand(users),
		newUserUnlockCommand(users),
		newUserDeleteCommand(users),
		newUserGetCommand(users),
		newUserListCommand(users),
	)
	return cmd
}

func newUserCreateCommand(users Users) *cobra.Command {
	flags := map[string]cobraflags.Flag{
		emailFlag: &cobraflags.StringFlag{
			Name:  emailFlag,
			Usage: "E-mail address",
		},
		questionFlag: &cobraflags.StringFlag{
			Name:  questionFlag,
			Usage: "Password recovery question",
		},
		answerFlag: &cobraflags.StringFlag{
			Name:  answerFlag,
			Usage: "Answer to the recovery question",
		},
		commentFlag: &cobraflags.StringFlag{
			Name:  commentFlag,
			Usage: "Free-form comment",
		},
	}
	var approved bool

	cmd := &cobra.Command{
		Use:   "create <user>",
		Short: "Create a user; the password is read from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptPassword(cmd.OutOrStdout(), "Password")
			if err != nil {
				return err
			}
			u, status, err := users.CreateUser(cmd.Context(), services.CreateUserInput{
				UserName:         args[0],
				Password:         password,
				Email:            flags[emailFlag].GetString(),
				PasswordQuestion: flags[questionFlag].GetString(),
				PasswordAnswer:   flags[answerFlag].GetString(),
				Comment:          flags[commentFlag].GetString(),
				IsApproved:       approved,
			})
			if err != nil {
				return err
			}
			if status != services.StatusSuccess {
				return fmt.Errorf("user not created: %s", status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (id %d)\n", u.UserName, u.ID)
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	cmd.Flags().BoolVar(&approved, approvedFlag, true, "Allow the user to log in")
	return cmd
}

func newUserValidateCommand(users Users) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <user>",
		Short: "Check a password; wrong passwords count towards lockout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptPassword(cmd.OutOrStdout(), "Password")
			if err != nil {
				return err
			}
			ok, err := users.ValidateUser(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("invalid credentials for %s", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}

func newUserChangePasswordCommand(users Users) *cobra.Command {
	return &cobra.Command{
		Use:   "change-password <user>",
		Short: "Replace a password after checking the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			oldPassword, err := promptPassword(w, "Current password")
			if err != nil {
				return err
			}
			newPassword, err := promptPassword(w, "New password")
			if err != nil {
				return err
			}
			ok, err := users.ChangePassword(cmd.Context(), args[0], oldPassword, newPassword)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("password not changed for %s", args[0])
			}
			fmt.Fprintln(w, "password changed")
			return nil
		},
	}
}

func newUserResetPasswordCommand(users Users) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <user> [answer]",
		Short: "Replace a password with a generated one and print it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var answer string
			if len(args) == 2 {
				answer = args[1]
			}
			pw, err := users.ResetPassword(cmd.Context(), args[0], answer)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pw)
			return nil
		},
	}
}

func newUserUnlockCommand(users Users) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <user>",
		Short: "Clear a lockout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := users.UnlockUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("user %s not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "unlocked")
			return nil
		},
	}
}

func newUserDeleteCommand(users Users) *cobra.Command {
	var allData bool
	cmd := &cobra.Command{
		Use:   "delete <user>",
		Short: "Delete a user and its role memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := users.DeleteUser(cmd.Context(), args[0], allData)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("user %s not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&allData, allDataFlag, false, "Also delete the user's profiles")
	return cmd
}

func newUserGetCommand(users Users) *cobra.Command {
	var online bool
	cmd := &cobra.Command{
		Use:   "get <user>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := users.GetUser(cmd.Context(), args[0], online)
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().BoolVar(&online, onlineFlag, false, "Record the lookup as user activity")
	return cmd
}

func newUserListCommand(users Users) *cobra.Command {
	flags := map[string]cobraflags.Flag{
		nameLikeFlag: &cobraflags.StringFlag{
			Name:  nameLikeFlag,
			Usage: "Only users whose name contains this text",
		},
		emailLikeFlag: &cobraflags.StringFlag{
			Name:  emailLikeFlag,
			Usage: "Only users whose e-mail contains this text",
		},
	}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				list []*models.User
				err  error
			)
			switch name, email := flags[nameLikeFlag].GetString(), flags[emailLikeFlag].GetString(); {
			case name != "" && email != "":
				return fmt.Errorf("--%s and --%s are mutually exclusive", nameLikeFlag, emailLikeFlag)
			case name != "":
				list, err = users.FindUsersByName(cmd.Context(), name)
			case email != "":
				list, err = users.FindUsersByEmail(cmd.Context(), email)
			default:
				list, err = users.GetAllUsers(cmd.Context())
			}
			if err != nil {
				return err
			}
			for _, u := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.UserName, u.Email, state(u))
			}
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func state(u *models.User) string {
	switch {
	case u.IsLockedOut:
		return "locked"
	case !u.IsApproved:
		return "unapproved"
	default:
		return "active"
	}
}

func printUser(w io.Writer, u *models.User) {
	fmt.Fprintf(w, "id:              %d\n", u.ID)
	fmt.Fprintf(w, "name:            %s\n", u.UserName)
	fmt.Fprintf(w, "application:     %s\n", u.ApplicationName)
	fmt.Fprintf(w, "email:           %s\n", u.Email)
	fmt.Fprintf(w, "state:           %s\n", state(u))
	fmt.Fprintf(w, "failed attempts: %d\n", u.FailedPasswordAttemptCount)
	fmt.Fprintf(w, "last login:      %s\n", u.LastLoginAt.Format(time.RFC3339))
	fmt.Fprintf(w, "roles:           %v\n", u.RoleNames())
}
