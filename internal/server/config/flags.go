package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/membership/internal/flagx"
)

// ValueFlags lists the flags handled by parseFlags that take a value.
var ValueFlags = []string{"-d", "-s", "-n", "-m", "-w", "-l", "-x", "-r", "-f", "-o", "-log-level"}

// SwitchFlags lists the boolean flags handled by parseFlags. Give them
// explicitly as -q=false when the default must be overridden.
var SwitchFlags = []string{"-q", "-u", "-e", "-v"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string     PostgreSQL DSN
//	-s string     secret key for Hashed/Encrypted passwords
//	-n string     application name
//	-m int        max invalid password attempts
//	-w duration   password attempt window (e.g. "10m")
//	-l int        min required password length
//	-x int        min required non-alphanumeric characters
//	-r string     password strength regular expression
//	-f string     password format: Clear, Hashed or Encrypted
//	-o duration   user is online time window
//	-q bool       requires question and answer
//	-u bool       requires unique email
//	-e bool       enable password reset
//	-v bool       enable password retrieval
//	-log-level    debug, info, warn or error
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs and flagx.FilterSwitches, avoiding collisions with the
// CLI's own flags.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], ValueFlags)
	args = append(args, flagx.FilterSwitches(os.Args[1:], SwitchFlags)...)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.ApplicationName, "n", config.ApplicationName, "application name")
	fs.IntVar(&config.MaxInvalidPasswordAttempts, "m", config.MaxInvalidPasswordAttempts, "max invalid password attempts")
	fs.DurationVar(&config.PasswordAttemptWindow, "w", config.PasswordAttemptWindow, "password attempt window")
	fs.IntVar(&config.MinRequiredPasswordLength, "l", config.MinRequiredPasswordLength, "min required password length")
	fs.IntVar(&config.MinRequiredNonAlphanumericCharacters, "x", config.MinRequiredNonAlphanumericCharacters, "min required non-alphanumeric characters")
	fs.StringVar(&config.PasswordStrengthRegularExpression, "r", config.PasswordStrengthRegularExpression, "password strength regular expression")
	fs.StringVar(&config.PasswordFormat, "f", config.PasswordFormat, "password format (Clear, Hashed, Encrypted)")
	fs.DurationVar(&config.UserIsOnlineTimeWindow, "o", config.UserIsOnlineTimeWindow, "user is online time window")
	fs.BoolVar(&config.RequiresQuestionAndAnswer, "q", config.RequiresQuestionAndAnswer, "requires question and answer")
	fs.BoolVar(&config.RequiresUniqueEmail, "u", config.RequiresUniqueEmail, "requires unique email")
	fs.BoolVar(&config.EnablePasswordReset, "e", config.EnablePasswordReset, "enable password reset")
	fs.BoolVar(&config.EnablePasswordRetrieval, "v", config.EnablePasswordRetrieval, "enable password retrieval")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}

// StripArgs removes every configuration flag (including -c/-config) from
// args so a command parser sees only its own arguments.
func StripArgs(args []string) []string {
	args = flagx.RemoveArgs(args, append([]string{"-c", "-config"}, ValueFlags...))
	return flagx.RemoveSwitches(args, SwitchFlags)
}
