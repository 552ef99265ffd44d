package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/membership/internal/flagx"
	"github.com/dmitrijs2005/membership/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "10m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN                          string         `json:"database_dsn"`
	SecretKey                            string         `json:"secret_key"`
	ApplicationName                      string         `json:"application_name"`
	MaxInvalidPasswordAttempts           int            `json:"max_invalid_password_attempts"`
	PasswordAttemptWindow                timex.Duration `json:"password_attempt_window"`
	MinRequiredPasswordLength            int            `json:"min_required_password_length"`
	MinRequiredNonAlphanumericCharacters int            `json:"min_required_non_alphanumeric_characters"`
	PasswordStrengthRegularExpression    string         `json:"password_strength_regular_expression"`
	PasswordFormat                       string         `json:"password_format"`
	RequiresQuestionAndAnswer            bool           `json:"requires_question_and_answer"`
	RequiresUniqueEmail                  bool           `json:"requires_unique_email"`
	EnablePasswordReset                  bool           `json:"enable_password_reset"`
	EnablePasswordRetrieval              bool           `json:"enable_password_retrieval"`
	UserIsOnlineTimeWindow               timex.Duration `json:"user_is_online_time_window"`
	LogLevel                             string         `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; if neither
// is set, no JSON file is loaded. Keys missing from the file keep the value
// the Config already had. If the file cannot be read or contains invalid
// JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := fromConfig(config)

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.ApplicationName = c.ApplicationName
	config.MaxInvalidPasswordAttempts = c.MaxInvalidPasswordAttempts
	config.PasswordAttemptWindow = c.PasswordAttemptWindow.Duration
	config.MinRequiredPasswordLength = c.MinRequiredPasswordLength
	config.MinRequiredNonAlphanumericCharacters = c.MinRequiredNonAlphanumericCharacters
	config.PasswordStrengthRegularExpression = c.PasswordStrengthRegularExpression
	config.PasswordFormat = c.PasswordFormat
	config.RequiresQuestionAndAnswer = c.RequiresQuestionAndAnswer
	config.RequiresUniqueEmail = c.RequiresUniqueEmail
	config.EnablePasswordReset = c.EnablePasswordReset
	config.EnablePasswordRetrieval = c.EnablePasswordRetrieval
	config.UserIsOnlineTimeWindow = c.UserIsOnlineTimeWindow.Duration
	config.LogLevel = c.LogLevel
}

// fromConfig seeds the DTO so absent JSON keys fall back to current values.
func fromConfig(config *Config) *JsonConfig {
	return &JsonConfig{
		DatabaseDSN:                          config.DatabaseDSN,
		SecretKey:                            config.SecretKey,
		ApplicationName:                      config.ApplicationName,
		MaxInvalidPasswordAttempts:           config.MaxInvalidPasswordAttempts,
		PasswordAttemptWindow:                timex.Duration{Duration: config.PasswordAttemptWindow},
		MinRequiredPasswordLength:            config.MinRequiredPasswordLength,
		MinRequiredNonAlphanumericCharacters: config.MinRequiredNonAlphanumericCharacters,
		PasswordStrengthRegularExpression:    config.PasswordStrengthRegularExpression,
		PasswordFormat:                       config.PasswordFormat,
		RequiresQuestionAndAnswer:            config.RequiresQuestionAndAnswer,
		RequiresUniqueEmail:                  config.RequiresUniqueEmail,
		EnablePasswordReset:                  config.EnablePasswordReset,
		EnablePasswordRetrieval:              config.EnablePasswordRetrieval,
		UserIsOnlineTimeWindow:               timex.Duration{Duration: config.UserIsOnlineTimeWindow},
		LogLevel:                             config.LogLevel,
	}
}
