package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/membership/internal/common"
	"github.com/dmitrijs2005/membership/internal/cryptox"
	"github.com/dmitrijs2005/membership/internal/dbx"
	"github.com/dmitrijs2005/membership/internal/server/config"
	"github.com/dmitrijs2005/membership/internal/server/lockout"
	"github.com/dmitrijs2005/membership/internal/server/membership"
	"github.com/dmitrijs2005/membership/internal/server/metrics"
	"github.com/dmitrijs2005/membership/internal/server/models"
	"github.com/dmitrijs2005/membership/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/membership/internal/server/repositories/users"
)

type userRepo = users.Repository

// Generated reset passwords are never shorter than this.
const minResetPasswordLength = 8

// CreateStatus is the outcome of CreateUser.
type CreateStatus int

const (
	StatusSuccess CreateStatus = iota
	StatusInvalidUserName
	StatusInvalidPassword
	StatusInvalidQuestion
	StatusInvalidAnswer
	StatusInvalidEmail
	StatusDuplicateUserName
	StatusDuplicateEmail
	StatusProviderError
)

func (s CreateStatus) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusInvalidUserName:
		return "InvalidUserName"
	case StatusInvalidPassword:
		return "InvalidPassword"
	case StatusInvalidQuestion:
		return "InvalidQuestion"
	case StatusInvalidAnswer:
		return "InvalidAnswer"
	case StatusInvalidEmail:
		return "InvalidEmail"
	case StatusDuplicateUserName:
		return "DuplicateUserName"
	case StatusDuplicateEmail:
		return "DuplicateEmail"
	case StatusProviderError:
		return "ProviderError"
	default:
		return fmt.Sprintf("CreateStatus(%d)", int(s))
	}
}

// CreateUserInput carries the plaintext fields of a new account.
type CreateUserInput struct {
	UserName         string
	Password         string
	Email            string
	PasswordQuestion string
	PasswordAnswer   string
	Comment          string
	IsApproved       bool
}

// UserService validates credentials and manages accounts of one application.
type UserService struct {
	base
	encoder    *cryptox.Encoder
	policy     lockout.Policy
	membership *membership.Manager

	minPasswordLength   int
	minNonAlphanumeric  int
	passwordStrength    *regexp.Regexp
	requiresQA          bool
	requiresUniqueEmail bool
	enableReset         bool
	enableRetrieval     bool
	onlineWindow        time.Duration
}

// NewUserService constructs a UserService. cfg must have passed
// Config.Validate; an invalid strength expression panics.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, enc *cryptox.Encoder, opts ...Option) *UserService {
	s := &UserService{
		base:    newBase(db, m, cfg.ApplicationName, "users", opts),
		encoder: enc,
		policy: lockout.Policy{
			MaxInvalidAttempts: cfg.MaxInvalidPasswordAttempts,
			AttemptWindow:      cfg.PasswordAttemptWindow,
		},
		membership:          membership.New(),
		minPasswordLength:   cfg.MinRequiredPasswordLength,
		minNonAlphanumeric:  cfg.MinRequiredNonAlphanumericCharacters,
		requiresQA:          cfg.RequiresQuestionAndAnswer,
		requiresUniqueEmail: cfg.RequiresUniqueEmail,
		enableReset:         cfg.EnablePasswordReset,
		enableRetrieval:     cfg.EnablePasswordRetrieval,
		onlineWindow:        cfg.UserIsOnlineTimeWindow,
	}
	if cfg.PasswordStrengthRegularExpression != "" {
		s.passwordStrength = regexp.MustCompile(cfg.PasswordStrengthRegularExpression)
	}
	return s
}

// ValidateUser reports whether password is correct for an approved, unlocked
// user. A wrong password counts towards lockout. On success the login and
// activity timestamps are refreshed.
func (s *UserService) ValidateUser(ctx context.Context, userName, password string) (bool, error) {
	var valid bool
	err := s.run(ctx, "ValidateUser", func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err := repo.GetByUsername(ctx, s.app, userName)
		if errors.Is(err, common.ErrUserNotFound) {
			s.metrics.Validation(metrics.ResultUnknown)
			return nil
		}
		if err != nil {
			return err
		}

		if user.IsLockedOut {
			s.metrics.Validation(metrics.ResultLocked)
			return nil
		}

		ok, err := s.encoder.Verify(password, user.Password)
		if err != nil {
			return err
		}

		now := s.now()
		if !ok {
			s.metrics.Validation(metrics.ResultBadPass)
			s.recordFailure(ctx, user, lockout.Password, now)
			return repo.Update(ctx, user)
		}
		if !user.IsApproved {
			s.metrics.Validation(metrics.ResultUnapproved)
			return nil
		}

		user.LastLoginAt = now
		user.LastActivityAt = now
		if err := repo.Update(ctx, user); err != nil {
			return err
		}
		s.metrics.Validation(metrics.ResultSuccess)
		valid = true
		return nil
	})
	if err != nil {
		s.metrics.Validation(metrics.ResultError)
		return false, err
	}
	return valid, nil
}

func (s *UserService) recordFailure(ctx context.Context, user *models.User, c lockout.Category, now time.Time) {
	if s.policy.RecordFailure(user, c, now) {
		s.metrics.Lockout(c.String())
		s.logger(ctx).Warn(ctx, "user locked out", "user", user.UserName, "category", c.String())
	}
}

// CreateUser creates an account. Business rejections are reported through
// the status with a nil error; the error is set only with StatusProviderError.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, CreateStatus, error) {
	const op = "CreateUser"

	if checkName(op, "user name", in.UserName) != nil {
		return nil, StatusInvalidUserName, nil
	}
	if in.Password == "" || s.checkPassword(ctx, op, in.UserName, in.Password, true) != nil {
		return nil, StatusInvalidPassword, nil
	}
	if s.requiresQA && strings.TrimSpace(in.PasswordQuestion) == "" {
		return nil, StatusInvalidQuestion, nil
	}
	if s.requiresQA && strings.TrimSpace(in.PasswordAnswer) == "" {
		return nil, StatusInvalidAnswer, nil
	}
	if s.requiresUniqueEmail && strings.TrimSpace(in.Email) == "" {
		return nil, StatusInvalidEmail, nil
	}

	password, err := s.encoder.Encode(in.Password)
	if err != nil {
		return nil, StatusProviderError, common.ProviderFault(op, err)
	}
	var answer string
	if in.PasswordAnswer != "" {
		if answer, err = s.encoder.Encode(in.PasswordAnswer); err != nil {
			return nil, StatusProviderError, common.ProviderFault(op, err)
		}
	}

	var created *models.User
	status := StatusSuccess
	err = s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		if s.requiresUniqueEmail {
			_, err := repo.GetByEmail(ctx, s.app, in.Email)
			if err == nil {
				status = StatusDuplicateEmail
				return nil
			}
			if !errors.Is(err, common.ErrUserNotFound) {
				return err
			}
		}

		_, err := repo.GetByUsername(ctx, s.app, in.UserName)
		if err == nil {
			status = StatusDuplicateUserName
			return nil
		}
		if !errors.Is(err, common.ErrUserNotFound) {
			return err
		}

		now := s.now()
		user := &models.User{
			UserName:                               in.UserName,
			ApplicationName:                        s.app,
			Email:                                  in.Email,
			Comment:                                in.Comment,
			Password:                               password,
			PasswordQuestion:                       in.PasswordQuestion,
			PasswordAnswer:                         answer,
			IsApproved:                             in.IsApproved,
			CreatedAt:                              now,
			LastLoginAt:                            now,
			LastActivityAt:                         now,
			LastPasswordChangedAt:                  now,
			LastLockedOutAt:                        now,
			FailedPasswordAttemptWindowStart:       now,
			FailedPasswordAnswerAttemptWindowStart: now,
			Roles:                                  []models.RoleRef{},
		}
		created, err = repo.Create(ctx, user)
		return err
	})

	switch {
	case errors.Is(err, common.ErrDuplicateUserName):
		return nil, StatusDuplicateUserName, nil
	case err != nil:
		return nil, StatusProviderError, err
	case status != StatusSuccess:
		return nil, status, nil
	}

	s.logger(ctx).Info(ctx, "user created", "user", created.UserName, "id", created.ID)
	return created, StatusSuccess, nil
}

// ChangePassword replaces the password after validating the old one. A wrong
// old password yields false and counts towards lockout; only then is the new
// password checked, and a rejection by the policy or the validator hook
// yields common.ErrValidationRejected.
func (s *UserService) ChangePassword(ctx context.Context, userName, oldPassword, newPassword string) (bool, error) {
	const op = "ChangePassword"

	var changed bool
	err := s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		// joins this unit of work, so a failed attempt is persisted with it
		ok, err := s.ValidateUser(ctx, userName, oldPassword)
		if err != nil || !ok {
			return err
		}

		if err := s.checkPassword(ctx, op, userName, newPassword, true); err != nil {
			return err
		}
		stored, err := s.encoder.Encode(newPassword)
		if err != nil {
			return err
		}

		repo := s.repomanager.Users(tx)
		user, err := repo.GetByUsername(ctx, s.app, userName)
		if err != nil {
			return err
		}
		user.Password = stored
		user.LastPasswordChangedAt = s.now()
		if err := repo.Update(ctx, user); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// ChangePasswordQuestionAndAnswer replaces the security question and answer
// after validating password.
func (s *UserService) ChangePasswordQuestionAndAnswer(ctx context.Context, userName, password, question, answer string) (bool, error) {
	const op = "ChangePasswordQuestionAndAnswer"

	var changed bool
	err := s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := s.ValidateUser(ctx, userName, password)
		if err != nil || !ok {
			return err
		}

		if s.requiresQA && (strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "") {
			return common.NewFault(op, common.ErrInvalidInput, "question and answer are required")
		}
		stored, err := s.encoder.Encode(answer)
		if err != nil {
			return err
		}

		repo := s.repomanager.Users(tx)
		user, err := repo.GetByUsername(ctx, s.app, userName)
		if err != nil {
			return err
		}
		user.PasswordQuestion = question
		user.PasswordAnswer = stored
		if err := repo.Update(ctx, user); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// ResetPassword replaces the password with a generated one and returns it.
// Absent or locked users and wrong answers yield common.ErrMembershipPassword;
// wrong or missing answers count towards lockout.
func (s *UserService) ResetPassword(ctx context.Context, userName, answer string) (string, error) {
	const op = "ResetPassword"

	if !s.enableReset {
		return "", common.NewFault(op, common.ErrUnsupportedOperation, "password reset is not enabled")
	}

	length := max(minResetPasswordLength, s.minPasswordLength)
	generated, err := cryptox.GeneratePassword(length, s.minNonAlphanumeric)
	if err != nil {
		return "", common.ProviderFault(op, err)
	}
	if s.validator != nil {
		if err := s.validator(ctx, userName, generated, false); err != nil {
			return "", &common.Fault{Op: op, Kind: common.ErrMembershipPassword, Msg: "reset canceled by password validation", Err: err}
		}
	}
	stored, err := s.encoder.Encode(generated)
	if err != nil {
		return "", common.ProviderFault(op, err)
	}

	var outcome error
	err = s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		user, ok, err := s.checkAnswer(ctx, op, repo, userName, answer, &outcome)
		if err != nil || !ok {
			return err
		}

		user.Password = stored
		user.LastPasswordChangedAt = s.now()
		return repo.Update(ctx, user)
	})
	if err != nil {
		return "", err
	}
	if outcome != nil {
		return "", outcome
	}
	s.logger(ctx).Info(ctx, "password reset", "user", userName)
	return generated, nil
}

// GetPassword returns the plaintext password. It needs retrieval enabled and
// a reversible password format.
func (s *UserService) GetPassword(ctx context.Context, userName, answer string) (string, error) {
	const op = "GetPassword"

	if !s.enableRetrieval {
		return "", common.NewFault(op, common.ErrUnsupportedOperation, "password retrieval is not enabled")
	}
	if s.encoder.Format() == cryptox.FormatHashed {
		return "", common.NewFault(op, common.ErrUnsupportedOperation, "cannot retrieve hashed passwords")
	}

	var (
		password string
		outcome  error
	)
	err := s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		user, ok, err := s.checkAnswer(ctx, op, repo, userName, answer, &outcome)
		if err != nil || !ok {
			return err
		}
		password, err = s.encoder.Decode(user.Password)
		return err
	})
	if err != nil {
		return "", err
	}
	if outcome != nil {
		return "", outcome
	}
	return password, nil
}

// checkAnswer loads the user and, when answers are required, verifies the
// answer. Business failures are stored in *outcome with ok == false and a
// nil error so the recorded failure count commits.
func (s *UserService) checkAnswer(ctx context.Context, op string, repo userRepo, userName, answer string, outcome *error) (*models.User, bool, error) {
	user, err := repo.GetByUsername(ctx, s.app, userName)
	if errors.Is(err, common.ErrUserNotFound) {
		*outcome = &common.Fault{Op: op, Kind: common.ErrMembershipPassword, Msg: "user not found", Err: common.ErrUserNotFound}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if user.IsLockedOut {
		*outcome = &common.Fault{Op: op, Kind: common.ErrMembershipPassword, Msg: "user is locked out", Err: common.ErrUserLockedOut}
		return nil, false, nil
	}
	if !s.requiresQA {
		return user, true, nil
	}

	match := false
	if answer != "" {
		if match, err = s.encoder.Verify(answer, user.PasswordAnswer); err != nil {
			return nil, false, err
		}
	}
	if !match {
		s.recordFailure(ctx, user, lockout.PasswordAnswer, s.now())
		if err := repo.Update(ctx, user); err != nil {
			return nil, false, err
		}
		msg := "wrong password answer"
		if answer == "" {
			msg = "password answer required"
		}
		*outcome = common.NewFault(op, common.ErrMembershipPassword, "%s", msg)
		return nil, false, nil
	}
	return user, true, nil
}

// UnlockUser clears the lockout of userName. It reports false when the user
// does not exist.
func (s *UserService) UnlockUser(ctx context.Context, userName string) (bool, error) {
	var unlocked bool
	err := s.run(ctx, "UnlockUser", func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		user, err := repo.GetByUsername(ctx, s.app, userName)
		if errors.Is(err, common.ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		lockout.Unlock(user, s.now())
		if err := repo.Update(ctx, user); err != nil {
			return err
		}
		unlocked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if unlocked {
		s.logger(ctx).Info(ctx, "user unlocked", "user", userName)
	}
	return unlocked, nil
}

// GetUser loads userName. With online set the activity timestamp is
// refreshed first.
func (s *UserService) GetUser(ctx context.Context, userName string, online bool) (*models.User, error) {
	return s.getUser(ctx, "GetUser", online, func(ctx context.Context, repo userRepo) (*models.User, error) {
		return repo.GetByUsername(ctx, s.app, userName)
	})
}

// GetUserByID loads a user by its identifier.
func (s *UserService) GetUserByID(ctx context.Context, id int64, online bool) (*models.User, error) {
	return s.getUser(ctx, "GetUserByID", online, func(ctx context.Context, repo userRepo) (*models.User, error) {
		return repo.GetByID(ctx, id)
	})
}

func (s *UserService) getUser(ctx context.Context, op string, online bool, load func(context.Context, userRepo) (*models.User, error)) (*models.User, error) {
	var user *models.User
	err := s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		var err error
		if user, err = load(ctx, repo); err != nil {
			return err
		}
		if online {
			user.LastActivityAt = s.now()
			return repo.Update(ctx, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserNameByEmail returns the name of the user with email, or "" when
// there is none.
func (s *UserService) GetUserNameByEmail(ctx context.Context, email string) (string, error) {
	var name string
	err := s.run(ctx, "GetUserNameByEmail", func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetByEmail(ctx, s.app, email)
		if errors.Is(err, common.ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		name = user.UserName
		return nil
	})
	return name, err
}

// UpdateUser stores the editable fields of user: email, comment, approval
// and the login/activity timestamps.
func (s *UserService) UpdateUser(ctx context.Context, user *models.User) error {
	const op = "UpdateUser"
	return s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		current, err := repo.GetByUsername(ctx, s.app, user.UserName)
		if err != nil {
			return err
		}

		if s.requiresUniqueEmail && user.Email != current.Email {
			other, err := repo.GetByEmail(ctx, s.app, user.Email)
			switch {
			case err == nil && other.ID != current.ID:
				return common.NewFault(op, common.ErrDuplicateEmail, "%s", user.Email)
			case err != nil && !errors.Is(err, common.ErrUserNotFound):
				return err
			}
		}

		current.Email = user.Email
		current.Comment = user.Comment
		current.IsApproved = user.IsApproved
		current.LastLoginAt = user.LastLoginAt
		current.LastActivityAt = user.LastActivityAt
		return repo.Update(ctx, current)
	})
}

// DeleteUser removes userName and its role memberships. With
// deleteAllRelatedData its profiles are removed explicitly as well.
// It reports false when the user does not exist.
func (s *UserService) DeleteUser(ctx context.Context, userName string, deleteAllRelatedData bool) (bool, error) {
	var deleted bool
	err := s.run(ctx, "DeleteUser", func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		roles := s.repomanager.Roles(tx)

		user, err := users.GetByUsername(ctx, s.app, userName)
		if errors.Is(err, common.ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		loaded := make([]*models.Role, 0, len(user.Roles))
		for _, ref := range user.Roles {
			role, err := roles.Get(ctx, ref.ApplicationName, ref.RoleName)
			if err != nil {
				return err
			}
			loaded = append(loaded, role)
		}
		s.membership.DetachUser(user, loaded...)
		for _, role := range loaded {
			if err := roles.RemoveUser(ctx, role.ID, user.ID); err != nil {
				return err
			}
		}

		if deleteAllRelatedData {
			n, err := s.repomanager.Profiles(tx).DeleteByUserID(ctx, user.ID)
			if err != nil {
				return err
			}
			s.logger(ctx).Debug(ctx, "profiles deleted", "user", userName, "count", n)
		}

		if err := users.Delete(ctx, user.ID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger(ctx).Info(ctx, "user deleted", "user", userName)
	}
	return deleted, nil
}

// GetAllUsers lists the users of the application ordered by name.
func (s *UserService) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	return s.list(ctx, "GetAllUsers", func(ctx context.Context, repo userRepo) ([]*models.User, error) {
		return repo.All(ctx, s.app)
	})
}

// FindUsersByName lists users whose name contains pattern literally.
func (s *UserService) FindUsersByName(ctx context.Context, pattern string) ([]*models.User, error) {
	return s.list(ctx, "FindUsersByName", func(ctx context.Context, repo userRepo) ([]*models.User, error) {
		return repo.FindByUsername(ctx, s.app, pattern)
	})
}

// FindUsersByEmail lists users whose email contains pattern literally.
func (s *UserService) FindUsersByEmail(ctx context.Context, pattern string) ([]*models.User, error) {
	return s.list(ctx, "FindUsersByEmail", func(ctx context.Context, repo userRepo) ([]*models.User, error) {
		return repo.FindByEmail(ctx, s.app, pattern)
	})
}

func (s *UserService) list(ctx context.Context, op string, load func(context.Context, userRepo) ([]*models.User, error)) ([]*models.User, error) {
	var out []*models.User
	err := s.run(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = load(ctx, s.repomanager.Users(tx))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountUsers returns the number of users in the application.
func (s *UserService) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.run(ctx, "CountUsers", func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = s.repomanager.Users(tx).Count(ctx, s.app)
		return err
	})
	return n, err
}

// GetNumberOfUsersOnline counts users active within the online window.
func (s *UserService) GetNumberOfUsersOnline(ctx context.Context) (int, error) {
	var n int
	err := s.run(ctx, "GetNumberOfUsersOnline", func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = s.repomanager.Users(tx).CountOnline(ctx, s.app, s.now().Add(-s.onlineWindow))
		return err
	})
	return n, err
}

// checkPassword applies the length, symbol and expression rules, then the
// validator hook.
func (s *UserService) checkPassword(ctx context.Context, op, userName, password string, isNew bool) error {
	if utf8.RuneCountInString(password) < s.minPasswordLength {
		return common.NewFault(op, common.ErrValidationRejected, "password must be at least %d characters", s.minPasswordLength)
	}

	nonAlnum := 0
	for _, r := range password {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			nonAlnum++
		}
	}
	if nonAlnum < s.minNonAlphanumeric {
		return common.NewFault(op, common.ErrValidationRejected, "password must contain at least %d non-alphanumeric characters", s.minNonAlphanumeric)
	}

	if s.passwordStrength != nil && !s.passwordStrength.MatchString(password) {
		return common.NewFault(op, common.ErrValidationRejected, "password does not match the strength expression")
	}

	if s.validator != nil {
		if err := s.validator(ctx, userName, password, isNew); err != nil {
			return &common.Fault{Op: op, Kind: common.ErrValidationRejected, Msg: "password vetoed", Err: err}
		}
	}
	return nil
}
