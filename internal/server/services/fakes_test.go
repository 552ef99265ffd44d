package services

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/membership/internal/common"
	"github.com/dmitrijs2005/membership/internal/cryptox"
	"github.com/dmitrijs2005/membership/internal/dbx"
	"github.com/dmitrijs2005/membership/internal/server/config"
	"github.com/dmitrijs2005/membership/internal/server/models"
	"github.com/dmitrijs2005/membership/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/membership/internal/server/repositories/roles"
	"github.com/dmitrijs2005/membership/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// expectUnits queues n begin/commit pairs.
func expectUnits(mock sqlmock.Sqlmock, n int) {
	for range n {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PasswordFormat = cryptox.FormatEncrypted.String()
	return cfg
}

func testEncoder(t *testing.T, cfg *config.Config) *cryptox.Encoder {
	t.Helper()
	format, err := cryptox.ParsePasswordFormat(cfg.PasswordFormat)
	require.NoError(t, err)
	enc, err := cryptox.NewEncoder(format, []byte(cfg.SecretKey))
	require.NoError(t, err)
	return enc
}

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time         { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// --- in-memory repositories ---

type joinKey struct{ userID, roleID int64 }

type memStore struct {
	nextID   int64
	users    map[int64]*models.User
	roles    map[int64]*models.Role
	joins    map[joinKey]bool
	profiles map[int64]*models.Profile

	updateErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]*models.User{},
		roles:    map[int64]*models.Role{},
		joins:    map[joinKey]bool{},
		profiles: map[int64]*models.Profile{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}

func (m *memStore) withRoles(u *models.User) *models.User {
	c := copyUser(u)
	c.Roles = []models.RoleRef{}
	for k := range m.joins {
		if k.userID == u.ID {
			c.Roles = append(c.Roles, m.roles[k.roleID].Ref())
		}
	}
	slices.SortFunc(c.Roles, func(a, b models.RoleRef) int { return strings.Compare(a.RoleName, b.RoleName) })
	return c
}

func (m *memStore) withMembers(r *models.Role) *models.Role {
	c := *r
	c.Members = []models.UserRef{}
	for k := range m.joins {
		if k.roleID == r.ID {
			c.Members = append(c.Members, m.users[k.userID].Ref())
		}
	}
	slices.SortFunc(c.Members, func(a, b models.UserRef) int { return strings.Compare(a.UserName, b.UserName) })
	return &c
}

func (m *memStore) sortedUsers(keep func(*models.User) bool) []*models.User {
	out := []*models.User{}
	for _, u := range m.users {
		if keep(u) {
			c := copyUser(u)
			c.Roles = nil
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b *models.User) int { return strings.Compare(a.UserName, b.UserName) })
	return out
}

type memUsers struct{ m *memStore }

func (r memUsers) GetByUsername(_ context.Context, app, name string) (*models.User, error) {
	for _, u := range r.m.users {
		if u.ApplicationName == app && u.UserName == name {
			return r.m.withRoles(u), nil
		}
	}
	return nil, common.ErrUserNotFound
}

func (r memUsers) GetByEmail(_ context.Context, app, email string) (*models.User, error) {
	var found *models.User
	for _, u := range r.m.users {
		if u.ApplicationName == app && u.Email == email && (found == nil || u.ID < found.ID) {
			found = u
		}
	}
	if found == nil {
		return nil, common.ErrUserNotFound
	}
	return r.m.withRoles(found), nil
}

func (r memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := r.m.users[id]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	return r.m.withRoles(u), nil
}

func (r memUsers) FindByUsername(_ context.Context, app, pattern string) ([]*models.User, error) {
	return r.m.sortedUsers(func(u *models.User) bool {
		return u.ApplicationName == app && strings.Contains(u.UserName, pattern)
	}), nil
}

func (r memUsers) FindByEmail(_ context.Context, app, pattern string) ([]*models.User, error) {
	return r.m.sortedUsers(func(u *models.User) bool {
		return u.ApplicationName == app && strings.Contains(u.Email, pattern)
	}), nil
}

func (r memUsers) All(_ context.Context, app string) ([]*models.User, error) {
	return r.m.sortedUsers(func(u *models.User) bool { return u.ApplicationName == app }), nil
}

func (r memUsers) Count(ctx context.Context, app string) (int, error) {
	all, _ := r.All(ctx, app)
	return len(all), nil
}

func (r memUsers) CountOnline(_ context.Context, app string, since time.Time) (int, error) {
	return len(r.m.sortedUsers(func(u *models.User) bool {
		return u.ApplicationName == app && u.LastActivityAt.After(since)
	})), nil
}

func (r memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if _, err := r.GetByUsername(ctx, u.ApplicationName, u.UserName); err == nil {
		return nil, common.ErrDuplicateUserName
	}
	c := copyUser(u)
	c.ID = r.m.id()
	c.Roles = nil
	r.m.users[c.ID] = c
	return r.m.withRoles(c), nil
}

func (r memUsers) Update(_ context.Context, u *models.User) error {
	if r.m.updateErr != nil {
		return r.m.updateErr
	}
	if _, ok := r.m.users[u.ID]; !ok {
		return common.ErrUserNotFound
	}
	c := copyUser(u)
	c.Roles = nil
	r.m.users[u.ID] = c
	return nil
}

func (r memUsers) Delete(_ context.Context, id int64) error {
	if _, ok := r.m.users[id]; !ok {
		return common.ErrUserNotFound
	}
	delete(r.m.users, id)
	for k := range r.m.joins {
		if k.userID == id {
			delete(r.m.joins, k)
		}
	}
	for pid, p := range r.m.profiles {
		if p.UserID == id {
			delete(r.m.profiles, pid)
		}
	}
	return nil
}

type memRoles struct{ m *memStore }

func (r memRoles) Get(_ context.Context, app, name string) (*models.Role, error) {
	for _, role := range r.m.roles {
		if role.ApplicationName == app && role.RoleName == name {
			return r.m.withMembers(role), nil
		}
	}
	return nil, common.ErrRoleNotFound
}

func (r memRoles) All(_ context.Context, app string) ([]*models.Role, error) {
	out := []*models.Role{}
	for _, role := range r.m.roles {
		if role.ApplicationName == app {
			c := *role
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.Role) int { return strings.Compare(a.RoleName, b.RoleName) })
	return out, nil
}

func (r memRoles) Create(ctx context.Context, role *models.Role) (*models.Role, error) {
	if _, err := r.Get(ctx, role.ApplicationName, role.RoleName); err == nil {
		return nil, common.ErrDuplicateRole
	}
	c := *role
	c.ID = r.m.id()
	c.Members = nil
	r.m.roles[c.ID] = &c
	return r.m.withMembers(&c), nil
}

func (r memRoles) Delete(_ context.Context, id int64) error {
	if _, ok := r.m.roles[id]; !ok {
		return common.ErrRoleNotFound
	}
	delete(r.m.roles, id)
	return r.RemoveAllUsers(context.Background(), id)
}

func (r memRoles) AddUser(_ context.Context, roleID, userID int64) error {
	k := joinKey{userID: userID, roleID: roleID}
	if r.m.joins[k] {
		return common.ErrAlreadyMember
	}
	r.m.joins[k] = true
	return nil
}

func (r memRoles) RemoveUser(_ context.Context, roleID, userID int64) error {
	k := joinKey{userID: userID, roleID: roleID}
	if !r.m.joins[k] {
		return common.ErrNotAMember
	}
	delete(r.m.joins, k)
	return nil
}

func (r memRoles) RemoveAllUsers(_ context.Context, roleID int64) error {
	for k := range r.m.joins {
		if k.roleID == roleID {
			delete(r.m.joins, k)
		}
	}
	return nil
}

type memProfiles struct{ m *memStore }

func (r memProfiles) Get(_ context.Context, userID int64, anon bool) (*models.Profile, error) {
	for _, p := range r.m.profiles {
		if p.UserID == userID && p.IsAnonymous == anon {
			c := *p
			return &c, nil
		}
	}
	return nil, common.ErrProfileNotFound
}

func (r memProfiles) GetByUserID(_ context.Context, userID int64) ([]*models.Profile, error) {
	out := []*models.Profile{}
	for _, p := range r.m.profiles {
		if p.UserID == userID {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r memProfiles) Find(_ context.Context, app string, q models.ProfileQuery) ([]*models.Profile, error) {
	anon := q.Option.AnonymousFilter()
	out := []*models.Profile{}
	for _, p := range r.m.profiles {
		if p.ApplicationName != app {
			continue
		}
		if anon != nil && p.IsAnonymous != *anon {
			continue
		}
		if !q.InactiveSince.IsZero() && p.LastActivityAt.After(q.InactiveSince) {
			continue
		}
		if q.UserNameToMatch != "" {
			u, ok := r.m.users[p.UserID]
			if !ok || !strings.Contains(u.UserName, q.UserNameToMatch) {
				continue
			}
		}
		c := *p
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *models.Profile) int { return int(a.ID - b.ID) })
	return out, nil
}

func (r memProfiles) inactive(app string, since time.Time, opt models.ProfileAuthOption) []*models.Profile {
	out, _ := r.Find(context.Background(), app, models.ProfileQuery{Option: opt, InactiveSince: since})
	return out
}

func (r memProfiles) CountInactive(_ context.Context, app string, since time.Time, opt models.ProfileAuthOption) (int, error) {
	return len(r.inactive(app, since, opt)), nil
}

func (r memProfiles) DeleteInactive(_ context.Context, app string, since time.Time, opt models.ProfileAuthOption) (int, error) {
	found := r.inactive(app, since, opt)
	for _, p := range found {
		delete(r.m.profiles, p.ID)
	}
	return len(found), nil
}

func (r memProfiles) Create(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	if _, err := r.Get(ctx, p.UserID, p.IsAnonymous); err == nil {
		return nil, common.ErrConflict
	}
	c := *p
	c.ID = r.m.id()
	r.m.profiles[c.ID] = &c
	out := c
	return &out, nil
}

func (r memProfiles) Update(_ context.Context, p *models.Profile) error {
	if _, ok := r.m.profiles[p.ID]; !ok {
		return common.ErrProfileNotFound
	}
	c := *p
	r.m.profiles[p.ID] = &c
	return nil
}

func (r memProfiles) DeleteByUserID(_ context.Context, userID int64) (int, error) {
	n := 0
	for id, p := range r.m.profiles {
		if p.UserID == userID {
			delete(r.m.profiles, id)
			n++
		}
	}
	return n, nil
}

type memManager struct{ m *memStore }

func (mm memManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (mm memManager) Users(dbx.DBTX) users.Repository             { return memUsers{mm.m} }
func (mm memManager) Roles(dbx.DBTX) roles.Repository             { return memRoles{mm.m} }
func (mm memManager) Profiles(dbx.DBTX) profiles.Repository       { return memProfiles{mm.m} }
