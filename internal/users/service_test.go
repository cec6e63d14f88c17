package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bodega-erp/bodega-erp/internal/platform/httpx"
)

type memoryRepo struct {
	users  map[int64]User
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[int64]User{}}
}

func (m *memoryRepo) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return User{}, httpx.ErrNotFound
}

func (m *memoryRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, httpx.ErrNotFound
}

func (m *memoryRepo) Create(ctx context.Context, user User) (User, error) {
	m.nextID++
	user.ID = m.nextID
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryRepo) Update(ctx context.Context, id int64, user User) error {
	existing, ok := m.users[id]
	if !ok {
		return httpx.ErrNotFound
	}
	existing.Email = user.Email
	existing.Name = user.Name
	existing.Role = user.Role
	m.users[id] = existing
	return nil
}

func (m *memoryRepo) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return httpx.ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return httpx.ErrNotFound
	}
	u.IsActive = active
	m.users[id] = u
	return nil
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateInput{Email: "Ana@Example.com", Name: "Ana", Role: RoleStorekeeper, Password: "secret-pass"})
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", user.Email)
	require.NotEqual(t, "secret-pass", user.PasswordHash)

	got, err := svc.Authenticate(ctx, "ana@example.com", "secret-pass")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "ana@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "secret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestInactiveUserCannotAuthenticate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateInput{Email: "bo@example.com", Name: "Bo", Role: RoleViewer, Password: "secret-pass"})
	require.NoError(t, err)
	require.NoError(t, svc.SetActive(ctx, user.ID, false))

	_, err = svc.Authenticate(ctx, "bo@example.com", "secret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Email: "no-at-sign", Name: "X", Role: RoleAdmin, Password: "secret-pass"})
	require.Error(t, err)

	_, err = svc.Create(ctx, CreateInput{Email: "x@example.com", Name: "X", Role: "SUPERUSER", Password: "secret-pass"})
	require.Error(t, err)

	_, err = svc.Create(ctx, CreateInput{Email: "x@example.com", Name: "X", Role: RoleAdmin, Password: "short"})
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestSetPasswordRotatesHash(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateInput{Email: "c@example.com", Name: "C", Role: RoleAdmin, Password: "first-pass-1"})
	require.NoError(t, err)

	require.NoError(t, svc.SetPassword(ctx, user.ID, "second-pass-2"))

	_, err = svc.Authenticate(ctx, "c@example.com", "first-pass-1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "c@example.com", "second-pass-2")
	require.NoError(t, err)
}
