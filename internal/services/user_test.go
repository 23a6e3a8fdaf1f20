package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hazardwatch/apiserver/internal/store"
	"github.com/hazardwatch/apiserver/types"
)

type fakeUserRepo struct {
	byEmail map[string]types.User
	granted map[uuid.UUID][]types.Role
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byEmail: make(map[string]types.User),
		granted: make(map[uuid.UUID][]types.Role),
	}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	for _, u := range r.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User, roles ...types.Role) (types.User, error) {
	if _, ok := r.byEmail[user.Email]; ok {
		return types.User{}, store.ErrConflict
	}
	user.ID = uuid.New()
	r.byEmail[user.Email] = user
	r.granted[user.ID] = roles
	return user, nil
}

func TestUserService_RegisterAndAuthenticate(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo)

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:    "  Resident@Example.com ",
		Password: "hunter22",
		FullName: "Asha Rao",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "resident@example.com" {
		t.Errorf("email not normalised: %q", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "hunter22" {
		t.Errorf("password not hashed")
	}
	if got := repo.granted[user.ID]; len(got) != 1 || got[0] != types.RoleUser {
		t.Errorf("expected user role granted, got %v", got)
	}

	if _, err := svc.Authenticate(context.Background(), "resident@example.com", "hunter22"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "resident@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	_, err = svc.Register(context.Background(), RegisterInput{Email: "resident@example.com", Password: "another1", FullName: "Dup"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestUserService_RegisterValidation(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())
	_, err := svc.Register(context.Background(), RegisterInput{Email: "not-an-email", Password: "123", FullName: " "})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %+v", verr.Fields)
	}
}
