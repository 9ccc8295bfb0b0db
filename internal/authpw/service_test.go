package authpw

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"folio/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string
	nextID     int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	m.nextID++
	user.ID = string(rune('a' + m.nextID))
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return user, nil
}

func (m *mockUserStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = hash
	m.users[userID] = user
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore(), bcrypt.MinCost)

	user, err := svc.SignUp(ctx, SignUpRequest{Email: " Test@Example.com ", Password: "password123", DisplayName: "Test User"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.Email != "test@example.com" {
		t.Errorf("email should be normalized, got %q", user.Email)
	}
	if user.PasswordHash == "password123" || user.PasswordHash == "" {
		t.Error("password should be hashed")
	}

	cases := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{"duplicate email", SignUpRequest{Email: "test@example.com", Password: "password123", DisplayName: "Again"}, ErrEmailTaken},
		{"missing fields", SignUpRequest{Email: "x@example.com"}, ErrMissingFields},
		{"short password", SignUpRequest{Email: "y@example.com", Password: "short", DisplayName: "Y"}, ErrWeakPassword},
		{"bad email", SignUpRequest{Email: "nope", Password: "password123", DisplayName: "Z"}, ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SignUp(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("SignUp() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore(), bcrypt.MinCost)
	created, err := svc.SignUp(ctx, SignUpRequest{Email: "ann@example.com", Password: "password123", DisplayName: "Ann"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	user, err := svc.SignIn(ctx, "ann@example.com", "password123")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("SignIn returned %q, want %q", user.ID, created.ID)
	}

	for _, tc := range []struct{ email, password string }{
		{"ann@example.com", "wrong-password"},
		{"nobody@example.com", "password123"},
		{"", ""},
	} {
		if _, err := svc.SignIn(ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("SignIn(%q) error = %v, want ErrInvalidCredentials", tc.email, err)
		}
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore(), bcrypt.MinCost)
	user, err := svc.SignUp(ctx, SignUpRequest{Email: "bo@example.com", Password: "password123", DisplayName: "Bo"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong-current", "newpassword1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("ChangePassword with wrong current password error = %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "password123", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("ChangePassword with weak password error = %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "password123", "newpassword1"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := svc.SignIn(ctx, "bo@example.com", "newpassword1"); err != nil {
		t.Fatalf("SignIn with new password failed: %v", err)
	}
}
