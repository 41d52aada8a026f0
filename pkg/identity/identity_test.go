package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/teamkard/teamkard/pkg/domain"
)

func newResolver(t *testing.T) *JWTResolver {
	t.Helper()
	r, err := NewJWTResolver("test-secret", 16)
	if err != nil {
		t.Fatalf("NewJWTResolver: %v", err)
	}
	return r
}

func TestIssueAndResolve(t *testing.T) {
	r := newResolver(t)
	want := domain.User{ID: "u-1", Login: "alice", Type: domain.UserCurator}

	token, err := r.Issue(want, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := r.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != want {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}

	// Cached lookup returns the same identity.
	got, err = r.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if got != want {
		t.Errorf("cached Resolve = %+v, want %+v", got, want)
	}
}

func TestResolveFailures(t *testing.T) {
	r := newResolver(t)
	other, _ := NewJWTResolver("other-secret", 0)

	wrongKey, _ := other.Issue(domain.User{ID: "u-1"}, time.Hour)
	expired, _ := r.Issue(domain.User{ID: "u-1"}, -time.Minute)
	noSubject, _ := r.Issue(domain.User{}, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong key", wrongKey},
		{"expired", expired},
		{"missing subject", noSubject},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Resolve(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestUnknownRoleDefaultsToPlainUser(t *testing.T) {
	r := newResolver(t)
	token, _ := r.Issue(domain.User{ID: "u-2", Type: domain.UserType("superhero")}, time.Hour)

	got, err := r.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Type != domain.UserDefault {
		t.Errorf("type = %q, want default", got.Type)
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := NewJWTResolver("", 16); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
