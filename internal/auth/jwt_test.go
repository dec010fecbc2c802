package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erazemk/izposoja/internal/model"
)

var librarian = &model.User{ID: 1, Username: "desk", Role: model.RoleLibrarian}

func TestIssueAndValidate(t *testing.T) {
	tokens := NewTokens("test-secret-key", 0)

	token, issued, err := tokens.Issue(librarian)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" || issued.ID == "" {
		t.Fatal("expected token and JTI")
	}

	claims, err := tokens.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != 1 || claims.Username != "desk" || claims.Role != model.RoleLibrarian {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.ID != issued.ID {
		t.Errorf("expected JTI %q, got %q", issued.ID, claims.ID)
	}

	diff := time.Until(claims.ExpiresAt.Time) - TokenExpiry
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}

func TestValidateRejects(t *testing.T) {
	tokens := NewTokens("secret1", time.Hour)
	good, _, _ := tokens.Issue(librarian)

	expired, _, _ := NewTokens("secret1", time.Nanosecond).Issue(librarian)
	time.Sleep(10 * time.Millisecond)

	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 1, Role: model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret1"))

	badRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 1, Role: "root",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret1"))

	tests := map[string]struct {
		tokens *Tokens
		token  string
	}{
		"wrong secret": {NewTokens("secret2", time.Hour), good},
		"garbage":      {tokens, "not-a-token"},
		"expired":      {tokens, expired},
		"wrong issuer": {tokens, foreign},
		"unknown role": {tokens, badRole},
	}
	for name, tt := range tests {
		if _, err := tt.tokens.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestClaimsPermissions(t *testing.T) {
	borrower := &Claims{UserID: 5, Role: model.RoleBorrower}
	if borrower.IsStaff() {
		t.Error("borrower is not staff")
	}
	if !borrower.CanActFor(5) || borrower.CanActFor(6) {
		t.Error("borrower may act only for themselves")
	}

	staff := &Claims{UserID: 1, Role: model.RoleLibrarian}
	if !staff.IsStaff() || !staff.CanActFor(6) {
		t.Error("librarian may act for any borrower")
	}
	if !(&Claims{Role: model.RoleAdmin}).IsStaff() {
		t.Error("admin is staff")
	}
}
