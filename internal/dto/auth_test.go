package dto

import (
	"testing"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"user@zawiya.test", true},
		{"first.last+tag@mail.example.com", true},
		{"", false},
		{"no-at-sign", false},
		{"user@localhost", false},
		{"Name <user@zawiya.test>", false},
		{"user@@zawiya.test", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			req := RegisterRequest{Email: tt.email}
			got, msg := req.ValidateEmail()
			if got != tt.want {
				t.Errorf("ValidateEmail(%q) = %v (%s), want %v", tt.email, got, msg, tt.want)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"valid", "Secret123", true},
		{"too short", "Ab1", false},
		{"no digit", "OnlyLetters", false},
		{"no letter", "1234567890", false},
		{"too long", "a1" + string(make([]byte, 80)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := RegisterRequest{Email: "a@b.co", Password: tt.password}
			if got, msg := req.ValidatePassword(); got != tt.want {
				t.Errorf("ValidatePassword() = %v (%s), want %v", got, msg, tt.want)
			}
		})
	}

	t.Run("optional on register", func(t *testing.T) {
		req := RegisterRequest{Email: "a@b.co"}
		if ok, _ := req.ValidatePassword(); !ok {
			t.Error("empty password should be accepted on register")
		}
	})
}

func TestLoginRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  LoginRequest
		want bool
	}{
		{"email only", LoginRequest{Email: "a@b.co"}, true},
		{"with code", LoginRequest{Email: "a@b.co", Code: "012345"}, true},
		{"short code", LoginRequest{Email: "a@b.co", Code: "123"}, false},
		{"letters in code", LoginRequest{Email: "a@b.co", Code: "12a456"}, false},
		{"bad email", LoginRequest{Email: "nope", Code: "123456"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := tt.req.Validate(); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyEmailRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  VerifyEmailRequest
		want bool
	}{
		{"token", VerifyEmailRequest{Token: "t"}, true},
		{"email and code", VerifyEmailRequest{Email: "a@b.co", Code: "123456"}, true},
		{"both forms", VerifyEmailRequest{Token: "t", Email: "a@b.co", Code: "123456"}, false},
		{"email without code", VerifyEmailRequest{Email: "a@b.co"}, false},
		{"empty", VerifyEmailRequest{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := tt.req.Validate(); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdateRoleRequest_Validate(t *testing.T) {
	ok := UpdateRoleRequest{Email: "a@b.co", Role: domain.RoleAdmin}
	if valid, msg := ok.Validate(); !valid {
		t.Errorf("expected valid, got %s", msg)
	}

	bad := UpdateRoleRequest{Email: "a@b.co", Role: "owner"}
	if valid, _ := bad.Validate(); valid {
		t.Error("expected unknown role to be rejected")
	}
}

func TestChangePasswordRequest_ValidatePassword(t *testing.T) {
	same := ChangePasswordRequest{CurrentPassword: "Secret123", NewPassword: "Secret123"}
	if valid, _ := same.ValidatePassword(); valid {
		t.Error("expected reuse of the current password to be rejected")
	}

	changed := ChangePasswordRequest{CurrentPassword: "Secret123", NewPassword: "Secret456"}
	if valid, msg := changed.ValidatePassword(); !valid {
		t.Errorf("expected valid, got %s", msg)
	}
}

func TestFromUser(t *testing.T) {
	now := time.Now()
	user := &domain.User{
		ID:           "u1",
		Email:        "a@b.co",
		Name:         "A",
		Role:         domain.RoleAdmin,
		PasswordHash: "hash",
		UniqueID:     "AD0000000001",
		IsActive:     true,
		CreatedAt:    now,
	}

	resp := FromUser(user)
	if resp.ID != "u1" || resp.Role != "admin" || !resp.IsActive {
		t.Errorf("unexpected response: %+v", resp)
	}
	if FromUser(nil) != nil {
		t.Error("expected nil for nil user")
	}
	if FromTokenPair(nil) != nil {
		t.Error("expected nil for nil pair")
	}
}
