package dto

import "time"

// PasswordResetRequest starts a reset for an elevated account
type PasswordResetRequest struct {
	Email    string `json:"email" binding:"required"`
	UniqueID string `json:"unique_id" binding:"required"`
}

// ValidateResetRequest checks a reset link before showing the form
type ValidateResetRequest struct {
	Email string `json:"email" binding:"required"`
	Token string `json:"token" binding:"required"`
}

// ConfirmResetRequest sets the new password
type ConfirmResetRequest struct {
	Email           string `json:"email" binding:"required"`
	Token           string `json:"token" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// ValidatePassword checks the new password
func (r *ConfirmResetRequest) ValidatePassword() (bool, string) {
	return validatePassword(r.NewPassword)
}

// ResetValidationResponse tells the frontend whether to show the reset form
type ResetValidationResponse struct {
	Valid        bool      `json:"valid"`
	MaskedUserID string    `json:"masked_user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// PurgeResponse reports rows removed by a one-shot purge
type PurgeResponse struct {
	RevokedPurged      int64 `json:"revoked_purged"`
	ExpiredCleaned     int64 `json:"expired_cleaned"`
	ResetTokensDeleted int64 `json:"reset_tokens_deleted"`
}
