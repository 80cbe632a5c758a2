package repository

import "time"

// VerificationCodeConfig holds verification code settings shared by all backends
type VerificationCodeConfig struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
}

// defaultVerificationCodeConfig returns 6 digits, 10 minutes, 5 attempts
func defaultVerificationCodeConfig() VerificationCodeConfig {
	return VerificationCodeConfig{
		Length:      6,
		TTL:         10 * time.Minute,
		MaxAttempts: 5,
	}
}

func (c VerificationCodeConfig) normalize() VerificationCodeConfig {
	def := defaultVerificationCodeConfig()
	if c.Length <= 0 {
		c.Length = def.Length
	}
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	return c
}
