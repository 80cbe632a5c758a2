package service

import (
	"fmt"
	"html"
	"net/url"

	"github.com/Miasufee/connect-sub000/internal/domain"
)

func verificationCodeEmail(to, code string, expiresInMinutes int) *EmailMessage {
	return &EmailMessage{
		To:      to,
		Subject: "Your Zawiya login code",
		Text:    fmt.Sprintf("Your login code is %s. It expires in %d minutes.", code, expiresInMinutes),
		HTML: fmt.Sprintf("<p>Your login code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>",
			html.EscapeString(code), expiresInMinutes),
	}
}

func passwordResetEmail(to, resetURL string, expiresInMinutes int) *EmailMessage {
	return &EmailMessage{
		To:      to,
		Subject: "Reset your Zawiya password",
		Text:    fmt.Sprintf("Reset your password: %s\nThe link expires in %d minutes.", resetURL, expiresInMinutes),
		HTML: fmt.Sprintf(`<p><a href="%s">Reset your password</a></p><p>The link expires in %d minutes.</p>`,
			html.EscapeString(resetURL), expiresInMinutes),
	}
}

func emailVerificationEmail(to, verifyURL string) *EmailMessage {
	return &EmailMessage{
		To:      to,
		Subject: "Verify your Zawiya email",
		Text:    fmt.Sprintf("Confirm your email address: %s", verifyURL),
		HTML:    fmt.Sprintf(`<p><a href="%s">Confirm your email address</a></p>`, html.EscapeString(verifyURL)),
	}
}

// linkWithParams appends query parameters to base
func linkWithParams(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid link base %q: %w", base, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func uniqueIDEmail(to string, role domain.Role, uniqueID string) *EmailMessage {
	return &EmailMessage{
		To:      to,
		Subject: "Your Zawiya staff sign-in ID",
		Text:    fmt.Sprintf("You now have the %s role. Sign in with your password and this ID: %s", role, uniqueID),
		HTML: fmt.Sprintf("<p>You now have the <strong>%s</strong> role.</p><p>Sign in with your password and this ID: <code>%s</code></p>",
			html.EscapeString(string(role)), html.EscapeString(uniqueID)),
	}
}
