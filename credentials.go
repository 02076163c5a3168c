package authbridge

import (
	"regexp"
	"strings"
)

// MinPasswordLength is the minimum accepted password length for both
// registration and linking.
const MinPasswordLength = 8

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// ValidUsername reports whether username is 3-20 characters of letters,
// numbers, underscores and hyphens.
func ValidUsername(username string) bool {
	return usernameRegex.MatchString(username)
}

// ValidEmail reports whether email has a plausible address shape.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidPhone applies a basic length check after stripping common
// separators. Apps needing stricter rules validate before calling in.
func ValidPhone(phone string) bool {
	cleaned := strings.NewReplacer("-", "", " ", "", "(", "", ")", "").Replace(phone)
	return len(cleaned) >= 10
}

// DetectIdentifierType guesses whether an ambiguous login identifier is an
// email, phone number or username.
func DetectIdentifierType(identifier string) string {
	if strings.Contains(identifier, "@") {
		return "email"
	}
	if len(identifier) > 0 && (identifier[0] == '+' || (identifier[0] >= '0' && identifier[0] <= '9')) {
		return "phone"
	}
	return "username"
}

// UsernameFromEmail derives a fallback username from the email local-part.
// The derived value still goes through the standard uniqueness pre-check;
// callers must not assume it is free.
func UsernameFromEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return ""
	}
	return email[:at]
}
