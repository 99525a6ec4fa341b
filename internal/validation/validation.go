// Package validation provides input validation helpers and middleware
// for the paycore API. Raw request fields are validated and normalized
// at the boundary so business logic never sees malformed amounts,
// currencies, or identifiers.
package validation

import (
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MaxStringLength is the maximum length for free-text string fields
const MaxStringLength = 10000

var (
	// amountRegex validates decimal amounts like "10", "10.5", "10.50"
	amountRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)
	// currencyRegex validates ISO 4217 style currency codes
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	// idRegex validates internal prefixed IDs (e.g. "wd_a1b2...", "ct_...")
	idRegex = regexp.MustCompile(`^[a-z]{2,6}_[a-f0-9]{24}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAmount checks that s is a non-negative decimal with at most
// two fractional digits. Sign and arithmetic validity are checked by
// the money package; this guards the wire shape.
func IsValidAmount(s string) bool {
	return amountRegex.MatchString(strings.TrimSpace(s))
}

// IsValidCurrency checks for a three-letter uppercase currency code.
func IsValidCurrency(s string) bool {
	return currencyRegex.MatchString(s)
}

// IsValidID checks that s looks like a paycore entity ID.
func IsValidID(s string) bool {
	return idRegex.MatchString(s)
}

// IsValidEmail checks RFC 5322 address shape (used for rail onboarding).
func IsValidEmail(s string) bool {
	_, err := mail.ParseAddress(s)
	return err == nil
}

// SanitizeString trims whitespace, limits length, and strips null bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}
