package sandbox

import (
	"regexp"
	"strings"
)

var (
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	aadhaarPattern = regexp.MustCompile(`^\d{12}$`)
)

// normalizePAN upper-cases the number and drops spaces.
func normalizePAN(raw string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", "")
}

// normalizeAadhaar drops spaces and dashes.
func normalizeAadhaar(raw string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
}
