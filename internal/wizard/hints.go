package wizard

import (
	"regexp"

	"swiftkyc-client/internal/api"
)

var mobilePattern = regexp.MustCompile(`^\d{10}$`)

// ValidMobile reports whether m is exactly ten digits.
func ValidMobile(m string) bool {
	return mobilePattern.MatchString(m)
}

// Hints is the help text shown next to the document number field.
type Hints struct {
	Label  string
	Format string
}

// HintsFor returns the number-format help for t.
func HintsFor(t api.DocType) Hints {
	switch t {
	case api.DocPAN:
		return Hints{
			Label:  "(e.g. PAN: ABCDE1234F)",
			Format: "PAN: 10 characters (5 letters, 4 digits, 1 letter). Example: ABCDE1234F.",
		}
	case api.DocAadhaar:
		return Hints{
			Label:  "(e.g. Aadhaar: 123412341234)",
			Format: "Aadhaar: exactly 12 digits (numbers only). No spaces or dashes.",
		}
	}
	return Hints{
		Label:  "(enter the document number as printed)",
		Format: "Enter the document number exactly as printed on your document.",
	}
}
