package apex

import (
	"regexp"
	"strings"
)

// countryCodePrefix is the digit form of the enforced international prefix.
const countryCodePrefix = "998"

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone reduces a shared contact's phone number to a bare digit
// string with the country code enforced: "+998 90 123 45 67" and "901234567"
// both normalize to "998901234567".
func NormalizePhone(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if digits == "" {
		return ""
	}

	if !strings.HasPrefix(digits, countryCodePrefix) {
		digits = countryCodePrefix + digits
	}

	return digits
}
