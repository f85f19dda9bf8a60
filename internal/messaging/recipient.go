package messaging

import (
	"fmt"
	"strings"

	"github.com/DigiLync/digilync/internal/models"
)

// minRecipientDigits rejects obviously truncated numbers.
const minRecipientDigits = 6

// CanonicalizeRecipient turns a phone number in any common form into E.164.
// An international "00" prefix is dropped, numbers already carrying
// countryCode are kept, a leading national 0 is replaced by countryCode, and
// anything else is assumed to be international already.
func CanonicalizeRecipient(recipient, countryCode string) (string, error) {
	digits := models.PhoneDigits(strings.TrimSpace(recipient))
	if digits == "" {
		return "", fmt.Errorf("%w: no digits in %q", ErrInvalidRecipient, recipient)
	}
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	digits = strings.TrimPrefix(digits, "00")
	if !strings.HasPrefix(digits, countryCode) && strings.HasPrefix(digits, "0") {
		digits = countryCode + digits[1:]
	}
	if len(digits) < minRecipientDigits {
		return "", fmt.Errorf("%w: %q is too short", ErrInvalidRecipient, digits)
	}
	return "+" + digits, nil
}
