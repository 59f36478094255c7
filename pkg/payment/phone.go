package payment

import (
	"fmt"
	"regexp"
	"strings"
)

var msisdnPattern = regexp.MustCompile(`^254[17]\d{8}$`)

// NormalizeMSISDN converts the local formats users type (07.., 01.., +254..,
// 7..) into the 2547XXXXXXXX form the gateway expects.
func NormalizeMSISDN(raw string) (string, error) {
	s := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")

	switch {
	case len(s) == 10 && strings.HasPrefix(s, "0"):
		s = "254" + s[1:]
	case len(s) == 9 && (s[0] == '7' || s[0] == '1'):
		s = "254" + s
	}

	if !msisdnPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	return s, nil
}

// MaskMSISDN hides the middle digits for logs.
func MaskMSISDN(msisdn string) string {
	if len(msisdn) < 8 {
		return "***"
	}
	return msisdn[:6] + strings.Repeat("*", len(msisdn)-8) + msisdn[len(msisdn)-2:]
}
