package utils

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone converts raw phone input into E.164 format (+<countrycode><number>).
// defaultRegion is the ISO country code like "EG", "US", etc.
func NormalizePhone(raw string, defaultRegion string) (string, error) {
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeContact trims free-form contact details and rewrites them to E.164
// when the whole string is a valid phone number. Anything else (handles,
// emails, mixed text) is returned trimmed.
func NormalizeContact(raw string, defaultRegion string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.ContainsAny(s, "@abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return s
	}
	if phone, err := NormalizePhone(s, defaultRegion); err == nil {
		return phone
	}
	return s
}
