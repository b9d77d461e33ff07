package ingest

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone formats a number as E.164 using region for numbers without a
// country code. Values that do not parse as phone numbers are returned trimmed.
func NormalizePhone(raw, region string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if region == "" {
		region = "US"
	}
	num, err := phonenumbers.Parse(s, region)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return s
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
