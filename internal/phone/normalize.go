// Package phone cleans up caller numbers before they are handed to the SMS
// automation endpoint.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const DefaultRegion = "PK"

type Normalizer struct {
	region string
}

func NewNormalizer(region string) *Normalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}
	return &Normalizer{region: region}
}

// Correct undoes the formatting quirks seen on inbound numbers: SIP
// parameters after ';', a spurious +1 country prefix and a local trunk 0.
func Correct(number string) string {
	if number == "" {
		return number
	}

	number = strings.TrimSpace(strings.SplitN(number, ";", 2)[0])

	switch {
	case strings.HasPrefix(number, "+1"):
		return "+" + number[2:]
	case strings.HasPrefix(number, "0"):
		return "+" + number[1:]
	}
	return number
}

// NormalizeE164 corrects the number and formats it to E.164. If parsing
// fails, it returns the corrected input.
func (n *Normalizer) NormalizeE164(input string) string {
	corrected := Correct(strings.TrimSpace(input))
	if corrected == "" {
		return corrected
	}

	number, err := phonenumbers.Parse(corrected, n.region)
	if err != nil {
		return corrected
	}

	if !phonenumbers.IsValidNumber(number) {
		return corrected
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}
