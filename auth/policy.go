// Package auth scores new vault passphrases. The result is advice shown to
// the user when a vault is created; it never blocks creation.
package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"
)

const (
	// RecommendedScore is the lowest zxcvbn score not reported as weak.
	RecommendedScore = 3
	// RecommendedLength is the shortest passphrase not flagged for length.
	RecommendedLength = 12
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"

// Assessment is the advisory outcome for one passphrase.
type Assessment struct {
	Score     int
	CrackTime string
	Warnings  []string
}

// Weak reports whether the passphrase should be flagged to the user.
func (a Assessment) Weak() bool {
	return a.Score < RecommendedScore || len(a.Warnings) > 0
}

// Summary renders the assessment as a single line.
func (a Assessment) Summary() string {
	s := fmt.Sprintf("strength %d/4, estimated crack time %s", a.Score, a.CrackTime)
	if len(a.Warnings) > 0 {
		s += "; " + strings.Join(a.Warnings, "; ")
	}
	return s
}

// AssessPassphrase scores pw with zxcvbn and the composition rules below.
// userInputs are words that should count against the passphrase, such as
// the vault directory name.
func AssessPassphrase(pw string, userInputs ...string) Assessment {
	res := zxcvbn.PasswordStrength(pw, userInputs)
	a := Assessment{
		Score:     res.Score,
		CrackTime: res.CrackTimeDisplay,
	}

	if utf8.RuneCountInString(pw) < RecommendedLength {
		a.Warnings = append(a.Warnings, fmt.Sprintf("shorter than %d characters", RecommendedLength))
	}
	if !hasUpper(pw) {
		a.Warnings = append(a.Warnings, "no uppercase letter")
	}
	if !hasDigit(pw) {
		a.Warnings = append(a.Warnings, "no digit")
	}
	if !hasSpecial(pw) {
		a.Warnings = append(a.Warnings, "no special character")
	}
	return a
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func hasSpecial(s string) bool {
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			return true
		}
	}
	return false
}
