package utils

import (
	"crypto/rand"
	"regexp"
)

// ReferralCodeLength is the fixed length of every shareable referral code.
const ReferralCodeLength = 6

// codeAlphabet is the 32-symbol alphabet for referral codes: digits 2-9 and
// uppercase letters excluding the visually ambiguous I and O (and 0/1 via the
// digit range). 32 divides 256, so a byte modulo draw is bias-free.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

var codePattern = regexp.MustCompile(`^[2-9A-HJ-NP-Z]{6}$`)

// GenerateReferralCode returns a random 6-character referral code.
// Uniqueness is the caller's responsibility (enforced by the DB constraint).
func GenerateReferralCode() string {
	return GenerateReferralCodeN(ReferralCodeLength)
}

// GenerateReferralCodeN returns a random code of length n from the referral
// alphabet.
func GenerateReferralCodeN(n int) string {
	if n <= 0 {
		n = ReferralCodeLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; if it does there is
		// no safe fallback for a shared code.
		panic("utils: crypto/rand unavailable: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// IsValidReferralCode reports whether s is exactly 6 characters from the
// referral alphabet.
func IsValidReferralCode(s string) bool {
	return codePattern.MatchString(s)
}
