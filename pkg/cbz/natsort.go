package cbz

import "strings"

// naturalLess compares two names treating runs of digits as numbers, so
// "page2" sorts before "page10". Text runs are compared case-insensitively.
func naturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		aDigits, aRest := splitRun(a)
		bDigits, bRest := splitRun(b)

		if isDigits(aDigits) && isDigits(bDigits) {
			if c := compareNumeric(aDigits, bDigits); c != 0 {
				return c < 0
			}
		} else {
			al := strings.ToLower(aDigits)
			bl := strings.ToLower(bDigits)
			if al != bl {
				return al < bl
			}
		}

		a, b = aRest, bRest
	}
	return len(a) < len(b)
}

// splitRun splits off the leading run of s: either all digits or all
// non-digits.
func splitRun(s string) (run, rest string) {
	digit := isDigit(s[0])
	for i := 1; i < len(s); i++ {
		if isDigit(s[i]) != digit {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

// compareNumeric compares two digit strings by value without parsing them
// into integers, so arbitrarily long runs can't overflow.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isDigits(s string) bool {
	return len(s) > 0 && isDigit(s[0])
}
