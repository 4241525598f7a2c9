package flows

import "errors"

// DefaultCodeDigits is the length of a TOTP code.
const DefaultCodeDigits = 6

// ValidCode reports whether code is exactly digits ASCII digits.
func ValidCode(code string, digits int) bool {
	if digits <= 0 {
		digits = DefaultCodeDigits
	}
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func matches(err, target error) bool {
	return err != nil && target != nil && errors.Is(err, target)
}
