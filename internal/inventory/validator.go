package inventory

import "regexp"

// CodePrefix is the fixed literal prefix every gift code carries.
const CodePrefix = "AMAZON-GIFT-CODE-"

// codePattern matches the full code format: the fixed prefix followed by
// exactly six uppercase alphanumeric characters.
var codePattern = regexp.MustCompile(`^AMAZON-GIFT-CODE-[A-Z0-9]{6}$`)

// IsValidFormat reports whether code matches the required gift code format.
// Pure check, used standalone and as the insertion precondition.
func IsValidFormat(code string) bool {
	return codePattern.MatchString(code)
}
