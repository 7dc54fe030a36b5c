package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"time"
)

// E.164: optional plus, no leading zero, at most 15 digits.
var phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

func failure(field, key, msg string, values map[string]any) ValidationError {
	if values == nil {
		values = map[string]any{}
	}
	values["field"] = field
	return ValidationError{
		Field:             field,
		Message:           msg,
		TranslationKey:    key,
		TranslationValues: values,
	}
}

// RequiredString fails when value is empty after trimming whitespace.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: failure(field, "validation.required", "field is required", nil),
	}
}

// MaxLenString fails when value is longer than max bytes.
func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return len(value) <= max },
		Error: failure(field, "validation.max_length",
			fmt.Sprintf("must be at most %d characters long", max),
			map[string]any{"max": max}),
	}
}

// RequiredComparable fails when value is the zero value of its type.
func RequiredComparable[T comparable](field string, value T) Rule {
	var zero T
	return Rule{
		Check: func() bool { return value != zero },
		Error: failure(field, "validation.required", "field is required", nil),
	}
}

// RequiredSlice fails when value has no elements.
func RequiredSlice[T any](field string, value []T) Rule {
	return Rule{
		Check: func() bool { return len(value) > 0 },
		Error: failure(field, "validation.required", "field is required", nil),
	}
}

// MaxLenSlice fails when value has more than max elements.
func MaxLenSlice[T any](field string, value []T, max int) Rule {
	return Rule{
		Check: func() bool { return len(value) <= max },
		Error: failure(field, "validation.max_items",
			fmt.Sprintf("must contain at most %d items", max),
			map[string]any{"max": max}),
	}
}

// InList fails when value is not one of allowed.
func InList[T comparable](field string, value T, allowed []T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(allowed, value) },
		Error: failure(field, "validation.in_list",
			fmt.Sprintf("must be one of: %v", allowed),
			map[string]any{"allowed_values": allowed}),
	}
}

// InListString is InList for strings, with the allowed values joined in the message.
func InListString(field, value string, allowed []string) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(allowed, value) },
		Error: failure(field, "validation.in_list",
			"must be one of: "+strings.Join(allowed, ", "),
			map[string]any{"allowed_values": allowed}),
	}
}

// DateAfter fails unless value is strictly after after.
func DateAfter(field string, value, after time.Time) Rule {
	return Rule{
		Check: func() bool { return value.After(after) },
		Error: failure(field, "validation.date_after",
			"must be after "+after.Format(time.RFC3339),
			map[string]any{"after": after.Format(time.RFC3339)}),
	}
}

// ValidEmail fails unless value is a bare address with a dotted domain.
// Display-name forms such as "Shop <a@b.c>" are rejected.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool { return isEmail(value) },
		Error: failure(field, "validation.email", "must be a valid email address", nil),
	}
}

// ValidPhone fails unless value is an international number. Spaces and
// dashes are ignored.
func ValidPhone(field, value string) Rule {
	return Rule{
		Check: func() bool {
			cleaned := strings.NewReplacer(" ", "", "-", "").Replace(value)
			return phoneRegex.MatchString(cleaned)
		},
		Error: failure(field, "validation.phone", "must be a valid phone number in international format", nil),
	}
}

func isEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != strings.TrimSpace(value) {
		return false
	}
	local, domain, ok := strings.Cut(addr.Address, "@")
	if !ok || local == "" {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	return !slices.Contains(labels, "")
}
