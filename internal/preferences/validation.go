package preferences

import (
	"strings"
	"unicode/utf8"
)

func normalizeCategoryName(raw string) (string, error) {
	return normalizeText("name", raw)
}

// normalizePair trims both options and enforces the field rules shared by
// create, update and bulk import.
func normalizePair(pair PreferencePair) (PreferencePair, error) {
	first, err := normalizeText("preference1", pair.Preference1)
	if err != nil {
		return PreferencePair{}, err
	}
	second, err := normalizeText("preference2", pair.Preference2)
	if err != nil {
		return PreferencePair{}, err
	}
	if first == second {
		return PreferencePair{}, validationErrorf("preference2 must be different from preference1")
	}
	return PreferencePair{Preference1: first, Preference2: second}, nil
}

func normalizeText(field, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", validationErrorf("%s is required", field)
	}
	if utf8.RuneCountInString(trimmed) > maxTextLength {
		return "", validationErrorf("%s must not exceed %d characters", field, maxTextLength)
	}
	return trimmed, nil
}
