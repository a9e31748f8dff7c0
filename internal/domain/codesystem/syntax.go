package codesystem

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrUnknownSystem = errors.New("unknown code system")
	ErrEmptyCode     = errors.New("empty code")
	ErrMalformedCode = errors.New("malformed code")

	ErrUnknownVocabulary = errors.New("vocabulary not supported for universal crosswalk")
)

// ndcPattern accepts the 4-4-2, 5-3-2 and 5-4-1/2 labeler-product-package
// layouts, the starred 5-*3-2 form and the unhyphenated 11 digit form.
var ndcPattern = regexp.MustCompile(`^(?:\d{4}-\d{4}-\d{2}|\d{5}-\d{3}-\d{2}|\d{5}-\d{4}-\d{1,2}|\d{5}-\*\d{3}-\d{2}|\d{11})$`)

// ValidationError reports a code that failed the syntax check for its
// declared system. No adapter is consulted for such a code.
type ValidationError struct {
	System System
	Code   string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s code %q: %v", e.System, e.Code, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CheckSyntax validates code against the format rules of s.
func CheckSyntax(s System, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return &ValidationError{System: s, Code: code, Err: ErrEmptyCode}
	}
	switch s {
	case NDC:
		if !ndcPattern.MatchString(code) {
			return &ValidationError{System: s, Code: code, Err: ErrMalformedCode}
		}
	case Normalized:
		for _, r := range code {
			if r < '0' || r > '9' {
				return &ValidationError{System: s, Code: code, Err: ErrMalformedCode}
			}
		}
	}
	return nil
}

// NormalizeNDC strips hyphens and zero-pads an NDC to the 11 digit 5-4-2
// form used by most drug databases.
func NormalizeNDC(code string) string {
	code = strings.ReplaceAll(strings.TrimSpace(code), "*", "")
	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		return strings.ReplaceAll(code, "-", "")
	}
	pad := func(s string, n int) string {
		for len(s) < n {
			s = "0" + s
		}
		return s
	}
	return pad(parts[0], 5) + pad(parts[1], 4) + pad(parts[2], 2)
}
