package errdefs

import "fmt"

// Finding is a single secret reported by a scanner.
type Finding struct {
	// Description is the scanner's rule description (e.g. "Generic API Key")
	Description string

	// File is the path of the offending file, relative to the scanned root
	File string

	// Line is the 1-based line number of the match
	Line int
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] in %s:%d", f.Description, f.File, f.Line)
}

// SecretError is returned when a scan finds one or more secrets.
// It is a specialization of ErrPolicyViolation: the push that triggered
// the scan must not proceed.
type SecretError struct {
	// Tool is the scanner that produced the findings (e.g. "gitleaks")
	Tool string

	// Findings is the non-empty list of reported secrets
	Findings []Finding
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("%s found %d secrets", e.Tool, len(e.Findings))
}

// Unwrap makes errors.Is(err, ErrPolicyViolation) true for secret errors.
func (e *SecretError) Unwrap() error {
	return ErrPolicyViolation
}
