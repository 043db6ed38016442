package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"

	dErrors "opsgate/pkg/domain-errors"
)

// String identifiers crossing the trust boundary are validated against fixed
// allow-list shapes before any policy logic sees them. Wildcards, traversal
// tokens, control characters, and injection payloads never make it past
// these parsers.
type (
	// RegionID names a geographic operating region (e.g. "Manila", "Cebu").
	RegionID string

	// CaseID references an operations case used to justify escalation
	// (e.g. "CASE-SUPPORT-MNL-001").
	CaseID string

	// Action names an operation an identity wants to perform
	// (e.g. "assign_driver").
	Action string
)

const maxIdentifierLen = 64

var (
	// Segments of letters and digits joined by single hyphens. No leading
	// digit so bare numerics cannot masquerade as regions.
	regionPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*(-[A-Za-z0-9]+)*$`)

	// Uppercase segments joined by hyphens, at least two segments.
	casePattern = regexp.MustCompile(`^[A-Z0-9]+(-[A-Z0-9]+)+$`)

	// Lowercase snake_case verbs.
	actionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// ParseRegionID constructs a RegionID from external input.
//
// Usage: call from the normalizer when canonicalizing a request; never cast
// caller-supplied strings directly.
//
// Errors: returns CodeInvalidInput for anything outside the allow-list
// pattern, including the adversarial vectors (wildcards, "..", null bytes,
// SQL/command metacharacters).
func ParseRegionID(s string) (RegionID, error) {
	if err := checkIdentifier(s, regionPattern, "region"); err != nil {
		return "", err
	}
	return RegionID(s), nil
}

// ParseCaseID constructs a CaseID from external input.
func ParseCaseID(s string) (CaseID, error) {
	if err := checkIdentifier(s, casePattern, "case"); err != nil {
		return "", err
	}
	return CaseID(s), nil
}

// ParseAction constructs an Action from external input.
func ParseAction(s string) (Action, error) {
	if err := checkIdentifier(s, actionPattern, "action"); err != nil {
		return "", err
	}
	return Action(s), nil
}

func (r RegionID) String() string { return string(r) }
func (c CaseID) String() string   { return string(c) }
func (a Action) String() string   { return string(a) }

// checkIdentifier enforces the shared identifier invariants before the
// per-type pattern runs. The pattern is the allow-list; the explicit checks
// exist so rejection is not dependent on regexp subtleties for the
// best-known attack shapes.
func checkIdentifier(s string, pattern *regexp.Regexp, kind string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvalidInput, kind+" identifier cannot be empty")
	}
	if len(s) > maxIdentifierLen {
		return dErrors.New(dErrors.CodeInvalidInput, kind+" identifier too long")
	}
	if !utf8.ValidString(s) {
		return dErrors.New(dErrors.CodeInvalidInput, kind+" identifier is not valid UTF-8")
	}
	if strings.ContainsAny(s, "*;\x00") || strings.Contains(s, "..") {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" identifier")
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" identifier")
		}
	}
	if !pattern.MatchString(s) {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" identifier")
	}
	return nil
}
