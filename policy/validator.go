package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Violation is a machine-readable reason a candidate password was rejected.
type Violation string

const (
	// ViolationContainsBadByte marks NUL, other control bytes, or invalid UTF-8.
	ViolationContainsBadByte Violation = "ContainsBadByte"
	// ViolationTooShort marks a candidate below MinLength code points.
	ViolationTooShort Violation = "TooShort"
	// ViolationTooLong marks a candidate above MaxLength code points.
	ViolationTooLong Violation = "TooLong"
	// ViolationDisallowedContent marks a candidate containing a profile attribute.
	ViolationDisallowedContent Violation = "DisallowedContent"
	// ViolationAlphaAndNumericRequired marks a candidate missing a letter or a number.
	ViolationAlphaAndNumericRequired Violation = "AlphaAndNumericRequired"
	// ViolationWeakPassword marks a candidate scored below MinScore.
	ViolationWeakPassword Violation = "WeakPassword"
)

var violationCodes = map[Violation]int{
	ViolationTooShort:                100,
	ViolationTooLong:                 110,
	ViolationAlphaAndNumericRequired: 120,
	ViolationDisallowedContent:       130,
	ViolationContainsBadByte:         140,
	ViolationWeakPassword:            150,
}

// Code returns the numeric client code for v, or 0 for unknown values.
func (v Violation) Code() int {
	return violationCodes[v]
}

// ErrScorerUnavailable wraps strength scorer failures. A failed score is never
// treated as acceptance.
var ErrScorerUnavailable = errors.New("password strength scorer unavailable")

// Config holds the rule toggles and thresholds applied by a [Validator].
type Config struct {
	MinLength              int
	MaxLength              int
	RequireAlphaAndNumeric bool
	MinScore               int
	CheckUserAttributes    bool
}

// DefaultConfig returns the rules used when none are configured.
func DefaultConfig() Config {
	return Config{
		MinLength:              10,
		MaxLength:              255,
		RequireAlphaAndNumeric: false,
		MinScore:               3,
		CheckUserAttributes:    true,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.MinLength < 1 {
		return errors.New("policy MinLength must be >= 1")
	}
	if c.MaxLength < c.MinLength {
		return errors.New("policy MaxLength must be >= MinLength")
	}
	if c.MinScore < 0 || c.MinScore > 4 {
		return errors.New("policy MinScore must be between 0 and 4")
	}
	return nil
}

// Profile carries the owner attributes a password must not contain.
type Profile struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
}

func (p Profile) attributes() []string {
	local := p.Email
	if at := strings.LastIndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}

	out := make([]string, 0, 4)
	for _, v := range []string{p.FirstName, p.LastName, p.Username, local} {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// Scorer rates password strength from 0 (trivial) to 4 (strong). userInputs
// are profile values the scorer should treat as guessable.
type Scorer interface {
	Score(ctx context.Context, password string, userInputs []string) (int, error)
}

// Validator applies a fixed [Config]. It is safe for concurrent use when the
// scorer is.
type Validator struct {
	config Config
	scorer Scorer
}

// NewValidator builds a Validator. A nil scorer selects [ZxcvbnScorer].
func NewValidator(cfg Config, scorer Scorer) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scorer == nil {
		scorer = ZxcvbnScorer{}
	}
	return &Validator{config: cfg, scorer: scorer}, nil
}

// Config returns the rules this validator applies.
func (v *Validator) Config() Config {
	return v.config
}

// Validate evaluates candidate against the configured rules and returns every
// violation found, in precedence order. An empty result means the candidate is
// acceptable. The error is non-nil only when the strength scorer failed.
func (v *Validator) Validate(ctx context.Context, candidate string, profile Profile) ([]Violation, error) {
	var violations []Violation

	if containsBadByte(candidate) {
		violations = append(violations, ViolationContainsBadByte)
	}

	length := utf8.RuneCountInString(candidate)
	if length < v.config.MinLength {
		violations = append(violations, ViolationTooShort)
	}
	if length > v.config.MaxLength {
		violations = append(violations, ViolationTooLong)
	}

	attributes := profile.attributes()
	if v.config.CheckUserAttributes && containsAttribute(candidate, attributes) {
		violations = append(violations, ViolationDisallowedContent)
	}

	if v.config.RequireAlphaAndNumeric && !hasAlphaAndNumeric(candidate) {
		violations = append(violations, ViolationAlphaAndNumericRequired)
	}

	if len(violations) > 0 || v.config.MinScore == 0 {
		return violations, nil
	}

	score, err := v.scorer.Score(ctx, candidate, attributes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}
	if score < v.config.MinScore {
		violations = append(violations, ViolationWeakPassword)
	}

	return violations, nil
}

func containsBadByte(s string) bool {
	if !utf8.ValidString(s) {
		return true
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

func containsAttribute(candidate string, attributes []string) bool {
	if len(attributes) == 0 {
		return false
	}

	folded := fold(candidate)
	for _, attr := range attributes {
		needle := fold(attr)
		if needle != "" && strings.Contains(folded, needle) {
			return true
		}
	}
	return false
}

// fold builds a fresh Caser per call; casers carry state and must not be shared.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}

func hasAlphaAndNumeric(s string) bool {
	var alpha, numeric bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			alpha = true
		case unicode.IsNumber(r):
			numeric = true
		}
		if alpha && numeric {
			return true
		}
	}
	return false
}
