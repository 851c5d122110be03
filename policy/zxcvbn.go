package policy

import (
	"context"
	"unicode"

	"github.com/nbutton23/zxcvbn-go"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ZxcvbnScorer rates passwords with the zxcvbn estimator.
//
// zxcvbn's dictionaries and pattern matchers are ASCII oriented and rate
// accented letters as fresh symbols, so a run like "ÀÀÀÀÀÀ1111" scores as
// strong. Candidates and user inputs are therefore decomposed and stripped of
// combining marks before scoring. Letters without a decomposition (for
// example Cyrillic or CJK) are still scored as they are.
type ZxcvbnScorer struct{}

// Score returns the zxcvbn score (0..4) for password.
func (ZxcvbnScorer) Score(ctx context.Context, password string, userInputs []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	inputs := make([]string, 0, len(userInputs))
	for _, in := range userInputs {
		inputs = append(inputs, foldMarks(in))
	}
	return zxcvbn.PasswordStrength(foldMarks(password), inputs).Score, nil
}

// foldMarks maps s to NFKD, drops nonspacing marks and recomposes.
func foldMarks(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
