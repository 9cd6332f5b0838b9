package qualify

import "strings"

// verdict is the classification of one result row.
type verdict string

const (
	verdictAvailable    verdict = "available"
	verdictIneligible   verdict = "ineligible"
	verdictBound        verdict = "bound"
	verdictNotQualified verdict = "not qualified"
	verdictUnknown      verdict = "unknown"
)

// keywordSets pairs each verdict with the substrings the backstage portal
// renders for it, in both locales the portal ships. Order is precedence: a
// row containing several keywords takes the first matching verdict.
var keywordSets = []struct {
	v     verdict
	words []string
}{
	{verdictAvailable, []string{"사용 가능", "available"}},
	{verdictIneligible, []string{"부적격", "ineligible"}},
	{verdictBound, []string{"바인딩", "에이전시", "bound", "agency"}},
	{verdictNotQualified, []string{"자격 없음", "not qualified"}},
}

func classify(rowText string) verdict {
	lower := strings.ToLower(rowText)
	for _, set := range keywordSets {
		for _, w := range set.words {
			if strings.Contains(lower, strings.ToLower(w)) {
				return set.v
			}
		}
	}
	return verdictUnknown
}
