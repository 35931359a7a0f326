// Package classify maps decoded message text to an accounting task
// category using an ordered keyword table.
package classify

import "strings"

// Category names as they exist in the categories table.
const (
	CorporationTax = "Corporation Tax Returns"
	SelfAssessment = "Self Assessments"
)

// rule pairs a keyword with the category it selects.
type rule struct {
	keyword  string
	category string
}

// rules is scanned in declaration order and the first match wins, so
// more specific phrases must come before shorter overlapping ones
// ("corporation tax return" before "corp tax"). This is an ordered
// slice, not a map: iteration order is the tie-breaker.
var rules = []rule{
	{"corporation tax return", CorporationTax},
	{"corporation tax", CorporationTax},
	{"corp tax return", CorporationTax},
	{"corp tax", CorporationTax},
	{"ct600", CorporationTax},
	{"corporate tax", CorporationTax},
	{"self assessment", SelfAssessment},
	{"self-assessment", SelfAssessment},
	{"sa100", SelfAssessment},
	{"sa return", SelfAssessment},
	{"personal tax return", SelfAssessment},
}

// Classify returns the category for a message, or false when the
// message matches no keyword and is not task-relevant.
func Classify(subject, body string) (string, bool) {
	text := strings.ToLower(subject + " " + body)
	for _, r := range rules {
		if strings.Contains(text, r.keyword) {
			return r.category, true
		}
	}
	return "", false
}
