// Package classify derives the ownership type of a property from official
// register fields and decides the registry search strategy for each type.
package classify

import (
	"regexp"
	"strings"

	"github.com/adnord/ownership-cli/internal/model"
)

// Ejerforholdskode values used by the ownership register. The code is the
// most reliable signal and always wins over text or name heuristics.
var codeTypes = map[int]model.OwnershipType{
	10: model.OwnershipPrivateIndividual,
	20: model.OwnershipSocialHousing,
	30: model.OwnershipCompany,
	40: model.OwnershipOwnersAssociation,
	41: model.OwnershipHousingCooperative,
	60: model.OwnershipGovernment,
	70: model.OwnershipGovernment,
	80: model.OwnershipGovernment,
}

// Free-text keywords checked against the register's ownership text, ordered
// most specific first.
var textKeywords = []struct {
	keyword string
	typ     model.OwnershipType
}{
	{"andelsbolig", model.OwnershipHousingCooperative},
	{"andelsforening", model.OwnershipHousingCooperative},
	{"ejerforening", model.OwnershipOwnersAssociation},
	{"ejerlejlighed", model.OwnershipOwnersAssociation},
	{"almen", model.OwnershipSocialHousing},
	{"boligselskab", model.OwnershipSocialHousing},
	{"kommune", model.OwnershipGovernment},
	{"region", model.OwnershipGovernment},
	{"stat", model.OwnershipGovernment},
	{"selskab", model.OwnershipCompany},
	{"aktieselskab", model.OwnershipCompany},
	{"anpartsselskab", model.OwnershipCompany},
	{"privat", model.OwnershipPrivateIndividual},
}

// Danish legal entity suffixes appearing in owner names.
var legalSuffixRe = regexp.MustCompile(`(?i)\b(a/s|aps|i/s|p/s|k/s|ivs|smba|amba|fmba)\b\.?`)

// Classify determines the ownership type for a property. Priority order:
// numeric register code, then ownership-text keywords, then owner-name
// patterns. Returns OwnershipUnknown when nothing matches.
func Classify(code int, text string, ownerNames []string) model.OwnershipType {
	if typ, ok := codeTypes[code]; ok {
		return typ
	}

	lower := strings.ToLower(text)
	for _, kw := range textKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.typ
		}
	}

	for _, name := range ownerNames {
		if typ := classifyName(name); typ != model.OwnershipUnknown {
			return typ
		}
	}

	return model.OwnershipUnknown
}

// classifyName applies name-pattern heuristics to a single owner name.
func classifyName(name string) model.OwnershipType {
	lower := strings.ToLower(name)

	switch {
	case strings.Contains(lower, "andelsboligforening"),
		strings.HasPrefix(lower, "a/b "),
		strings.HasPrefix(lower, "ab "):
		return model.OwnershipHousingCooperative
	case strings.Contains(lower, "ejerforening"),
		strings.HasPrefix(lower, "e/f "),
		strings.HasPrefix(lower, "ef "):
		return model.OwnershipOwnersAssociation
	case strings.Contains(lower, "boligselskab"),
		strings.Contains(lower, "boligforening"):
		return model.OwnershipSocialHousing
	case strings.Contains(lower, "kommune"),
		strings.Contains(lower, "regionen"),
		strings.Contains(lower, "staten"):
		return model.OwnershipGovernment
	case legalSuffixRe.MatchString(lower),
		strings.Contains(lower, "holding"),
		strings.Contains(lower, "ejendomme"),
		strings.Contains(lower, "invest"):
		return model.OwnershipCompany
	}

	return model.OwnershipUnknown
}
