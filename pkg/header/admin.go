package header

import (
	"fmt"
	"regexp"
	"strings"
)

// codeRules matches p-code columns such as ADM1_PCODE or admin2code.
// Matching is anchored at the start only: ADM1_PCODE_OLD is still a code column.
func codeRules(level int) ruleSet {
	return ruleSet{
		{name: "pcode", re: regexp.MustCompile(fmt.Sprintf(`(?i)^adm(in)?%d_?p?code`, level))},
	}
}

// nameRules matches admin name columns such as ADM1_NAME, ADM1_FR, admin1Name or name_1.
func nameRules(level int) ruleSet {
	return ruleSet{
		{name: "adm", re: regexp.MustCompile(fmt.Sprintf(`(?i)^adm(in)?%d(name)?_?(name|[a-z]{2})$`, level))},
		{name: "name", re: regexp.MustCompile(fmt.Sprintf(`(?i)^name_?%d$`, level))},
	}
}

// CodeHeaders returns every header that looks like a p-code column for level.
// The caller decides what to do with zero or several matches.
func CodeHeaders(headers []string, level int) Match {
	return Match{Headers: codeRules(level).filter(headers)}
}

// NameHeaders returns the name column(s) for level. When several headers
// qualify, a single _en column wins; otherwise columns whose two-letter suffix
// is not a non-Latin script code are preferred. If that still leaves several,
// or leaves none, the result is ambiguous.
func NameHeaders(headers []string, level int, nonLatin []string) Match {
	candidates := nameRules(level).filter(headers)
	if len(candidates) <= 1 {
		return Match{Headers: candidates}
	}

	english := narrower{name: "english", keep: func(h string) bool { return hasSuffixFold(h, "_en") }}
	if en := english.apply(candidates); len(en) == 1 {
		return Match{Headers: en}
	}

	latin := narrower{name: "latin", keep: func(h string) bool {
		if len(h) < 3 || h[len(h)-3] != '_' {
			return false
		}
		suffix := strings.ToLower(h[len(h)-2:])
		for _, code := range nonLatin {
			if strings.ToLower(code) == suffix {
				return false
			}
		}
		return true
	}}
	if kept := latin.apply(candidates); len(kept) > 0 {
		return Match{Headers: kept}
	}
	return Match{Headers: candidates}
}

// AdminHeaders is the code and name column lookup for every sub-level of a resource.
type AdminHeaders struct {
	Level int           `json:"level"`
	Codes map[int]Match `json:"codes"`
	Names map[int]Match `json:"names"`
}

// ClassifyAdmin runs CodeHeaders and NameHeaders for levels 1..level.
// A level-3 resource needs level 1, 2 and 3 columns.
func ClassifyAdmin(headers []string, level int, nonLatin []string) AdminHeaders {
	ah := AdminHeaders{
		Level: level,
		Codes: make(map[int]Match, level),
		Names: make(map[int]Match, level),
	}
	for l := 1; l <= level; l++ {
		ah.Codes[l] = CodeHeaders(headers, l)
		ah.Names[l] = NameHeaders(headers, l, nonLatin)
	}
	return ah
}

// Classification is the full header interpretation of one resource.
type Classification struct {
	Admin        AdminHeaders `json:"admin"`
	Population   []string     `json:"population"`
	Unrecognized []string     `json:"unrecognized"`
}

// Classify interprets every header of a level-N resource. Headers that are
// neither demographic columns nor a uniquely chosen admin column land in
// Unrecognized.
func Classify(headers []string, level int, nonLatin []string) Classification {
	c := Classification{Admin: ClassifyAdmin(headers, level, nonLatin)}

	chosen := make(map[string]bool)
	for l := 1; l <= level; l++ {
		if h := c.Admin.Codes[l].Header(); h != "" {
			chosen[h] = true
		}
		if h := c.Admin.Names[l].Header(); h != "" {
			chosen[h] = true
		}
	}
	for _, h := range headers {
		switch {
		case IsPopulationHeader(h):
			c.Population = append(c.Population, h)
		case !chosen[h]:
			c.Unrecognized = append(c.Unrecognized, h)
		}
	}
	return c
}
