package header

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Age range labels that carry no bounds.
const (
	AgeAll     = "all"
	AgeUnknown = "unknown"
)

var (
	ErrNotPopulation  = errors.New("not a population header")
	ErrFusedBounds    = errors.New("fused age bounds cannot be split")
	ErrInvertedBounds = errors.New("maximum age below minimum age")
	ErrAgeRange       = errors.New("unrecognized age range")
)

var populationRules = ruleSet{
	{name: "total", re: regexp.MustCompile(`(?i)^[FMT]_TL$`)},
	{name: "range", re: regexp.MustCompile(`(?i)^[FMT]_[0-9]{1,3}_?[0-9]{1,3}$`)},
	{name: "plus", re: regexp.MustCompile(`(?i)^[FMT]_[0-9]{2,3}_?plus$`)},
}

var genders = map[string]string{
	"f": "f",
	"m": "m",
	"t": "all",
}

// IsPopulationHeader reports whether h is a gender × age breakdown column
// (F_TL, M_00_04, T_4045, F_80PLUS, ...).
func IsPopulationHeader(h string) bool {
	_, ok := populationRules.first(h)
	return ok
}

// Decode returns the gender (f, m or all) and the age range label of a
// population header.
//
// A single age token such as F_00 decodes to the exact age "0-0": the source
// files use it that way even though it reads like an open bracket.
func Decode(h string) (gender, ageRange string, err error) {
	if !IsPopulationHeader(h) {
		return "", "", fmt.Errorf("%w: %q", ErrNotPopulation, h)
	}
	parts := strings.Split(strings.ToLower(h), "_")
	gender = genders[parts[0]]
	bounds := parts[1:]

	if bounds[0] == "tl" {
		return gender, AgeAll, nil
	}
	if len(bounds) == 2 && bounds[1] == "plus" {
		bounds = []string{bounds[0] + "plus"}
	}
	if len(bounds) == 1 {
		tok := bounds[0]
		switch {
		case strings.HasSuffix(tok, "plus"):
			lo, _ := strconv.Atoi(strings.TrimSuffix(tok, "plus"))
			return gender, FormatAgeRange(lo, nil), nil
		case len(tok) < 4:
			bounds = []string{tok, tok}
		case len(tok) == 4:
			bounds = []string{tok[:2], tok[2:]}
		default:
			return "", "", fmt.Errorf("%w: %q", ErrFusedBounds, h)
		}
	}

	// The patterns guarantee digits here; Atoi strips leading zeros.
	lo, _ := strconv.Atoi(bounds[0])
	hi, _ := strconv.Atoi(bounds[1])
	return gender, FormatAgeRange(lo, &hi), nil
}

// FormatAgeRange renders bounds as "min-max", or "min+" when max is nil.
func FormatAgeRange(minAge int, maxAge *int) string {
	if maxAge == nil {
		return strconv.Itoa(minAge) + "+"
	}
	return strconv.Itoa(minAge) + "-" + strconv.Itoa(*maxAge)
}

// AgeBounds is the inverse of FormatAgeRange. "all" and "unknown" have no bounds.
func AgeBounds(ageRange string) (minAge, maxAge *int, err error) {
	if ageRange == AgeAll || ageRange == AgeUnknown {
		return nil, nil, nil
	}
	if lo, hi, ok := strings.Cut(ageRange, "-"); ok {
		a, errA := strconv.Atoi(lo)
		b, errB := strconv.Atoi(hi)
		if errA != nil || errB != nil {
			return nil, nil, fmt.Errorf("%w: %q", ErrAgeRange, ageRange)
		}
		return &a, &b, nil
	}
	a, err := strconv.Atoi(strings.TrimSuffix(ageRange, "+"))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrAgeRange, ageRange)
	}
	return &a, nil, nil
}

// Demographic is the decoded meaning of one population column.
type Demographic struct {
	Group    string `json:"group"`
	Gender   string `json:"gender"`
	AgeRange string `json:"age_range"`
	MinAge   *int   `json:"min_age"`
	MaxAge   *int   `json:"max_age"`
}

// DecodeDemographic decodes h fully. Inverted bounds (F_45_40) are reported
// as ErrInvertedBounds; the column must not produce rows.
func DecodeDemographic(h string) (Demographic, error) {
	gender, ageRange, err := Decode(h)
	if err != nil {
		return Demographic{}, err
	}
	minAge, maxAge, err := AgeBounds(ageRange)
	if err != nil {
		return Demographic{}, err
	}
	if minAge != nil && maxAge != nil && *maxAge < *minAge {
		return Demographic{}, fmt.Errorf("%w: %q", ErrInvertedBounds, h)
	}
	return Demographic{
		Group:    strings.ToUpper(h),
		Gender:   gender,
		AgeRange: ageRange,
		MinAge:   minAge,
		MaxAge:   maxAge,
	}, nil
}
