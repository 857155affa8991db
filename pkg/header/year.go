package header

import (
	"regexp"
	"strconv"
)

var digitRun = regexp.MustCompile(`[0-9]+`)

// ResourceYears returns every 2xxx year token in name that is not part of a
// longer digit run, in order of appearance.
func ResourceYears(name string) []int {
	var years []int
	for _, run := range digitRun.FindAllString(name, -1) {
		if len(run) != 4 || run[0] != '2' {
			continue
		}
		y, _ := strconv.Atoi(run)
		years = append(years, y)
	}
	return years
}

// ResourceYear returns the first year token of name.
func ResourceYear(name string) (int, bool) {
	years := ResourceYears(name)
	if len(years) == 0 {
		return 0, false
	}
	return years[0], true
}
