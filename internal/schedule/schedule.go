// Package schedule decodes compact class schedule codes such as "24M34" or
// "35N12 6T23" into days of week and a clock range.
//
// A code is <days><shift><slots>: days are digits 1-7 (1 = Sunday), the shift
// is M (morning), T (afternoon) or N (night), and each slot digit indexes a
// period within the shift.
package schedule

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Clock is a time of day in minutes since midnight.
type Clock int

// At builds a Clock from hours and minutes.
func At(h, m int) Clock { return Clock(h*60 + m) }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

// Period is one teaching slot.
type Period struct {
	Start Clock
	End   Clock
}

// periods maps a shift letter to its ordered slot table; slot digit n is
// index n-1.
var periods = map[byte][]Period{
	'M': {
		{At(7, 0), At(7, 50)},
		{At(7, 50), At(8, 40)},
		{At(8, 50), At(9, 40)},
		{At(9, 40), At(10, 30)},
		{At(10, 40), At(11, 30)},
		{At(11, 30), At(12, 20)},
	},
	'T': {
		{At(13, 0), At(13, 50)},
		{At(13, 50), At(14, 40)},
		{At(14, 50), At(15, 40)},
		{At(15, 40), At(16, 30)},
		{At(16, 40), At(17, 30)},
		{At(17, 30), At(18, 20)},
	},
	'N': {
		{At(18, 30), At(19, 20)},
		{At(19, 20), At(20, 10)},
		{At(20, 20), At(21, 10)},
		{At(21, 10), At(22, 0)},
	},
}

// codeRE accepts any letter as shift so an unknown shift still contributes
// its days instead of breaking the scan.
var codeRE = regexp.MustCompile(`([1-7]+)([A-Za-z])(\d{2,4})`)

// CodeRE finds schedule codes with a known shift inside free text.
var CodeRE = regexp.MustCompile(`[1-7]+[MTN]\d{2,4}`)

// Slot returns the period for a shift letter and slot digit.
func Slot(shift byte, digit int) (Period, bool) {
	table, ok := periods[shift]
	if !ok || digit < 1 || digit > len(table) {
		return Period{}, false
	}
	return table[digit-1], true
}

// Decoded is the result of decoding one schedule code.
type Decoded struct {
	Days  []int
	Start Clock
	End   Clock
	// HasTime is false when no sub-match contributed a known slot.
	HasTime bool
}

// Decode parses every <days><shift><slots> group in code. Day digits are
// unioned; the range spans the earliest start and the latest end over all
// known slots. Unknown shifts or slot digits add no time but do not stop the
// remaining groups.
func Decode(code string) Decoded {
	var d Decoded
	seen := map[int]bool{}
	for _, m := range codeRE.FindAllStringSubmatch(strings.ToUpper(code), -1) {
		for _, r := range m[1] {
			day := int(r - '0')
			if !seen[day] {
				seen[day] = true
				d.Days = append(d.Days, day)
			}
		}
		shift := m[2][0]
		for _, r := range m[3] {
			p, ok := Slot(shift, int(r-'0'))
			if !ok {
				continue
			}
			if !d.HasTime || p.Start < d.Start {
				d.Start = p.Start
			}
			if !d.HasTime || p.End > d.End {
				d.End = p.End
			}
			d.HasTime = true
		}
	}
	sort.Ints(d.Days)
	return d
}

// Valid reports whether s is a single well-formed code with a known shift.
func Valid(s string) bool {
	return CodeRE.FindString(s) == s && s != ""
}

// DayFromGridColumn maps a weekday column of a timetable grid (0 = Monday)
// to the 1-7 day numbering used by codes.
func DayFromGridColumn(col int) int { return col + 2 }

var dayNames = map[int]string{1: "Dom", 2: "Seg", 3: "Ter", 4: "Qua", 5: "Qui", 6: "Sex", 7: "Sab"}

// DayName returns the short Portuguese weekday name for a 1-7 day number.
func DayName(day int) string { return dayNames[day] }
