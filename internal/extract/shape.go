package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Shape is the dominant structural layout of a listing page.
type Shape string

const (
	ShapeTable    Shape = "table"
	ShapeList     Shape = "list"
	ShapeCards    Shape = "cards"
	ShapeCalendar Shape = "calendar"
	ShapeGeneric  Shape = "generic"
)

const (
	cardSelector  = ".card, .course-card, .discipline-card, [class*=card]"
	eventSelector = ".event, .calendar-event, [class*=event], .fc-event"
)

// genericSelectors are tried in order by the fallback strategy.
var genericSelectors = []string{
	"tr", "li", ".row", ".item", ".course", ".discipline",
	"[class*=course]", "[class*=discipline]",
}

var weekdayHeaders = []string{"seg", "ter", "qua", "qui", "sex", "mon", "tue", "wed", "thu", "fri"}

// Detect classifies doc. Signatures are checked in priority order and the
// first one that matches wins; ShapeGeneric is returned when none do.
func Detect(doc *goquery.Document) Shape {
	switch {
	case hasDataTable(doc):
		return ShapeTable
	case hasContentList(doc):
		return ShapeList
	case outermost(doc.Find(cardSelector), cardSelector).Length() > 3:
		return ShapeCards
	case outermost(doc.Find(eventSelector), eventSelector).Length() > 3 || weekdayGrid(doc) != nil:
		return ShapeCalendar
	}
	return ShapeGeneric
}

// hasDataTable reports a table with more than three rows. Weekday grids are
// left to the calendar signature.
func hasDataTable(doc *goquery.Document) bool {
	found := false
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if rowsOf(t).Length() > 3 && !isWeekdayGrid(t) {
			found = true
		}
		return !found
	})
	return found
}

// hasContentList reports a ul/ol with more than five items and more than
// 200 characters of text.
func hasContentList(doc *goquery.Document) bool {
	return contentLists(doc).Length() > 0
}

func contentLists(doc *goquery.Document) *goquery.Selection {
	return doc.Find("ul, ol").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ChildrenFiltered("li").Length() > 5 && len(Flat(s)) > 200
	})
}

// rowsOf returns the rows that belong to t itself, not to nested tables.
func rowsOf(t *goquery.Selection) *goquery.Selection {
	return t.Find("tr").FilterFunction(func(_ int, r *goquery.Selection) bool {
		return r.Closest("table").IsSelection(t)
	})
}

// outermost drops matches nested inside another match of the same selector.
func outermost(sel *goquery.Selection, selector string) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered(selector).Length() == 0
	})
}

// weekdayGrid returns the first table whose header row names at least three
// weekdays.
func weekdayGrid(doc *goquery.Document) *goquery.Selection {
	var grid *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if isWeekdayGrid(t) {
			grid = t
		}
		return grid == nil
	})
	return grid
}

func isWeekdayGrid(t *goquery.Selection) bool {
	hits := 0
	rowsOf(t).First().Find("th, td").Each(func(_ int, c *goquery.Selection) {
		h := Fold(Flat(c))
		for _, d := range weekdayHeaders {
			if strings.HasPrefix(h, d) {
				hits++
				break
			}
		}
	})
	return hits >= 3
}
