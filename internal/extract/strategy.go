package extract

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/schedule"
)

// Strategy extracts candidates from a page of a given shape. It stops at the
// next unit boundary once ctx is done and returns what it has with ctx.Err().
type Strategy func(ctx context.Context, doc *goquery.Document, p Profile, source string) ([]record.Candidate, error)

var strategies = map[Shape]Strategy{
	ShapeTable:    Table,
	ShapeList:     List,
	ShapeCards:    Cards,
	ShapeCalendar: Calendar,
	ShapeGeneric:  Generic,
}

// Run detects the page shape and applies its strategy. When a specialised
// strategy yields nothing the generic fallback runs. The returned shape is
// the one whose strategy produced the candidates.
func Run(ctx context.Context, doc *goquery.Document, p Profile, source string) (Shape, []record.Candidate, error) {
	shape := Detect(doc)
	out, err := strategies[shape](ctx, doc, p, source)
	if err != nil || len(out) > 0 || shape == ShapeGeneric {
		return shape, out, err
	}
	log.Debug().Str("source", source).Str("shape", string(shape)).Msg("no candidates from detected shape; falling back to generic")
	out, err = Generic(ctx, doc, p, source)
	return ShapeGeneric, out, err
}

// Table maps every data row of every non-grid table through p.FromCells.
// A row made only of th cells is taken as the header for the rows below it.
func Table(ctx context.Context, doc *goquery.Document, p Profile, source string) ([]record.Candidate, error) {
	var out []record.Candidate
	var err error
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if isWeekdayGrid(t) {
			return true
		}
		var header []string
		rowsOf(t).EachWithBreak(func(_ int, r *goquery.Selection) bool {
			if err = ctx.Err(); err != nil {
				return false
			}
			cellSel := r.ChildrenFiltered("td, th")
			if cellSel.Length() > 0 && cellSel.Length() == r.ChildrenFiltered("th").Length() {
				header = header[:0]
				cellSel.Each(func(_ int, c *goquery.Selection) { header = append(header, Fold(Flat(c))) })
				return true
			}
			cells := cellTexts(cellSel)
			if len(cells) < 2 {
				return true
			}
			if c, ok := p.FromCells(cells, header); ok {
				out = append(out, stamp(c, ShapeTable, source))
			}
			return true
		})
		return err == nil
	})
	return out, err
}

// List maps each item of the qualifying lists through p.FromText.
func List(ctx context.Context, doc *goquery.Document, p Profile, source string) ([]record.Candidate, error) {
	return fromTexts(ctx, contentLists(doc).ChildrenFiltered("li"), p, ShapeList, source)
}

// Cards maps each outermost card element through p.FromText.
func Cards(ctx context.Context, doc *goquery.Document, p Profile, source string) ([]record.Candidate, error) {
	return fromTexts(ctx, outermost(doc.Find(cardSelector), cardSelector), p, ShapeCards, source)
}

// Calendar handles event elements and weekday timetable grids. In a grid the
// weekday of a cell comes from its column: the first weekday column is
// Monday (day 2) and each column to the right adds one.
func Calendar(ctx context.Context, doc *goquery.Document, p Profile, source string) ([]record.Candidate, error) {
	out, err := fromTexts(ctx, outermost(doc.Find(eventSelector), eventSelector), p, ShapeCalendar, source)
	if err != nil {
		return out, err
	}
	grid := weekdayGrid(doc)
	if grid == nil {
		return out, nil
	}
	rows := rowsOf(grid)
	first := -1
	rows.First().ChildrenFiltered("th, td").EachWithBreak(func(i int, c *goquery.Selection) bool {
		h := Fold(Flat(c))
		for _, d := range weekdayHeaders {
			if strings.HasPrefix(h, d) {
				first = i
				return false
			}
		}
		return true
	})
	rows.Slice(1, rows.Length()).EachWithBreak(func(_ int, r *goquery.Selection) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		cells := cellTexts(r.ChildrenFiltered("td, th"))
		label := ""
		if first > 0 && len(cells) > 0 {
			label = cells[0]
		}
		for i := first; i >= 0 && i < len(cells); i++ {
			text := strings.TrimSpace(cells[i])
			if text == "" {
				continue
			}
			c, ok := gridCandidate(p, text, label, schedule.DayFromGridColumn(i-first))
			if ok {
				out = append(out, stamp(c, ShapeCalendar, source))
			}
		}
		return true
	})
	return out, err
}

// gridCandidate builds a candidate from a timetable cell. Schedule entries
// take their day from the column and their time from the row label when the
// cell carries no schedule code.
func gridCandidate(p Profile, text, label string, day int) (record.Candidate, bool) {
	if p.Kind() != record.KindSchedules {
		return p.FromText(text)
	}
	if c, ok := p.FromText(text); ok {
		return c, true
	}
	code := CourseCode(text)
	if code == "" {
		return record.Candidate{}, false
	}
	c := record.NewCandidate(record.KindSchedules, "grid", "")
	c.Set(record.FieldCourseCode, code)
	c.Set(record.FieldClassCode, ClassCode(text))
	c.Set(record.FieldProfessor, Professor(text))
	c.Set(record.FieldClassroom, Classroom(text))
	c.Set(record.FieldDays, strconv.Itoa(day))
	start, end := TimeRange(label)
	if start == "" {
		start, end = TimeRange(text)
	}
	c.Set(record.FieldTimeStart, start)
	c.Set(record.FieldTimeEnd, end)
	return c, true
}

// Generic tries genericSelectors in order. A selector qualifies when it
// matches more than five elements; the first qualifying selector that yields
// any candidate wins.
func Generic(ctx context.Context, doc *goquery.Document, p Profile, source string) ([]record.Candidate, error) {
	for _, sel := range genericSelectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		elems := doc.Find(sel)
		if elems.Length() <= 5 {
			continue
		}
		elems = elems.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return p.Plausible(Flat(s))
		})
		out, err := fromTexts(ctx, elems, p, ShapeGeneric, source)
		if err != nil || len(out) > 0 {
			return out, err
		}
	}
	return nil, nil
}

func fromTexts(ctx context.Context, sel *goquery.Selection, p Profile, shape Shape, source string) ([]record.Candidate, error) {
	var out []record.Candidate
	var err error
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		if c, ok := p.FromText(NodeText(s)); ok {
			out = append(out, stamp(c, shape, source))
		}
		return true
	})
	return out, err
}

func cellTexts(sel *goquery.Selection) []string {
	cells := make([]string, 0, sel.Length())
	sel.Each(func(_ int, c *goquery.Selection) { cells = append(cells, Flat(c)) })
	return cells
}

func stamp(c record.Candidate, shape Shape, source string) record.Candidate {
	c.Strategy = string(shape)
	c.Source = source
	return c
}
