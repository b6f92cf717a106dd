package scraper

import (
	"context"
	"strings"

	"github.com/hyperifyio/goradar/internal/extract"
	"github.com/hyperifyio/goradar/internal/page"
	"github.com/hyperifyio/goradar/internal/record"
	"github.com/hyperifyio/goradar/internal/validate"
)

type coursesUnit struct {
	unit
	seen map[string]struct{}
}

func newCourses(env Env, s *validate.Schema) Unit {
	return &coursesUnit{unit: newUnit(record.KindCourses, env, s)}
}

func (u *coursesUnit) Extract(ctx context.Context, cfg Config) ([]record.Candidate, error) {
	u.seen = make(map[string]struct{})
	u.semester = ""
	return u.pages(ctx, cfg, func(c *record.Candidate, doc *page.Document) bool {
		code := strings.ToUpper(c.Get(record.FieldCode))
		if _, dup := u.seen[code]; dup {
			return false
		}
		u.seen[code] = struct{}{}
		if c.Get(record.FieldSemester) == "" {
			c.Set(record.FieldSemester, u.semesterFor(cfg, doc))
		}
		return true
	})
}

type schedulesUnit struct {
	unit
	seen map[string]struct{}
}

func newSchedules(env Env, s *validate.Schema) Unit {
	return &schedulesUnit{unit: newUnit(record.KindSchedules, env, s)}
}

func (u *schedulesUnit) Extract(ctx context.Context, cfg Config) ([]record.Candidate, error) {
	u.seen = make(map[string]struct{})
	u.semester = ""
	return u.pages(ctx, cfg, func(c *record.Candidate, doc *page.Document) bool {
		key := strings.ToUpper(c.Get(record.FieldCourseCode)) + "-" + strings.ToUpper(c.Get(record.FieldClassCode)) + "-" + c.Get(record.FieldSchedule)
		if _, dup := u.seen[key]; dup {
			return false
		}
		u.seen[key] = struct{}{}
		if c.Get(record.FieldSemester) == "" {
			c.Set(record.FieldSemester, u.semesterFor(cfg, doc))
		}
		return true
	})
}

type professorsUnit struct {
	unit
	seen map[string]int
}

func newProfessors(env Env, s *validate.Schema) Unit {
	return &professorsUnit{unit: newUnit(record.KindProfessors, env, s)}
}

// Extract merges repeated directory entries for the same person: the first
// occurrence wins for scalar fields, later ones fill gaps and add courses.
func (u *professorsUnit) Extract(ctx context.Context, cfg Config) ([]record.Candidate, error) {
	u.seen = make(map[string]int)
	var out []record.Candidate
	_, err := u.pages(ctx, cfg, func(c *record.Candidate, _ *page.Document) bool {
		key := extract.Fold(c.Get(record.FieldName))
		i, dup := u.seen[key]
		if !dup {
			u.seen[key] = len(out)
			out = append(out, *c)
			return false
		}
		prev := out[i]
		for f, v := range c.Fields {
			if prev.Get(f) == "" {
				prev.Set(f, v)
			}
		}
		for _, code := range c.Lists[record.ListCourses] {
			if !containsString(prev.Lists[record.ListCourses], code) {
				prev.Lists[record.ListCourses] = append(prev.Lists[record.ListCourses], code)
			}
		}
		return false
	})
	return out, err
}

type componentsUnit struct {
	unit
	seen map[string]struct{}
}

func newComponents(env Env, s *validate.Schema) Unit {
	return &componentsUnit{unit: newUnit(record.KindComponents, env, s)}
}

// Extract reads the component listing of each configured course. A
// component shared by several courses is kept once per course.
func (u *componentsUnit) Extract(ctx context.Context, cfg Config) ([]record.Candidate, error) {
	p, _ := extract.ProfileFor(record.KindComponents)
	u.seen = make(map[string]struct{})
	var out []record.Candidate
	err := u.perCourse(ctx, cfg, func(course string, doc *page.Document) error {
		cands, err := u.extractPage(ctx, p, doc)
		for _, c := range cands {
			c.Set(record.FieldCourseCode, course)
			key := course + "/" + strings.ToUpper(c.Get(record.FieldCode))
			if _, dup := u.seen[key]; dup {
				continue
			}
			u.seen[key] = struct{}{}
			out = append(out, c)
		}
		return err
	})
	return out, err
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
