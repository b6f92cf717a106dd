package document

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Weights are the coefficients of the extraction confidence score. They are
// heuristics and are meant to be tuned through configuration.
type Weights struct {
	// Base is granted when the text is longer than BaseMinLength.
	Base          float64 `yaml:"base" json:"base"`
	BaseMinLength int     `yaml:"base_min_length" json:"base_min_length"`

	Sections map[Section]float64 `yaml:"sections" json:"sections"`

	// The score is multiplied by ShortFactor below ShortBelow characters and
	// by LongFactor above LongAbove characters.
	ShortBelow  int     `yaml:"short_below" json:"short_below"`
	ShortFactor float64 `yaml:"short_factor" json:"short_factor"`
	LongAbove   int     `yaml:"long_above" json:"long_above"`
	LongFactor  float64 `yaml:"long_factor" json:"long_factor"`

	// Identity is added when both the course code and name were found.
	Identity float64 `yaml:"identity" json:"identity"`
}

// DefaultWeights returns the stock coefficients.
func DefaultWeights() Weights {
	return Weights{
		Base:          0.2,
		BaseMinLength: 100,
		Sections: map[Section]float64{
			Objectives:   0.15,
			Content:      0.20,
			Methodology:  0.10,
			Evaluation:   0.10,
			Bibliography: 0.15,
			Competencies: 0.10,
		},
		ShortBelow:  500,
		ShortFactor: 0.7,
		LongAbove:   10000,
		LongFactor:  0.9,
		Identity:    0.1,
	}
}

// Validate rejects negative weights, multipliers outside (0,1] and section
// weights summing to 1 or more.
func (w Weights) Validate() error {
	var errs []error
	if w.Base < 0 || w.Identity < 0 {
		errs = append(errs, errors.New("base and identity weights must be >= 0"))
	}
	sum := 0.0
	for sec, v := range w.Sections {
		if v < 0 {
			errs = append(errs, fmt.Errorf("section %s: weight must be >= 0", sec))
		}
		sum += v
	}
	if sum >= 1 {
		errs = append(errs, fmt.Errorf("section weights sum to %.2f; must be < 1", sum))
	}
	if w.ShortFactor <= 0 || w.ShortFactor > 1 || w.LongFactor <= 0 || w.LongFactor > 1 {
		errs = append(errs, errors.New("length factors must be in (0,1]"))
	}
	return errors.Join(errs...)
}

// Score computes the confidence of an extraction from the cleaned text, the
// sections found and whether the course was identified. The result is
// clamped to [0,1].
func (w Weights) Score(text string, s Sections, identified bool) float64 {
	n := utf8.RuneCountInString(text)
	score := 0.0
	if n > w.BaseMinLength {
		score += w.Base
	}
	for _, sec := range s.Found() {
		score += w.Sections[sec]
	}
	switch {
	case w.ShortBelow > 0 && n < w.ShortBelow:
		score *= w.ShortFactor
	case w.LongAbove > 0 && n > w.LongAbove:
		score *= w.LongFactor
	}
	if identified {
		score += w.Identity
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
