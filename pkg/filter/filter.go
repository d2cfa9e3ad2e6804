// Package filter decides whether a file is worth keeping, based on what the user asked for
package filter

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/cyclopcam/trapsort/pkg/nn"
	"github.com/cyclopcam/trapsort/pkg/species"
)

var ErrInvalidMode = errors.New("Invalid detection mode")

// Detection modes
const (
	ModeDefault = ""
	ModeHuman   = "human"
	ModeAnimal  = "animal" // Equivalent to a target class of "Animal (All)"
)

// Kind is the resolved behaviour of a Filter
type Kind int

const (
	KindAny        Kind = iota // Keep anything with a detection, and show species names
	KindHuman                  // Detect people only
	KindAllAnimals             // Keep any animal, without running the species classifier
	KindSpecies                // Keep only the listed species
)

func (k Kind) String() string {
	switch k {
	case KindHuman:
		return "human"
	case KindAllAnimals:
		return "all-animals"
	case KindSpecies:
		return "species"
	}
	return "any"
}

// Filter is what the user asked us to look for
type Filter struct {
	DetectionMode string   `json:"detectionMode"`
	TargetClasses []string `json:"targetClasses"`
}

func New(detectionMode string, targetClasses []string) Filter {
	return Filter{
		DetectionMode: detectionMode,
		TargetClasses: targetClasses,
	}
}

// Normalize lower cases s and strips everything except letters and digits,
// so that "Animal (All)" becomes "animalall".
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsAnimalsAll returns true if any of the targets is a spelling of "Animal (All)"
func IsAnimalsAll(targets []string) bool {
	for _, t := range targets {
		n := Normalize(t)
		if strings.Contains(n, "animal") && strings.Contains(n, "all") {
			return true
		}
	}
	return false
}

func (f Filter) mode() string {
	return strings.ToLower(strings.TrimSpace(f.DetectionMode))
}

// Kind resolves the filter. Human mode takes precedence over the target classes.
func (f Filter) Kind() Kind {
	switch {
	case f.mode() == ModeHuman:
		return KindHuman
	case f.mode() == ModeAnimal || IsAnimalsAll(f.TargetClasses):
		return KindAllAnimals
	case len(f.TargetClasses) != 0:
		return KindSpecies
	}
	return KindAny
}

// Validate rejects detection modes that we don't understand
func (f Filter) Validate() error {
	switch f.mode() {
	case ModeDefault, ModeHuman, ModeAnimal:
		return nil
	}
	return fmt.Errorf("%w '%v' (expected '%v' or '%v')", ErrInvalidMode, f.DetectionMode, ModeHuman, ModeAnimal)
}

// ClassifiesSpecies is true if the species classifier must be consulted
func (f Filter) ClassifiesSpecies() bool {
	k := f.Kind()
	return k == KindSpecies || k == KindAny
}

// DetectorClass is the MegaDetector class that we ask the detector for
func (f Filter) DetectorClass() int {
	if f.Kind() == KindHuman {
		return nn.MegaDetectorPerson
	}
	return nn.MegaDetectorAnimal
}

// IsBlank returns true for the classifier's "nothing here" label.
// Blank boxes are neither drawn nor counted.
func (f Filter) IsBlank(label string) bool {
	return species.IsBlank(label)
}

// Accepts returns true if a frame (or image) with the given number of surviving boxes,
// and the given set of class names, satisfies the filter.
func (f Filter) Accepts(boxes int, classes []string) bool {
	if f.Kind() != KindSpecies {
		return boxes > 0
	}
	for _, c := range classes {
		for _, t := range f.TargetClasses {
			if strings.EqualFold(c, t) {
				return true
			}
		}
	}
	return false
}

// DisplayLabel is the text drawn next to a box
func (f Filter) DisplayLabel(speciesName string, speciesConfidence, detectorConfidence float32) string {
	switch f.Kind() {
	case KindHuman:
		return fmt.Sprintf("%v %.2f", species.Human, detectorConfidence)
	case KindAllAnimals:
		return fmt.Sprintf("%v %.2f", species.Animal, detectorConfidence)
	}
	return fmt.Sprintf("%v %.2f", speciesName, speciesConfidence)
}

// RecordClass is the class name that goes into the summary report
func (f Filter) RecordClass(speciesName string) string {
	switch f.Kind() {
	case KindHuman:
		return species.Human
	case KindAllAnimals:
		return species.Animal
	}
	return speciesName
}

func (f Filter) String() string {
	if len(f.TargetClasses) == 0 {
		return f.Kind().String()
	}
	return fmt.Sprintf("%v [%v]", f.Kind(), strings.Join(f.TargetClasses, ", "))
}
