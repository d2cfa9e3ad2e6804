// Package species turns raw classifier labels into the names that we show to users
package species

import (
	"strings"
	"unicode"
)

const (
	Blank   = "blank"   // Classifier label for an empty frame
	Unknown = "Unknown" // Label when the classifier had nothing to say
	Human   = "Human"   // Label for all tracks in human detection mode
	Animal  = "Animal"  // Label for all tracks in all-animals mode
)

// Clean converts a raw classifier label such as
// "a1b2;mammalia;carnivora;felidae;panthera;pardus;leopard" or "panthera_snow-leopard"
// into a display name such as "Leopard".
// If synonyms is nil, no synonym mapping is performed.
func Clean(raw string, synonyms *Synonyms) string {
	label := strings.ToLower(raw)
	if i := strings.LastIndexByte(label, ';'); i != -1 {
		label = label[i+1:]
	}
	if i := strings.LastIndexByte(label, '_'); i != -1 {
		label = label[i+1:]
	}
	label = strings.NewReplacer("-", " ", ".", " ").Replace(label)
	cleaned := titleCase(strings.TrimSpace(label))
	if synonyms != nil {
		if canonical, ok := synonyms.Lookup(cleaned); ok {
			return canonical
		}
	}
	return cleaned
}

// IsBlank returns true if the label is the classifier's "nothing here" answer
func IsBlank(label string) bool {
	return strings.EqualFold(label, Blank)
}

// Upper case the first letter of every run of letters, and lower case the rest
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}
