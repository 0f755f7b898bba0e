// Package types holds the layout vocabulary shared across packages: labels,
// regions, text fragments and page keys.
package types

import (
	"errors"
	"fmt"

	"github.com/jackzampolin/relayout/internal/geometry"
)

// ErrUnknownLabel is returned when a label is not part of the closed label set.
var ErrUnknownLabel = errors.New("unknown layout label")

// Label is the category assigned to a layout region.
type Label string

const (
	LabelPicture       Label = "Picture"
	LabelTable         Label = "Table"
	LabelListItem      Label = "List-item"
	LabelFormula       Label = "Formula"
	LabelPageHeader    Label = "Page-header"
	LabelPageFooter    Label = "Page-footer"
	LabelFootnote      Label = "Footnote"
	LabelTitle         Label = "Title"
	LabelSectionHeader Label = "Section-header"
	LabelCaption       Label = "Caption"
	LabelText          Label = "Text"
)

// Labels lists every known label.
var Labels = []Label{
	LabelPicture,
	LabelTable,
	LabelListItem,
	LabelFormula,
	LabelPageHeader,
	LabelPageFooter,
	LabelFootnote,
	LabelTitle,
	LabelSectionHeader,
	LabelCaption,
	LabelText,
}

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

// ParseLabel converts a string to a Label.
// Returns ErrUnknownLabel if the string is not recognized.
func ParseLabel(s string) (Label, error) {
	l := Label(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, s)
	}
	return l, nil
}

// Region is a labeled rectangle on a page.
// Text is only populated for regions synthesized from uncovered text.
type Region struct {
	Label Label         `json:"label"`
	Box   geometry.Rect `json:"box"`
	Text  string        `json:"text,omitempty"`
}

// Fragment is a single extracted character (or glyph run) with font metadata.
type Fragment struct {
	Box  geometry.Rect `json:"box"`
	Text string        `json:"text"`
	Font string        `json:"fontname"`
	Size int           `json:"size"`
}

// Signature returns the fragment's font signature.
func (f Fragment) Signature() FontSignature {
	return FontSignature{Font: f.Font, Size: f.Size}
}

// FontSignature identifies a font by name and rounded size.
type FontSignature struct {
	Font string `json:"font"`
	Size int    `json:"size"`
}

func (s FontSignature) String() string {
	return fmt.Sprintf("%s@%d", s.Font, s.Size)
}

// PageKey identifies a single page of a document.
type PageKey struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page_number"`
}

func (k PageKey) String() string {
	return fmt.Sprintf("%s/page/%d", k.DocumentID, k.Page)
}

// ValidateRegions checks that every region carries a known label.
func ValidateRegions(regions []Region) error {
	for i, r := range regions {
		if !r.Label.Valid() {
			return fmt.Errorf("region %d: %w: %q", i, ErrUnknownLabel, r.Label)
		}
	}
	return nil
}
