// Package plan builds rename plans from directory listings or mapping files.
package plan

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	goslug "github.com/gosimple/slug"
	"github.com/zeebo/blake3"

	"github.com/hassrename/hren/internal/pattern"
)

// ErrEmptyPlan is returned when there is nothing to rename.
var ErrEmptyPlan = errors.New("empty plan")

// Source identifies how a plan was produced.
type Source string

const (
	SourceDirectory Source = "directory"
	SourceMapping   Source = "mapping"
)

// Entity is an entity as reported by the directory.
type Entity struct {
	Label string `json:"friendly_name"`
	ID    string `json:"entity_id"`
}

// MappingRow is one row of a mapping file.
type MappingRow struct {
	Label string `json:"friendly_name" yaml:"friendly_name"`
	ID    string `json:"entity_id" yaml:"entity_id"`
	NewID string `json:"new_entity_id" yaml:"new_entity_id"`
}

// Row is a single planned rename. An empty NewID means the identifier
// is left alone.
type Row struct {
	OriginalLabel string `json:"friendly_name"`
	ID            string `json:"entity_id"`
	NewID         string `json:"new_entity_id,omitempty"`
	NewLabel      string `json:"new_friendly_name,omitempty"`
}

// LabelChanged reports whether the row requests a different label.
func (r Row) LabelChanged() bool {
	return r.NewLabel != r.OriginalLabel
}

// Rules are the compiled rules for rule-driven planning.
type Rules struct {
	ID    *pattern.Compiled
	Label *pattern.Compiled

	// IDFromLabel derives the new object id from the new label instead of
	// an identifier rule.
	IDFromLabel bool
}

// Plan is an ordered list of renames.
type Plan struct {
	Source Source
	Rules  Rules
	Rows   []Row
}

// RowError reports a mapping row that cannot be planned.
type RowError struct {
	Row     int // 1-based
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// SortByLabel returns a copy of entities sorted by label. Equal labels
// keep their relative order.
func SortByLabel(entities []Entity) []Entity {
	sorted := make([]Entity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Label < sorted[j].Label
	})
	return sorted
}

// FromEntities builds a rule-driven plan. Rows are sorted by label.
func FromEntities(entities []Entity, rules Rules) (*Plan, error) {
	if len(entities) == 0 {
		return nil, ErrEmptyPlan
	}

	sorted := SortByLabel(entities)
	rows := make([]Row, 0, len(sorted))
	for _, e := range sorted {
		newLabel, _ := rules.Label.Apply(e.Label)

		var newID string
		switch {
		case rules.ID.Active():
			// An empty result means no identifier change.
			newID, _ = rules.ID.Apply(e.ID)
		case rules.IDFromLabel:
			newID = IDFromLabel(e.ID, newLabel)
		}

		rows = append(rows, Row{
			OriginalLabel: e.Label,
			ID:            e.ID,
			NewID:         newID,
			NewLabel:      newLabel,
		})
	}

	return &Plan{Source: SourceDirectory, Rules: rules, Rows: rows}, nil
}

// FromMapping builds a file-driven plan. Row order is kept as-is and
// labels are never renamed.
func FromMapping(rows []MappingRow) (*Plan, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyPlan
	}

	out := make([]Row, 0, len(rows))
	for i, r := range rows {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return nil, &RowError{Row: i + 1, Message: "missing Current Entity ID"}
		}
		out = append(out, Row{
			OriginalLabel: r.Label,
			ID:            id,
			NewID:         strings.TrimSpace(r.NewID),
			NewLabel:      r.Label,
		})
	}

	return &Plan{Source: SourceMapping, Rows: out}, nil
}

// IDFromLabel returns "<domain>.<slug>" for label, keeping the domain of
// id. It returns "" when the label does not slugify to anything.
func IDFromLabel(id, label string) string {
	domain, _, ok := strings.Cut(id, ".")
	if !ok {
		return ""
	}
	objectID := ObjectIDSlug(label)
	if objectID == "" {
		return ""
	}
	return domain + "." + objectID
}

// ObjectIDSlug slugifies label into an object id ("Kitchen Lamp" -> "kitchen_lamp").
func ObjectIDSlug(label string) string {
	s := goslug.Make(label)
	return strings.ReplaceAll(s, "-", "_")
}

// Len returns the number of rows.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Rows)
}

// Applicable reports whether the plan requests anything of the platform.
// Rule-driven plans apply only with an identifier rule; a label rule on
// its own is a preview.
func (p *Plan) Applicable() bool {
	if p == nil || len(p.Rows) == 0 {
		return false
	}
	if p.Source == SourceMapping {
		return true
	}
	return p.Rules.ID.Active() || p.Rules.IDFromLabel
}

// LabelRuleActive reports whether new labels come from a label rule.
func (p *Plan) LabelRuleActive() bool {
	return p != nil && p.Source == SourceDirectory && p.Rules.Label.Active()
}

// MappingTable returns the rows in mapping-file form. New labels are not
// part of the mapping format.
func (p *Plan) MappingTable() []MappingRow {
	out := make([]MappingRow, 0, p.Len())
	for _, r := range p.Rows {
		out = append(out, MappingRow{Label: r.OriginalLabel, ID: r.ID, NewID: r.NewID})
	}
	return out
}

// LabelSample is one original -> new label pair.
type LabelSample struct {
	Original  string
	New       string
	Unchanged bool
}

// LabelSamples returns up to n label mappings from the start of the plan.
func (p *Plan) LabelSamples(n int) []LabelSample {
	if n > p.Len() {
		n = p.Len()
	}
	out := make([]LabelSample, 0, n)
	for _, r := range p.Rows[:n] {
		out = append(out, LabelSample{
			Original:  r.OriginalLabel,
			New:       r.NewLabel,
			Unchanged: !r.LabelChanged(),
		})
	}
	return out
}

// Fingerprint is a stable digest of the ordered rows.
func (p *Plan) Fingerprint() string {
	h := blake3.New()
	for _, r := range p.Rows {
		for _, field := range []string{r.ID, r.NewID, r.NewLabel} {
			h.Write([]byte(field))
			h.Write([]byte{0})
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
