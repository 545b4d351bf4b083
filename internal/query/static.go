package query

import "github.com/cxr-association-engine/internal/domain"

const (
	// StaticConfidence is reported for complications taken from the static table.
	StaticConfidence = 65.0

	staticPerCondition = 2
)

// complicationTable is documented clinical knowledge, not learned from data.
var complicationTable = map[domain.Item][]domain.Item{
	"Pneumonia":     {"Sepsis", "Respiratory_Failure"},
	"Atelectasis":   {"Pneumonia", "Respiratory_Distress"},
	"Cardiomegaly":  {"Heart_Failure", "Cardiac_Arrest"},
	"Mass":          {"Metastasis", "Lung_Cancer"},
	"Consolidation": {"Pneumonia", "Lung_Abscess"},
}

// StaticComplications returns the table row for condition.
func StaticComplications(condition domain.Item) []domain.Item {
	return append([]domain.Item(nil), complicationTable[condition]...)
}

// staticComplications walks the sorted observed findings and takes the first
// entries of each table row. The group is bounded by the per-condition cap only.
func staticComplications(observed domain.Transaction) []domain.Association {
	out := []domain.Association{}
	for _, c := range observed {
		row := complicationTable[c]
		if len(row) > staticPerCondition {
			row = row[:staticPerCondition]
		}
		for _, comp := range row {
			out = append(out, domain.NewAssociation(comp, StaticConfidence, domain.COMPLICATION, string(c)+" → "+string(comp)))
		}
	}
	return out
}
