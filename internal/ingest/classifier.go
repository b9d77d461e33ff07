package ingest

import (
	"strings"

	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/config"
)

// DepartmentClassifier decides which department a delivery belongs to. Returning
// nil leaves the stored department untouched (null on a new row).
type DepartmentClassifier interface {
	Classify(p Payload) *calllogs.Department
}

// NewClassifier returns the classifier named by INGEST_DEPARTMENT_CLASSIFIER.
func NewClassifier(name string) DepartmentClassifier {
	if name == config.ClassifierHeuristic {
		return HeuristicClassifier{}
	}
	return ExplicitClassifier{}
}

// ExplicitClassifier trusts only the payload's department field.
type ExplicitClassifier struct{}

func (ExplicitClassifier) Classify(p Payload) *calllogs.Department {
	return parseDept(string(p.msg().Department))
}

// HeuristicClassifier falls back from the department field to call_classification
// and then to keyword counts over the summary and transcript. Ties classify nothing.
type HeuristicClassifier struct{}

var departmentKeywords = map[calllogs.Department][]string{
	calllogs.DepartmentSales: {
		"buy", "buying", "purchas", "financ", "lease", "test drive", "trade-in", "trade in",
		"new car", "used car", "inventory", "suv", "sedan", "truck", "down payment", "monthly payment",
	},
	calllogs.DepartmentService: {
		"service", "oil change", "maintenance", "repair", "check engine", "diagnostic",
		"tire rotation", "brake", "recall", "inspection", "warranty work", "mechanic",
	},
	calllogs.DepartmentParts: {
		"parts", "part number", "wiper", "floor mat", "air filter", "cabin filter", "accessor", "in stock",
		"oem", "replacement", "battery", "headlight bulb",
	},
}

func (HeuristicClassifier) Classify(p Payload) *calllogs.Department {
	m := p.msg()
	if d := parseDept(string(m.Department)); d != nil {
		return d
	}
	if d := parseDept(string(m.CallClassification)); d != nil {
		return d
	}

	text := strings.ToLower(string(m.Summary) + "\n" + string(m.Transcript))
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		best      calllogs.Department
		bestScore int
		tie       bool
	)
	for _, dept := range calllogs.Departments {
		score := 0
		for _, kw := range departmentKeywords[dept] {
			score += strings.Count(text, kw)
		}
		switch {
		case score > bestScore:
			best, bestScore, tie = dept, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if bestScore == 0 || tie {
		return nil
	}
	return &best
}

func parseDept(s string) *calllogs.Department {
	d, ok := calllogs.ParseDepartment(s)
	if !ok {
		return nil
	}
	return &d
}
