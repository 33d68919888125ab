package domain

import (
	"fmt"
	"strings"
)

// ProjectStatus is the pipeline lifecycle of a project. The stored value is the
// pipeline spelling; Label gives the presentation spelling.
type ProjectStatus string

const (
	StatusDraft       ProjectStatus = "draft"
	StatusNeedsRecalc ProjectStatus = "needs_recalc"
	StatusCostsReady  ProjectStatus = "costs_ready"
	StatusCompliant   ProjectStatus = "compliant"
)

var statusLabels = map[ProjectStatus]string{
	StatusDraft:       "Draft",
	StatusNeedsRecalc: "Needs Re-calc",
	StatusCostsReady:  "Costs Ready",
	StatusCompliant:   "Compliant",
}

// Label returns the presentation form, e.g. "Needs Re-calc".
func (s ProjectStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return statusLabels[StatusDraft]
}

func (s ProjectStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// ParseProjectStatus accepts either the pipeline or the presentation spelling.
func ParseProjectStatus(raw string) (ProjectStatus, error) {
	value := strings.TrimSpace(raw)
	if s := ProjectStatus(value); s.Valid() {
		return s, nil
	}
	for status, label := range statusLabels {
		if strings.EqualFold(value, label) || strings.EqualFold(value, string(status)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown project status %q", raw)
}
