package store

import (
	"testing"

	"gorm.io/datatypes"

	"hotelplan/pkg/domain"
)

func TestProjectFromModelDecodesIssues(t *testing.T) {
	p, err := projectFromModel(ProjectModel{
		ID:            "p1",
		Status:        string(domain.StatusCostsReady),
		NonCompliance: datatypes.JSON(`[{"type":"error","message":"needs 4 accessible rooms"}]`),
	})
	if err != nil {
		t.Fatalf("project from model: %v", err)
	}
	if p.Status != domain.StatusCostsReady || len(p.NonCompliance) != 1 {
		t.Fatalf("unexpected project: %+v", p)
	}
}

func TestProjectFromModelRejectsCorruptIssues(t *testing.T) {
	_, err := projectFromModel(ProjectModel{
		ID:            "p1",
		Status:        string(domain.StatusCostsReady),
		NonCompliance: datatypes.JSON(`{"not":"a list"`),
	})
	if err == nil {
		t.Fatal("expected corrupt non-compliance to fail decoding")
	}
}
