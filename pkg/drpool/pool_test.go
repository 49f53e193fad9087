package drpool

import (
	"testing"

	"github.com/sedaoverlay/node/pkg/drtypes"
)

func TestInsertAndGetDR(t *testing.T) {
	p := New()
	dr := &drtypes.DataRequest{ID: "dr1", Status: drtypes.StatusCommitting}
	p.InsertDR(dr)

	got := p.GetDR("dr1")
	if got == nil || got.ID != "dr1" {
		t.Fatalf("expected dr1, got %v", got)
	}
	if got == dr {
		t.Fatal("GetDR must return a clone, not the stored pointer")
	}
	if p.GetDR("missing") != nil {
		t.Fatal("expected nil for unknown id")
	}
}

func TestDeleteDRCascades(t *testing.T) {
	p := New()
	p.InsertDR(&drtypes.DataRequest{ID: "dr1"})
	p.InsertIdentityDR("dr1", "identA", 100, drtypes.StatusEligibleForExecution)
	p.InsertIdentityDR("dr1", "identB", 100, drtypes.StatusEligibleForExecution)

	if len(p.ListIdentityDRsForDR("dr1")) != 2 {
		t.Fatalf("expected 2 identity entries before delete")
	}

	p.DeleteDR("dr1")

	if p.HasDR("dr1") {
		t.Fatal("expected dr1 removed")
	}
	if got := p.ListIdentityDRsForDR("dr1"); len(got) != 0 {
		t.Fatalf("expected no surviving identity entries, got %d", len(got))
	}
	for _, idr := range p.ListIdentityDRs() {
		if idr.DRID == "dr1" {
			t.Fatalf("found orphaned identity entry %+v", idr)
		}
	}
}

func TestInsertIdentityDRRequiresParent(t *testing.T) {
	p := New()
	p.InsertIdentityDR("nonexistent", "identA", 1, drtypes.StatusEligibleForExecution)
	if p.HasIdentityDR("nonexistent", "identA") {
		t.Fatal("expected no identity entry without a parent DR")
	}
}

func TestInsertIdentityDRIsIdempotent(t *testing.T) {
	p := New()
	p.InsertDR(&drtypes.DataRequest{ID: "dr1"})
	p.InsertIdentityDR("dr1", "identA", 100, drtypes.StatusEligibleForExecution)

	idr := p.GetIdentityDR("dr1", "identA")
	idr.Status = drtypes.StatusExecuted

	p.InsertIdentityDR("dr1", "identA", 999, drtypes.StatusEligibleForExecution)
	again := p.GetIdentityDR("dr1", "identA")
	if again.Status != drtypes.StatusExecuted {
		t.Fatalf("expected in-place entry preserved, got status %s", again.Status)
	}
}

func TestDeleteIdentityDR(t *testing.T) {
	p := New()
	p.InsertDR(&drtypes.DataRequest{ID: "dr1"})
	p.InsertIdentityDR("dr1", "identA", 1, drtypes.StatusEligibleForExecution)
	p.DeleteIdentityDR("dr1", "identA")
	if p.HasIdentityDR("dr1", "identA") {
		t.Fatal("expected identity entry removed")
	}
	if !p.HasDR("dr1") {
		t.Fatal("deleting an identity entry must not remove the parent DR")
	}
}

func TestListDRsIsASnapshot(t *testing.T) {
	p := New()
	p.InsertDR(&drtypes.DataRequest{ID: "dr1"})
	p.InsertDR(&drtypes.DataRequest{ID: "dr2"})

	list := p.ListDRs()
	if len(list) != 2 {
		t.Fatalf("expected 2 DRs, got %d", len(list))
	}

	p.DeleteDR("dr1")
	if p.Len() != 1 {
		t.Fatalf("expected 1 DR after delete, got %d", p.Len())
	}
	if len(list) != 2 {
		t.Fatal("earlier snapshot must not be affected by later mutation")
	}
}
