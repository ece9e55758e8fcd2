package machine

import "testing"

func TestBuilder_TwoByTwoDiscovery(t *testing.T) {
	b := NewBuilder(2, 2)
	b.AddChip(ChipCoord{0, 0})
	b.AddChip(ChipCoord{1, 0})
	b.AddChip(ChipCoord{1, 1})
	b.AddChip(ChipCoord{0, 1})

	if err := b.AddLink(ChipCoord{0, 0}, 0, ChipCoord{1, 0}); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if err := b.AddLink(ChipCoord{0, 0}, 1, ChipCoord{1, 1}); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if err := b.AddLink(ChipCoord{0, 0}, 2, ChipCoord{0, 1}); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	m := b.Build()
	if m.NumChips() != 4 {
		t.Fatalf("NumChips() = %d, want 4", m.NumChips())
	}

	origin, ok := m.Chip(ChipCoord{0, 0})
	if !ok {
		t.Fatal("expected chip (0,0)")
	}
	if origin.Router.Links[0] == nil || origin.Router.Links[0].Destination != (ChipCoord{1, 0}) {
		t.Error("expected link 0 from (0,0) to (1,0)")
	}

	neighbour, ok := m.Chip(ChipCoord{1, 0})
	if !ok {
		t.Fatal("expected chip (1,0)")
	}
	// opposite of link 0 is 0^3 = 3
	opposite := neighbour.Router.Links[3]
	if opposite == nil {
		t.Fatal("expected default-route link patched on (1,0)")
	}
	if opposite.Destination != (ChipCoord{0, 0}) {
		t.Errorf("opposite link destination = %s, want (0,0)", opposite.Destination)
	}
	if !opposite.DefaultRoute {
		t.Error("patched opposite link should be marked DefaultRoute")
	}
}

func TestAddLink_UnknownChips(t *testing.T) {
	b := NewBuilder(1, 1)
	b.AddChip(ChipCoord{0, 0})
	if err := b.AddLink(ChipCoord{0, 0}, 0, ChipCoord{9, 9}); err == nil {
		t.Error("expected error linking to an unadded destination chip")
	}
	if err := b.AddLink(ChipCoord{9, 9}, 0, ChipCoord{0, 0}); err == nil {
		t.Error("expected error linking from an unadded source chip")
	}
}

func TestAddLink_InvalidID(t *testing.T) {
	b := NewBuilder(1, 1)
	b.AddChip(ChipCoord{0, 0})
	b.AddChip(ChipCoord{1, 0})
	if err := b.AddLink(ChipCoord{0, 0}, 6, ChipCoord{1, 0}); err == nil {
		t.Error("expected error for link id out of range")
	}
}

func TestAddChip_Idempotent(t *testing.T) {
	b := NewBuilder(1, 1)
	first := b.AddChip(ChipCoord{0, 0})
	second := b.AddChip(ChipCoord{0, 0})
	if first != second {
		t.Error("AddChip should return the same Chip pointer for a repeated coordinate")
	}
}

func TestChipCoordString(t *testing.T) {
	if got := (ChipCoord{3, 4}).String(); got != "(3,4)" {
		t.Errorf("String() = %q, want (3,4)", got)
	}
}
