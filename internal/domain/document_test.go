package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestDocumentID_DeterministicForSameInputs(t *testing.T) {
	id := uuid.New()
	a := DocumentID(id, "proj", "main", "src/file.go")
	b := DocumentID(id, "proj", "main", "src/file.go")
	if a != b {
		t.Errorf("expected the same id for identical inputs, got %q and %q", a, b)
	}
}

func TestDocumentID_DiffersOnAnyField(t *testing.T) {
	id := uuid.New()
	other := uuid.New()
	base := DocumentID(id, "proj", "main", "src/file.go")

	cases := []string{
		DocumentID(other, "proj", "main", "src/file.go"),
		DocumentID(id, "other", "main", "src/file.go"),
		DocumentID(id, "proj", "dev", "src/file.go"),
		DocumentID(id, "proj", "main", "src/other.go"),
	}
	for i, c := range cases {
		if c == base {
			t.Errorf("case %d: expected a different id when one field changes", i)
		}
	}
}

func TestDocumentID_IsHex(t *testing.T) {
	id := DocumentID(uuid.New(), "p", "v", "path")
	if len(id) != 64 {
		t.Errorf("expected a 64-char hex sha256 digest, got length %d", len(id))
	}
	for _, r := range id {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			t.Errorf("expected lowercase hex, found %q in %q", r, id)
			break
		}
	}
}

func TestPhase_Terminal(t *testing.T) {
	terminal := []Phase{PhaseCompleted, PhaseFailed, PhaseCancelled}
	for _, p := range terminal {
		if !p.Terminal() {
			t.Errorf("expected %q to be terminal", p)
		}
	}

	nonTerminal := []Phase{PhaseStarting, PhaseCloning, PhaseProcessing, PhaseIndexing}
	for _, p := range nonTerminal {
		if p.Terminal() {
			t.Errorf("expected %q to not be terminal", p)
		}
	}
}
