package pipeline

import (
	"testing"

	"github.com/use-agent/logosim/models"
)

func TestChain(t *testing.T) {
	var a, b []models.Phase
	fn := Chain(
		func(p models.Progress) { a = append(a, p.Phase) },
		nil,
		func(p models.Progress) { b = append(b, p.Phase) },
	)
	fn(models.Progress{Phase: models.PhaseExtract})
	fn(models.Progress{Phase: models.PhaseCluster})

	if len(a) != 2 || len(b) != 2 || a[1] != models.PhaseCluster || b[0] != models.PhaseExtract {
		t.Errorf("observers saw a=%v b=%v", a, b)
	}
}
