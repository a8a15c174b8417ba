package framework

import (
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// Assertions provides test assertion helpers over a completed or
// in-progress soak run's iteration summaries.
type Assertions struct {
	t TestingT
}

// NewAssertions creates a new Assertions instance.
func NewAssertions(t TestingT) *Assertions {
	return &Assertions{t: t}
}

// VerdictIs asserts snapshot.Verdict equals want.
func (a *Assertions) VerdictIs(snapshot types.PostSoakSnapshot, want types.KPIVerdict) {
	a.t.Helper()
	if snapshot.Verdict != want {
		a.t.Fatalf("expected verdict %s, got %s", want, snapshot.Verdict)
	}
}
