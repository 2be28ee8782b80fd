package pubgrub_test

import (
	"testing"

	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/pubgrub"
)

func TestTermRelationToSatisfiedContradictedInconclusive(t *testing.T) {
	term := pubgrub.Positive(mustRange(t, ">=2.0"))

	satisfied := pubgrub.Positive(mustRange(t, ">=3.0"))
	if term.RelationTo(satisfied) != pubgrub.RelationSatisfied {
		t.Error("assignment entailing term should be Satisfied")
	}

	contradicted := pubgrub.Positive(mustRange(t, "<1.0"))
	if term.RelationTo(contradicted) != pubgrub.RelationContradicted {
		t.Error("disjoint assignment should be Contradicted")
	}

	inconclusive := pubgrub.Positive(mustRange(t, ">=1.0"))
	if term.RelationTo(inconclusive) != pubgrub.RelationInconclusive {
		t.Error("overlapping-but-not-entailing assignment should be Inconclusive")
	}
}

func TestPartialSolutionDecisionAndDerivation(t *testing.T) {
	ps := pubgrub.NewPartialSolution()

	ps.AddDecision("root", mustVersion(t, "0"))

	if ps.Level() != 1 {
		t.Errorf("level = %d, want 1", ps.Level())
	}

	ps.AddDerivation("a", pubgrub.Positive(mustRange(t, ">=1.0")), 0)

	v, decided := ps.Decided("a")
	if decided {
		t.Errorf("a should not be decided yet, got %v", v)
	}

	if !ps.Term("a").AsRange().Equals(mustRange(t, ">=1.0")) {
		t.Error("a's term should reflect the derivation")
	}

	ps.AddDecision("a", mustVersion(t, "1.5"))

	if v, ok := ps.Decided("a"); !ok || v.String() != "1.5" {
		t.Errorf("a should be decided at 1.5, got %v", v)
	}
}

func TestPartialSolutionBacktrackUndoesLaterLevels(t *testing.T) {
	ps := pubgrub.NewPartialSolution()

	ps.AddDecision("root", mustVersion(t, "0"))
	ps.AddDecision("a", mustVersion(t, "1.0"))
	ps.AddDerivation("b", pubgrub.Positive(mustRange(t, ">=1.0")), 0)
	ps.AddDecision("b", mustVersion(t, "1.0"))

	if ps.Level() != 3 {
		t.Fatalf("level = %d, want 3", ps.Level())
	}

	ps.Backtrack(1)

	if ps.Level() != 1 {
		t.Errorf("level after backtrack = %d, want 1", ps.Level())
	}

	if _, ok := ps.Decided("a"); ok {
		t.Error("a's decision should be undone by backtrack")
	}

	if _, ok := ps.Decided("b"); ok {
		t.Error("b's decision should be undone by backtrack")
	}

	if _, ok := ps.Decided("root"); !ok {
		t.Error("root's decision at level 1 should survive backtracking to level 1")
	}
}

func TestPartialSolutionRelationClassification(t *testing.T) {
	ps := pubgrub.NewPartialSolution()
	ps.AddDecision("root", mustVersion(t, "0"))

	incomp := pubgrub.FromDependency("root", pep440.Full(), mustRange(t, ">=1.0"), "a")

	rel, unsatisfied := ps.Relation(incomp)
	if rel != pubgrub.IncompatAlmostSatisfied || unsatisfied != "a" {
		t.Errorf("Relation = (%v, %q), want (AlmostSatisfied, a)", rel, unsatisfied)
	}

	ps.AddDerivation("a", pubgrub.Negative(mustRange(t, ">=1.0")), 0)

	rel, _ = ps.Relation(incomp)
	if rel != pubgrub.IncompatSatisfied {
		t.Errorf("Relation after contradicting derivation = %v, want Satisfied", rel)
	}
}
