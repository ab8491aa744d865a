package validation

import (
	"testing"

	"github.com/smtlab/scheduler/internal/model"
)

func solvers(ids ...string) []model.Solver {
	out := make([]model.Solver, len(ids))
	for i, id := range ids {
		out[i] = model.Solver{ID: id, ValidationSolver: true}
	}
	return out
}

func TestDecide_NonDefinitiveShortCircuits(t *testing.T) {
	result := model.Result{ID: "r1", Result: "unknown"}

	ids, reason := Decide(result, solvers("s1", "s2"))
	if reason != ReasonNotDefinitive {
		t.Fatalf("expected ReasonNotDefinitive, got %v", reason)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no solvers to validate, got %v", ids)
	}
}

func TestDecide_UnsatShortCircuits(t *testing.T) {
	result := model.Result{ID: "r1", Result: model.ResultUnsat}

	ids, reason := Decide(result, solvers("s1"))
	if reason != ReasonUnsat {
		t.Fatalf("expected ReasonUnsat, got %v", reason)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no solvers to validate, got %v", ids)
	}
}

func TestDecide_ExistingDisagreementShortCircuits(t *testing.T) {
	result := model.Result{
		ID:     "r1",
		Result: model.ResultSat,
		Validations: []model.Validation{
			{SolverID: "s1", Result: model.ResultUnsat},
		},
	}

	ids, reason := Decide(result, solvers("s1", "s2"))
	if reason != ReasonDisagreement {
		t.Fatalf("expected ReasonDisagreement, got %v", reason)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no solvers to validate, got %v", ids)
	}
}

func TestDecide_ReturnsSolversNotAlreadyUsed(t *testing.T) {
	result := model.Result{
		ID:     "r1",
		Result: model.ResultSat,
		Validations: []model.Validation{
			{SolverID: "s1", Validation: model.ValidationValid},
		},
	}

	ids, reason := Decide(result, solvers("s1", "s2", "s3"))
	if reason != ReasonNone {
		t.Fatalf("expected ReasonNone, got %v", reason)
	}
	if len(ids) != 2 || ids[0] != "s2" || ids[1] != "s3" {
		t.Fatalf("expected [s2 s3], got %v", ids)
	}
}

func TestDecide_IgnoresNonValidationSolvers(t *testing.T) {
	result := model.Result{ID: "r1", Result: model.ResultSat}
	mixedSolvers := []model.Solver{
		{ID: "s1", ValidationSolver: true},
		{ID: "s2", ValidationSolver: false},
	}

	ids, reason := Decide(result, mixedSolvers)
	if reason != ReasonNone {
		t.Fatalf("expected ReasonNone, got %v", reason)
	}
	if len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("expected [s1], got %v", ids)
	}
}

func TestDecide_AgreeingValidationDoesNotShortCircuit(t *testing.T) {
	result := model.Result{
		ID:     "r1",
		Result: model.ResultSat,
		Validations: []model.Validation{
			{SolverID: "s1", Result: model.ResultSat},
		},
	}

	ids, reason := Decide(result, solvers("s1", "s2"))
	if reason != ReasonNone {
		t.Fatalf("expected ReasonNone, got %v", reason)
	}
	// s1's agreement is inferred from a result entry, not a direct
	// validation, so it does not consume s1's validation slot.
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Fatalf("expected [s1 s2], got %v", ids)
	}
}

func TestDecide_InconclusiveValidationDoesNotCountAsDisagreement(t *testing.T) {
	result := model.Result{
		ID:     "r1",
		Result: model.ResultSat,
		Validations: []model.Validation{
			{SolverID: "s1", Validation: model.ValidationInconclusive},
		},
	}

	ids, reason := Decide(result, solvers("s1", "s2"))
	if reason != ReasonNone {
		t.Fatalf("expected ReasonNone, got %v", reason)
	}
	if len(ids) != 1 || ids[0] != "s2" {
		t.Fatalf("expected [s2], got %v", ids)
	}
}

func TestNeedsSolverLookup_MatchesDecideShortCircuits(t *testing.T) {
	cases := []model.Result{
		{Result: "unknown"},
		{Result: model.ResultUnsat},
		{Result: model.ResultSat, Validations: []model.Validation{{SolverID: "s1", Result: model.ResultUnsat}}},
	}

	for _, result := range cases {
		needsLookup, reason := NeedsSolverLookup(result)
		if needsLookup {
			t.Fatalf("expected no lookup needed for %+v, got reason %v", result, reason)
		}
		_, decideReason := Decide(result, nil)
		if decideReason != reason {
			t.Fatalf("NeedsSolverLookup/Decide reason mismatch: %v vs %v", reason, decideReason)
		}
	}
}

func TestNeedsSolverLookup_TrueWhenDecisionRequiresSolvers(t *testing.T) {
	result := model.Result{Result: model.ResultSat}
	needsLookup, reason := NeedsSolverLookup(result)
	if !needsLookup {
		t.Fatalf("expected lookup to be needed, got short-circuit reason %v", reason)
	}
}
