// Package validation implements the validation decision engine
// (spec §4.4.5): a pure function of a result and the set of
// registered validation solvers, structured with no I/O so it can be
// unit tested without a queue or network (spec §9).
package validation

import "github.com/smtlab/scheduler/internal/model"

// tally counts how existing validations on a result classify against
// its reported outcome.
type tally struct {
	agreeing     int
	disagreeing  int
	inconclusive int
	alreadyUsed  map[string]bool
}

func tallyValidations(result model.Result) tally {
	t := tally{alreadyUsed: make(map[string]bool)}

	for _, v := range result.Validations {
		switch {
		case v.Validation != "":
			t.alreadyUsed[v.SolverID] = true
			switch v.Validation {
			case model.ValidationValid:
				t.agreeing++
			case model.ValidationInvalid:
				t.disagreeing++
			default:
				t.inconclusive++
			}
		case v.Result != "":
			if v.Result.IsDefinitive() {
				if v.Result == result.Result {
					t.agreeing++
				} else {
					t.disagreeing++
				}
			} else {
				t.inconclusive++
			}
		default:
			t.inconclusive++
		}
	}

	return t
}

// ShortCircuitReason names why Decide stopped without scheduling any
// validation, for metrics and logging.
type ShortCircuitReason string

const (
	ReasonNotDefinitive ShortCircuitReason = "not_definitive"
	ReasonUnsat         ShortCircuitReason = "unsat"
	ReasonDisagreement  ShortCircuitReason = "disagreement"
	ReasonNone          ShortCircuitReason = ""
)

// NeedsSolverLookup reports whether result requires the GET solvers
// call of spec §4.4.5 step 5 at all, letting a caller skip it when
// steps 2-4 already short-circuit. Returns false alongside the
// short-circuit reason when no lookup is needed.
func NeedsSolverLookup(result model.Result) (bool, ShortCircuitReason) {
	if !result.Result.IsDefinitive() {
		return false, ReasonNotDefinitive
	}
	if result.Result == model.ResultUnsat {
		return false, ReasonUnsat
	}
	if tallyValidations(result).disagreeing > 0 {
		return false, ReasonDisagreement
	}
	return true, ReasonNone
}

// Decide implements spec §4.4.5 steps 2-5: given a result (with its
// validations already loaded) and the full set of registered
// solvers, returns the solver IDs that must independently validate
// it, plus the short-circuit reason when none are returned because
// of an early exit (as opposed to "every validation solver was
// already used").
func Decide(result model.Result, solvers []model.Solver) ([]string, ShortCircuitReason) {
	if !result.Result.IsDefinitive() {
		return nil, ReasonNotDefinitive
	}

	t := tallyValidations(result)

	if result.Result == model.ResultUnsat {
		return nil, ReasonUnsat
	}
	if t.disagreeing > 0 {
		return nil, ReasonDisagreement
	}

	var toValidate []string
	for _, s := range solvers {
		if !s.ValidationSolver {
			continue
		}
		if t.alreadyUsed[s.ID] {
			continue
		}
		toValidate = append(toValidate, s.ID)
	}

	return toValidate, ReasonNone
}
