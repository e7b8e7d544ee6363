// SPDX-License-Identifier: Apache-2.0

package datamodel

import "strconv"

// Calculator applies a sequence of declarative MigrationSteps to a base
// Datamodel to produce the next Datamodel. It is pure and deterministic:
// it consults no database state.
type Calculator struct{}

// NewCalculator returns a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Infer applies each step in steps, in order, to a working copy of base and
// returns the resulting Datamodel. base is never mutated.
func (c *Calculator) Infer(base *Datamodel, steps MigrationSteps) (*Datamodel, error) {
	dm := base.Clone()
	for i, step := range steps {
		if err := step.Apply(dm); err != nil {
			return nil, InvariantViolation{
				Reason: errStepContext(i, step, err),
			}
		}
	}
	return dm, nil
}

func errStepContext(i int, step MigrationStep, err error) string {
	return string(StepNameOf(step)) + " (step " + strconv.Itoa(i) + "): " + err.Error()
}
