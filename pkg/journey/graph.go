package journey

import (
	"errors"
	"fmt"
	"slices"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/stepconfig"
)

var ErrInvalidGraph = errors.New("invalid journey graph")

// GraphError describes one structural problem of a journey.
type GraphError struct {
	JourneyID    int64
	StepID       int64
	ConnectionID int64
	Problem      string
}

func (e *GraphError) Error() string {
	switch {
	case e.ConnectionID != 0:
		return fmt.Sprintf("journey %d connection %d: %s", e.JourneyID, e.ConnectionID, e.Problem)
	case e.StepID != 0:
		return fmt.Sprintf("journey %d step %d: %s", e.JourneyID, e.StepID, e.Problem)
	default:
		return fmt.Sprintf("journey %d: %s", e.JourneyID, e.Problem)
	}
}

func (e *GraphError) Unwrap() error {
	return ErrInvalidGraph
}

// ValidateGraph checks the journey structure and, when validator is set, each
// active step's configuration. All problems are joined into one error.
func ValidateGraph(journey *models.Journey, validator *stepconfig.Validator) error {
	var errs []error

	problem := func(stepID, connectionID int64, format string, args ...any) {
		errs = append(errs, &GraphError{
			JourneyID:    journey.ID,
			StepID:       stepID,
			ConnectionID: connectionID,
			Problem:      fmt.Sprintf(format, args...),
		})
	}

	hasEntry := false

	for _, step := range journey.Steps {
		if step.IsEntryPoint && step.IsActive {
			hasEntry = true
		}

		if validator != nil && step.IsActive {
			err := validator.Validate(step)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	if !hasEntry {
		errs = append(errs, fmt.Errorf("journey %d: %w", journey.ID, ErrNoEntryPoint))
	}

	for _, connection := range journey.Connections {
		if _, ok := journey.StepByID(connection.FromStepID); !ok {
			problem(0, connection.ID, "from step %d is not part of the journey", connection.FromStepID)
		}

		if _, ok := journey.StepByID(connection.ToStepID); !ok {
			problem(0, connection.ID, "to step %d is not part of the journey", connection.ToStepID)
		}

		if connection.FromStepID == connection.ToStepID {
			problem(0, connection.ID, "connects step %d to itself", connection.FromStepID)
		}

		switch trigger := connection.Trigger.(type) {
		case nil:
			problem(0, connection.ID, "has no trigger")
		case models.DelayTrigger:
			if trigger.Seconds() <= 0 {
				problem(0, connection.ID, "delay must be positive")
			}
		case models.EventTrigger:
			if trigger.Name == "" {
				problem(0, connection.ID, "event trigger needs an event name")
			}
		case models.FunnelChangeTrigger:
			if trigger.FunnelStepID == 0 {
				problem(0, connection.ID, "funnel change trigger needs a funnel step")
			}
		case models.ConditionTrigger:
			if trigger.ConditionType == "" || trigger.FieldName == "" {
				problem(0, connection.ID, "condition trigger needs condition_type and field_name")
			}
		}
	}

	if cycle := immediateCycle(journey); cycle != nil {
		problem(cycle[0], 0, "immediate connections form a cycle %v", cycle)
	}

	return errors.Join(errs...)
}

// immediateCycle returns the step ids of a cycle made only of active
// immediate connections, or nil.
func immediateCycle(journey *models.Journey) []int64 {
	edges := make(map[int64][]int64)

	for _, connection := range journey.Connections {
		if !connection.IsActive {
			continue
		}

		if _, ok := connection.Trigger.(models.ImmediateTrigger); ok {
			edges[connection.FromStepID] = append(edges[connection.FromStepID], connection.ToStepID)
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)

	state := make(map[int64]int)
	path := make([]int64, 0)

	var visit func(stepID int64) []int64

	visit = func(stepID int64) []int64 {
		state[stepID] = visiting
		path = append(path, stepID)

		for _, next := range edges[stepID] {
			switch state[next] {
			case visiting:
				start := slices.Index(path, next)

				return slices.Clone(path[start:])
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		state[stepID] = visited
		path = path[:len(path)-1]

		return nil
	}

	for _, step := range journey.Steps {
		if state[step.ID] == unvisited {
			if cycle := visit(step.ID); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}
