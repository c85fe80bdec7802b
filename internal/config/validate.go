package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedKinds is the set of valid phase kinds.
var recognizedKinds = map[string]bool{
	KindSpec:        true,
	KindDecompose:   true,
	KindDesign:      true,
	KindImplement:   true,
	KindCrossReview: true,
	KindVerify:      true,
}

// recognizedConditions is the set of valid phase execution conditions.
var recognizedConditions = map[string]bool{
	CondAlways:          true,
	CondUnlessPlanGiven: true,
	CondIfFrontendTasks: true,
}

// Validate checks a PipelineConfig for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *PipelineConfig) []ValidationError {
	var errs []ValidationError
	p := cfg.Pipeline

	if p.Name == "" {
		errs = append(errs, ValidationError{Field: "pipeline.name", Message: "is required"})
	}
	if len(p.Phases) == 0 {
		errs = append(errs, ValidationError{Field: "pipeline.phases", Message: "at least one phase is required"})
	}

	agentRef := func(field, id string) {
		if id == "" {
			errs = append(errs, ValidationError{Field: field, Message: "agent is required"})
			return
		}
		if _, ok := p.Agents[id]; !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("references undefined agent %q", id),
			})
		}
	}

	for i, ph := range p.Phases {
		prefix := fmt.Sprintf("pipeline.phases[%d]", i)

		if !recognizedKinds[ph.Kind] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".kind",
				Message: fmt.Sprintf("unrecognized phase kind %q", ph.Kind),
			})
		}
		if !recognizedConditions[ph.Condition] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".condition",
				Message: fmt.Sprintf("unrecognized condition %q", ph.Condition),
			})
		}

		// Verify phases delegate to the shell, not an agent.
		if ph.Kind != KindVerify {
			agentRef(prefix+".agent", ph.Agent)
		}

		for j, step := range ph.Reviews {
			stepField := fmt.Sprintf("%s.reviews[%d]", prefix, j)
			agentRef(stepField+".agent", step.Agent)
			if step.ClarificationAgent != "" {
				agentRef(stepField+".clarification_agent", step.ClarificationAgent)
			}
		}
		if ph.QA != nil {
			agentRef(prefix+".qa.agent", ph.QA.Agent)
		}

		if ph.Parallel && ph.Kind != KindImplement {
			errs = append(errs, ValidationError{
				Field:   prefix + ".parallel",
				Message: "only implement phases support parallel execution",
			})
		}
	}

	for id, a := range p.Agents {
		if a.Command == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.agents.%s.command", id),
				Message: "is required",
			})
		}
	}

	if p.Verify.FixAgent != "" {
		agentRef("pipeline.verify.fix_agent", p.Verify.FixAgent)
	}

	return errs
}
