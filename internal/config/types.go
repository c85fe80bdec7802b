// Package config loads and validates the pipeline configuration.
package config

// Phase kinds understood by the engine.
const (
	KindSpec        = "spec"
	KindDecompose   = "decompose"
	KindDesign      = "design"
	KindImplement   = "implement"
	KindCrossReview = "cross_review"
	KindVerify      = "verify"
)

// Execution conditions a phase may declare.
const (
	CondAlways          = ""
	CondUnlessPlanGiven = "unless_plan_provided"
	CondIfFrontendTasks = "if_frontend_tasks"
)

// PipelineConfig is the top-level structure parsed from pipeline YAML.
type PipelineConfig struct {
	Pipeline Pipeline `yaml:"pipeline"`

	// Fingerprint is a hash of the raw config bytes, set by Load.
	Fingerprint string `yaml:"-"`
}

// Pipeline defines the full run: agents, defaults, ordered phases, and
// verification commands.
type Pipeline struct {
	Name     string           `yaml:"name"`
	Agents   map[string]Agent `yaml:"agents"`
	Defaults Defaults         `yaml:"defaults"`
	Phases   []Phase          `yaml:"phases"`
	Verify   Verify           `yaml:"verify"`
}

// Agent declares one collaborator identity the phases may reference.
type Agent struct {
	Command      string `yaml:"command"`
	Model        string `yaml:"model"`
	Instructions string `yaml:"instructions"`
	Timeout      string `yaml:"timeout"`
}

// Defaults holds values applied where phases or agents don't set their own.
type Defaults struct {
	Model           string `yaml:"model"`
	SessionTimeout  string `yaml:"session_timeout"`
	MaxCallAttempts int    `yaml:"max_call_attempts"`
	MaxParallel     int    `yaml:"max_parallel"`
}

// Phase is one configured stage of the pipeline.
type Phase struct {
	Kind      string       `yaml:"kind"`
	Agent     string       `yaml:"agent"`
	Reviews   []ReviewStep `yaml:"reviews"`
	Condition string       `yaml:"condition"`

	// Implement-phase options.
	Parallel bool        `yaml:"parallel"`
	QA       *ReviewStep `yaml:"qa"`

	// Guard settings for structural content (spec/design revisions).
	MinLengthRatio   float64  `yaml:"min_length_ratio"`
	RequiredSections []string `yaml:"required_sections"`
}

// ReviewStep configures one critique/revision loop.
type ReviewStep struct {
	Agent                string `yaml:"agent"`
	MaxIterations        int    `yaml:"max_iterations"`
	ApprovalKeyword      string `yaml:"approval_keyword"`
	ClarificationAgent   string `yaml:"clarification_agent"`
	ClarificationKeyword string `yaml:"clarification_keyword"`
}

// Verify configures the shell verification phase.
type Verify struct {
	Commands       []string `yaml:"commands"`
	MaxFixRounds   int      `yaml:"max_fix_rounds"`
	CommandTimeout string   `yaml:"command_timeout"`
	FixAgent       string   `yaml:"fix_agent"`
}
