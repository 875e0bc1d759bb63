package schemas

// -- Task Schemas --

// Task is the unit of work supplied by the evaluation sandbox. It is
// immutable for the lifetime of the task; Tests drives success-criteria
// analysis and keeps whatever shape the sandbox sent.
type Task struct {
	ID          string                   `json:"id"`
	Instruction string                   `json:"instruction"`
	Prompt      string                   `json:"prompt,omitempty"`
	Objective   string                   `json:"objective,omitempty"`
	URL         string                   `json:"url,omitempty"`
	Tests       []map[string]interface{} `json:"tests,omitempty"`
}

// Goal returns the natural-language instruction, tolerating the alternate
// field names sandboxes use for it.
func (t *Task) Goal() string {
	if t.Instruction != "" {
		return t.Instruction
	}
	if t.Prompt != "" {
		return t.Prompt
	}
	return t.Objective
}

// StepHistoryEntry records the sandbox-reported outcome of one prior step.
// The sandbox is the ground truth for execution success; the pipeline never
// invents ExecOK or Error.
type StepHistoryEntry struct {
	Step       int    `json:"step"`
	ActionType string `json:"action"`
	Text       string `json:"text,omitempty"`
	ExecOK     bool   `json:"exec_ok"`
	Error      string `json:"error,omitempty"`
}

// DecisionRequest is the inbound payload for one decision step: the task,
// the raw page snapshot, and the execution history so far.
type DecisionRequest struct {
	Task         Task               `json:"task"`
	SnapshotHTML string             `json:"snapshot_html"`
	URL          string             `json:"url"`
	StepIndex    int                `json:"step_index"`
	History      []StepHistoryEntry `json:"history"`
}

// MemoryEntry is one retained slice of the model's reasoning from an
// earlier step, replayed into later prompts so decisions stay coherent
// across otherwise stateless calls.
type MemoryEntry struct {
	Step     int    `json:"step"`
	Thinking string `json:"thinking"`
}
