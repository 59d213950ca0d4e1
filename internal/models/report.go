package models

import "time"

// PipelineKind names the ingestion pipeline chosen from the file extension.
type PipelineKind string

const (
	PipelinePaged   PipelineKind = "paged-document"
	PipelineSheet   PipelineKind = "structured-sheet"
	PipelineDiagram PipelineKind = "diagram"
)

// StepResult is the outcome of one conversion step.
type StepResult struct {
	Script string `json:"script"`
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
}

// IngestReport summarizes one ingestion. Count is the number of documents stored.
// Warnings flag suspicious output that did not stop the pipeline.
type IngestReport struct {
	File     string       `json:"file"`
	Kind     PipelineKind `json:"kind"`
	Count    int          `json:"count"`
	Steps    []StepResult `json:"steps,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// Role of a transcript message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Images  []Image   `json:"images,omitempty"`
	Time    time.Time `json:"time"`
}
