// Package prompt builds the system and user messages sent to the model.
package prompt

import (
	"fmt"
	"strings"
)

// Mode selects the system prompt variant.
type Mode int

const (
	ModeAsk Mode = iota
	ModeEdit
)

// SystemOptions configures System.
type SystemOptions struct {
	Mode      Mode
	Workspace string   // shown to the model as the project root
	Tools     []string // names of the tools offered, empty when none
	Context   string   // CONTEXT.md content, already truncated
}

// System renders the system prompt.
func System(opts SystemOptions) string {
	var sb strings.Builder

	switch opts.Mode {
	case ModeEdit:
		sb.WriteString("You are an expert coding assistant that edits code files.\n")
	default:
		sb.WriteString("You are an expert and helpful coding assistant.\n")
	}
	if opts.Workspace != "" {
		fmt.Fprintf(&sb, "You are working in the project at %s. Relative paths are resolved from there.\n", opts.Workspace)
	}

	sb.WriteString("\n## Tools\n")
	if len(opts.Tools) == 0 {
		sb.WriteString("No tools are available. Answer from the information in the conversation.\n")
	} else {
		fmt.Fprintf(&sb, "You can call these tools: %s.\n", strings.Join(opts.Tools, ", "))
		sb.WriteString("Call a tool whenever you need to see files instead of guessing their contents. ")
		sb.WriteString("When you have enough information, stop calling tools and answer.\n")
	}

	if opts.Mode == ModeEdit {
		sb.WriteString("\n## Editing\n")
		sb.WriteString("1. Read the files involved before changing them.\n")
		sb.WriteString("2. Write every changed file with write_file, passing the complete new content. Never send a diff or a fragment.\n")
		sb.WriteString("3. Leave files the request does not need untouched.\n")
		sb.WriteString("4. Finish with a short summary of what you changed.\n")
	}

	if ctx := strings.TrimSpace(opts.Context); ctx != "" {
		sb.WriteString("\n## Project context\n")
		sb.WriteString("The project's CONTEXT.md follows. Prefer it over assumptions, but trust the files when they disagree.\n\n")
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Prompts for generating CONTEXT.md.
const (
	ContextWriterSystem = "You are a technical writer. Generate a markdown document and nothing else. " +
		"Do not use any tools. Just output the markdown content directly."

	contextWriterInstructions = "Based on the following real project files, write the contents of a CONTEXT.md file. " +
		"Include these sections:\n" +
		"- Project name and one-line description\n" +
		"- Tech stack and dependencies\n" +
		"- Directory structure overview\n" +
		"- Key files and what they do\n" +
		"- How to run the project\n" +
		"- Architecture notes\n\n" +
		"Output ONLY the markdown content, no explanation. " +
		"Base everything strictly on the file contents provided below.\n\n"
)

// ContextWriterUser wraps gathered project data in the CONTEXT.md request.
func ContextWriterUser(projectData string) string {
	return contextWriterInstructions + projectData
}
