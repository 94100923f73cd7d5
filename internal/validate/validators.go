package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/pkg/frontmatter"
)

// HookEvents is the fixed vocabulary of hook event types.
var HookEvents = []string{
	"PreToolUse", "PostToolUse", "Notification", "UserPromptSubmit",
	"Stop", "SubagentStop", "SessionStart", "SessionEnd", "PreCompact",
}

func validHookEvent(name string) bool {
	for _, e := range HookEvents {
		if e == name {
			return true
		}
	}
	return false
}

// HookValidator checks hook JSON definitions.
type HookValidator struct{}

// Kind returns KindHooks.
func (*HookValidator) Kind() extension.Kind { return extension.KindHooks }

// Validate checks the required name/eventTypes/commands shape.
func (*HookValidator) Validate(path string, content []byte) *Result {
	res := newResult(path, extension.KindHooks)

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(content, &doc); err != nil {
		res.AddError(CodeParse, fmt.Sprintf("invalid JSON: %v", err))
		return res
	}

	requireString(res, doc, "name")

	if raw, ok := doc["eventTypes"]; !ok {
		res.AddError(CodeMissingField, "eventTypes").Suggestion =
			fmt.Sprintf("Add an eventTypes array with values from: %s", strings.Join(HookEvents, ", "))
	} else {
		var events []string
		if err := json.Unmarshal(raw, &events); err != nil {
			res.AddError(CodeWrongType, "eventTypes must be an array of strings")
		} else if len(events) == 0 {
			res.AddError(CodeInvalidValue, "eventTypes must not be empty")
		} else {
			for _, e := range events {
				if !validHookEvent(e) {
					res.AddError(CodeInvalidValue, fmt.Sprintf("unknown event type %q", e)).Suggestion =
						"Valid events: " + strings.Join(HookEvents, ", ")
				}
			}
			res.Metadata["events"] = events
		}
	}

	if raw, ok := doc["commands"]; !ok {
		res.AddError(CodeMissingField, "commands")
	} else {
		var commands []any
		if err := json.Unmarshal(raw, &commands); err != nil {
			res.AddError(CodeWrongType, "commands must be an array")
		}
	}

	if raw, ok := doc["matchers"]; ok {
		var matchers []string
		if err := json.Unmarshal(raw, &matchers); err != nil {
			res.AddError(CodeWrongType, "matchers must be an array of glob strings")
		}
	}

	warnMissingDescriptionJSON(res, doc)
	return res
}

// MCPValidator checks MCP server JSON definitions.
type MCPValidator struct{}

// Kind returns KindMCP.
func (*MCPValidator) Kind() extension.Kind { return extension.KindMCP }

// Validate checks the required name/command shape.
func (*MCPValidator) Validate(path string, content []byte) *Result {
	res := newResult(path, extension.KindMCP)

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(content, &doc); err != nil {
		res.AddError(CodeParse, fmt.Sprintf("invalid JSON: %v", err))
		return res
	}

	requireString(res, doc, "name")
	requireString(res, doc, "command")

	if raw, ok := doc["args"]; ok {
		var args []string
		if err := json.Unmarshal(raw, &args); err != nil {
			res.AddError(CodeWrongType, "args must be an array of strings")
		}
	}
	if raw, ok := doc["env"]; ok {
		var env map[string]string
		if err := json.Unmarshal(raw, &env); err != nil {
			res.AddError(CodeWrongType, "env must be a string-to-string mapping")
		}
	}

	warnMissingDescriptionJSON(res, doc)
	return res
}

// agentMatter is the front matter shape of agent files.
type agentMatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Model       any    `yaml:"model"`
	Tools       any    `yaml:"tools"`
	Color       string `yaml:"color"`
}

// AgentValidator checks agent markdown definitions.
type AgentValidator struct{}

// Kind returns KindAgents.
func (*AgentValidator) Kind() extension.Kind { return extension.KindAgents }

// Validate requires front matter with a name.
func (*AgentValidator) Validate(path string, content []byte) *Result {
	res := newResult(path, extension.KindAgents)

	var matter agentMatter
	doc, err := frontmatter.MustParse(content, &matter)
	if err != nil {
		res.AddError(CodeParse, fmt.Sprintf("invalid frontmatter: %v", err))
		return res
	}

	if matter.Name == "" {
		res.AddError(CodeMissingField, "name")
	} else {
		res.Metadata["name"] = matter.Name
	}
	if matter.Description == "" {
		res.AddWarning(CodeMissingField, "description is recommended")
	} else {
		res.Metadata["description"] = matter.Description
	}
	if matter.Tools != nil {
		if _, ok := matter.Tools.([]any); !ok {
			res.AddError(CodeWrongType, "tools must be an array")
		}
	}
	if matter.Model != nil {
		if m, ok := matter.Model.(string); !ok {
			res.AddError(CodeWrongType, "model must be a string")
		} else {
			res.Metadata["model"] = m
		}
	}
	if len(strings.TrimSpace(string(doc.Body))) == 0 {
		res.AddWarning(CodeEmptyBody, "agent has no instructions body")
	}
	return res
}

// commandMatter is the front matter shape of slash command files.
type commandMatter struct {
	Description  string `yaml:"description"`
	AllowedTools any    `yaml:"allowed-tools"`
	ArgumentHint string `yaml:"argument-hint"`
}

// Template variables a command body may reference.
const (
	TemplateArguments  = "$ARGUMENTS"
	TemplatePluginRoot = "${CLAUDE_PLUGIN_ROOT}"
)

// CommandValidator checks slash command markdown definitions.
type CommandValidator struct{}

// Kind returns KindCommands.
func (*CommandValidator) Kind() extension.Kind { return extension.KindCommands }

// Validate requires a description and records template variable usage.
func (*CommandValidator) Validate(path string, content []byte) *Result {
	res := newResult(path, extension.KindCommands)

	var matter commandMatter
	doc, err := frontmatter.Parse(content, &matter)
	if err != nil {
		res.AddError(CodeParse, fmt.Sprintf("invalid frontmatter: %v", err))
		return res
	}

	if matter.Description == "" {
		res.AddError(CodeMissingField, "description")
	} else {
		res.Metadata["description"] = matter.Description
	}

	body := string(doc.Body)
	var vars []string
	if strings.Contains(body, TemplateArguments) {
		vars = append(vars, TemplateArguments)
	}
	if strings.Contains(body, TemplatePluginRoot) {
		vars = append(vars, TemplatePluginRoot)
	}
	if len(vars) > 0 {
		res.Metadata["template_variables"] = vars
	}
	if len(strings.TrimSpace(body)) == 0 {
		res.AddWarning(CodeEmptyBody, "command has no body")
	}
	return res
}

// fragmentMatter is the optional front matter shape of fragments.
type fragmentMatter struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	Category    string   `yaml:"category"`
}

// FragmentValidator checks memory fragment markdown files, including the
// dangerous-pattern security scan of the body.
type FragmentValidator struct{}

// Kind returns KindFragments.
func (*FragmentValidator) Kind() extension.Kind { return extension.KindFragments }

// Validate treats front matter as optional and never blocks on content:
// security findings are warnings unless policy elevates them.
func (*FragmentValidator) Validate(path string, content []byte) *Result {
	res := newResult(path, extension.KindFragments)

	var matter fragmentMatter
	doc, err := frontmatter.Parse(content, &matter)
	if err != nil {
		res.AddError(CodeParse, fmt.Sprintf("invalid frontmatter: %v", err))
		return res
	}

	if matter.Title == "" {
		res.AddWarning(CodeMissingField, "title is recommended")
	}
	if matter.Title != "" {
		res.Metadata["title"] = matter.Title
	}
	if matter.Description != "" {
		res.Metadata["description"] = matter.Description
	}
	if len(matter.Tags) > 0 {
		res.Metadata["tags"] = matter.Tags
	}

	scanFragmentBody(res, string(doc.Body), doc.BodyLine)
	return res
}

// requireString adds MISSING_FIELD or WRONG_TYPE for a mandatory string key.
func requireString(res *Result, doc map[string]json.RawMessage, key string) {
	raw, ok := doc[key]
	if !ok {
		res.AddError(CodeMissingField, key)
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		res.AddError(CodeWrongType, key+" must be a non-empty string")
		return
	}
	res.Metadata[key] = s
}

func warnMissingDescriptionJSON(res *Result, doc map[string]json.RawMessage) {
	raw, ok := doc["description"]
	if !ok {
		res.AddWarning(CodeMissingField, "description is recommended")
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		res.Metadata["description"] = s
	}
}
