// Package prompt builds structured LLM prompts and sends them through a
// configurable provider. The templates encode a few proven shapes for
// asking a model to do analytic work; the resolve pipeline itself never
// depends on them.
package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// Optimize wraps a raw prompt in instructions asking the model to return
// an improved version of it, and nothing else
func Optimize(raw string) string {
	return fmt.Sprintf(`You are a world class prompt engineer. Improve and enhance this prompt: %s

Guidelines:
- Use your analytical prowess and creative imagination to return a stellar prompt.
- Output only the revised prompt, with no explanation of the changes.`, raw)
}

// TOCD is the Task, Output, Context, Data template
type TOCD struct {
	Task    string
	Output  string
	Context string
	Data    string
}

// Validate checks that every section is filled in
func (p TOCD) Validate() error {
	return requireSections(map[string]string{
		"task":    p.Task,
		"output":  p.Output,
		"context": p.Context,
		"data":    p.Data,
	})
}

// Render expands the template into the final prompt text
func (p TOCD) Render() string {
	return fmt.Sprintf(`Complete this task: %s.

Format for output: %s

To ensure relevance remember: %s

Here is data you need for your response: %s`, p.Task, p.Output, p.Context, p.Data)
}

// RTAO is the Role, Task, Audience, Output template
type RTAO struct {
	Role     string
	Task     string
	Audience string
	Output   string
}

// Validate checks that every section is filled in
func (p RTAO) Validate() error {
	return requireSections(map[string]string{
		"role":     p.Role,
		"task":     p.Task,
		"audience": p.Audience,
		"output":   p.Output,
	})
}

// Render expands the template into the final prompt text
func (p RTAO) Render() string {
	return fmt.Sprintf(`Act as a %s.

Accomplish this task: %s.

The target audience for your response is: %s.

Your response should conform to this output: %s`, p.Role, p.Task, p.Audience, p.Output)
}

// Ultimate is the fully specified template: Role, Behavior, Task,
// Structure, Constraints, Data
type Ultimate struct {
	Role        string
	Behavior    string
	Task        string
	Structure   string
	Constraints string
	Data        string
}

// Validate checks that every section is filled in
func (p Ultimate) Validate() error {
	return requireSections(map[string]string{
		"role":        p.Role,
		"behavior":    p.Behavior,
		"task":        p.Task,
		"structure":   p.Structure,
		"constraints": p.Constraints,
		"data":        p.Data,
	})
}

// Render expands the template into the final prompt text
func (p Ultimate) Render() string {
	return fmt.Sprintf(`Act as a %s. Your key traits are %s.

Help me with this task: %s.

Your response should be formatted like this: %s.

Note: here are the relevant constraints: %s

You can reference this data to help you with your response: %s`,
		p.Role, p.Behavior, p.Task, p.Structure, p.Constraints, p.Data)
}

// requireSections reports the alphabetically first empty section so error
// messages are deterministic
func requireSections(sections map[string]string) error {
	var missing []string
	for name, value := range sections {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("template section %q is required", missing[0])
}
