// Package prompt holds the task-to-template prompt library. Templates are
// plain strings with a {text} placeholder; rendering is a substitution, not
// a templating engine, so prompts survive round-trips through YAML intact.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
)

const moduleName = "prompt"

// placeholder is the substring replaced with the document text.
const placeholder = "{text}"

// EmbeddedPrompts holds the raw prompt YAML, typically passed from main.go.
type EmbeddedPrompts []byte

// Library maps task names to prompt templates.
type Library struct {
	templates map[string]string
}

// NewLibrary parses the prompt YAML (a flat mapping of task name to
// template).
func NewLibrary(data EmbeddedPrompts) (*Library, error) {
	templates := make(map[string]string)
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &templates); err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to parse prompt library", err, false, false)
		}
	}
	return &Library{templates: templates}, nil
}

// Render fills the task template with the document text. Unknown tasks are
// an error; a template without the placeholder gets the text appended.
func (l *Library) Render(task, text string) (string, error) {
	template, ok := l.templates[task]
	if !ok {
		return "", exception.NewBatchError(moduleName, fmt.Sprintf("unknown prompt task '%s'", task), nil, false, false)
	}
	if !strings.Contains(template, placeholder) {
		return template + "\n\n" + text, nil
	}
	return strings.ReplaceAll(template, placeholder, text), nil
}

// Tasks returns the known task names in sorted order.
func (l *Library) Tasks() []string {
	tasks := make([]string, 0, len(l.templates))
	for task := range l.templates {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)
	return tasks
}
