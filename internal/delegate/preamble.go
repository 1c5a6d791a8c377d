package delegate

import (
	"sort"
	"strings"

	"parley/internal/connector"
)

// BuildPreamble composes the system instruction for a delegated run. It is
// pure string composition: the task, the connectors the run may use, and
// situational visibility into connectors that exist elsewhere but are
// disabled or not connected. The run must only call tools from the enabled
// set.
func BuildPreamble(task string, enabled []string, visible []connector.Toolkit) string {
	var b strings.Builder

	b.WriteString("You are a focused assistant executing one delegated task. ")
	b.WriteString("Use the tools available to you to complete it, then report the outcome.\n\n")

	b.WriteString("Task:\n")
	b.WriteString(strings.TrimSpace(task))
	b.WriteString("\n\n")

	b.WriteString("Connectors enabled for this task: ")
	b.WriteString(strings.Join(enabled, ", "))
	b.WriteString("\n")

	enabledSet := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		enabledSet[strings.ToUpper(name)] = struct{}{}
	}

	var disabled, disconnected []string
	for _, tk := range visible {
		name := strings.ToUpper(strings.TrimSpace(tk.Name))
		if name == "" {
			continue
		}
		if _, ok := enabledSet[name]; ok {
			continue
		}
		switch {
		case !tk.Connected:
			disconnected = append(disconnected, name)
		case !tk.Enabled:
			disabled = append(disabled, name)
		}
	}
	sort.Strings(disabled)
	sort.Strings(disconnected)

	if len(disabled) > 0 {
		b.WriteString("Connectors that exist but are disabled (do not use): ")
		b.WriteString(strings.Join(disabled, ", "))
		b.WriteString("\n")
	}
	if len(disconnected) > 0 {
		b.WriteString("Connectors that exist but are not connected (do not use): ")
		b.WriteString(strings.Join(disconnected, ", "))
		b.WriteString("\n")
	}

	b.WriteString("\nCall tools as needed. When the task is complete, write a concise summary of what was done.")
	return b.String()
}
