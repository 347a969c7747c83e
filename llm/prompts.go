package llm

import (
	"fmt"
	"strings"
)

// Example is a reference project shown to the model.
type Example struct {
	Description string
	TechStack   []string
	Tree        string
}

func getSystemPrompt() string {
	return `You are an expert software architect. Your task is to propose the directory and file layout of a new software project from a short description.

Answer with the tree only. Put the project root directory on the first line. Write one entry per line, indent each level by two more spaces than its parent, and end every directory name with "/".

Do NOT use markdown code blocks and do NOT add explanations before or after the tree.`
}

// StructurePrompt asks for the layout of the described project. requirements
// and examples may be empty.
func StructurePrompt(description string, requirements []string, examples []Example) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project description: %s\n", description)

	if len(requirements) > 0 {
		b.WriteString("\nAdditional requirements:\n")
		for _, r := range requirements {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	if len(examples) > 0 {
		b.WriteString("\nHere are some similar project layouts for reference:\n")
		for i, ex := range examples {
			fmt.Fprintf(&b, "\nExample %d:\nDescription: %s\n", i+1, ex.Description)
			if len(ex.TechStack) > 0 {
				fmt.Fprintf(&b, "Tech stack: %s\n", strings.Join(ex.TechStack, ", "))
			}
			if ex.Tree != "" {
				fmt.Fprintf(&b, "Layout:\n%s", ex.Tree)
			}
		}
	}

	b.WriteString(`
Rules:
1. Always include README.md and .gitignore at the project root
2. Use appropriate file extensions for the tech stack
3. Follow language and framework conventions
4. Include common configuration files
5. Use lowercase names with hyphens or underscores
6. Use a single root directory named after the project

Generate the directory structure now:`)
	return b.String()
}

// ClarifyPrompt repeats a structure prompt after a rejected answer, naming
// what was wrong with it.
func ClarifyPrompt(prompt string, problem error) string {
	return fmt.Sprintf(`%s

Your previous answer could not be used: %v
Answer again with the complete tree only, following the format rules exactly.`, prompt, problem)
}
