package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/prd"
)

// gitignoreEntries are controller-owned files that should stay out of
// version control.
var gitignoreEntries = []string{".last-branch", ".ralph/"}

// ScaffoldProject creates the ralph project structure in the given
// directory: ralph.toml, the prompt template, a prd.json skeleton, and
// .gitignore entries. Files that already exist are left untouched.
// Returns the list of created or updated paths.
func ScaffoldProject(dir string) ([]string, error) {
	var created []string

	// ralph.toml
	tomlPath := filepath.Join(dir, FileName)
	if _, err := os.Stat(tomlPath); os.IsNotExist(err) {
		if _, initErr := InitFile(dir); initErr != nil {
			return created, initErr
		}
		created = append(created, tomlPath)
	}

	defaults := Defaults()

	// prompt.md
	promptPath := filepath.Join(dir, defaults.Files.Prompt)
	if _, err := os.Stat(promptPath); os.IsNotExist(err) {
		if writeErr := os.WriteFile(promptPath, []byte(promptTemplate), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", promptPath, writeErr)
		}
		created = append(created, promptPath)
	}

	// prd.json
	prdPath := filepath.Join(dir, defaults.Files.PRD)
	if _, err := os.Stat(prdPath); os.IsNotExist(err) {
		if saveErr := prd.Save(prdPath, skeletonPRD(DetectProjectName(dir))); saveErr != nil {
			return created, fmt.Errorf("scaffold: %w", saveErr)
		}
		created = append(created, prdPath)
	}

	// .gitignore
	gitignorePath := filepath.Join(dir, ".gitignore")
	existing, err := os.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return created, fmt.Errorf("scaffold: read %s: %w", gitignorePath, err)
	}
	content := string(existing)
	changed := false
	for _, entry := range gitignoreEntries {
		if containsLine(content, entry) {
			continue
		}
		if len(content) > 0 && content[len(content)-1] != '\n' {
			content += "\n"
		}
		content += entry + "\n"
		changed = true
	}
	if changed {
		if writeErr := os.WriteFile(gitignorePath, []byte(content), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", gitignorePath, writeErr)
		}
		created = append(created, gitignorePath)
	}

	return created, nil
}

func containsLine(content, line string) bool {
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

func skeletonPRD(project string) *prd.PRD {
	return &prd.PRD{
		Project:     project,
		BranchName:  "ralph/" + project,
		Description: "Describe the feature being built.",
		UserStories: []prd.Story{
			{
				ID:                 "US-001",
				Title:              "First story",
				Description:        "As a user, I want ... so that ...",
				AcceptanceCriteria: []string{"Typecheck passes"},
				Priority:           1,
				Passes:             false,
				Notes:              "",
			},
		},
	}
}

const promptTemplate = `# Ralph Agent Instructions

You are an autonomous coding agent working through ` + "`prd.json`" + `.

1. Read ` + "`prd.json`" + ` and ` + "`progress.txt`" + ` (check the patterns section first).
2. Check out the branch named in ` + "`branchName`" + `.
3. Pick the story with ` + "`passes: false`" + ` and the lowest ` + "`priority`" + `.
   ` + "`jq '[.userStories[] | select(.passes == false)] | sort_by(.priority) | .[0]' prd.json`" + `
4. Implement that single story and run the project's quality checks.
5. Commit, then set ` + "`passes: true`" + ` for the story in ` + "`prd.json`" + `.
6. Append what you did and learned to ` + "`progress.txt`" + `. Never rewrite it.

When every story has ` + "`passes: true`" + `, reply with this on its own line:

<promise>COMPLETE</promise>
`
