// Package config parses ralph.toml project configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file searched for from the working directory up.
const FileName = "ralph.toml"

// DefaultAccentColor is the default status accent color (indigo).
const DefaultAccentColor = "#7D56F4"

// hexColorRe matches a 6-digit hex color string like "#7D56F4".
var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Config is the top-level ralph.toml configuration.
type Config struct {
	Project       ProjectConfig       `toml:"project"`
	Agent         AgentConfig         `toml:"agent"`
	Loop          LoopConfig          `toml:"loop"`
	Files         FilesConfig         `toml:"files"`
	Journal       JournalConfig       `toml:"journal"`
	Status        StatusConfig        `toml:"status"`
	Notifications NotificationsConfig `toml:"notifications"`

	// Dir is the project root: the directory holding ralph.toml, or the
	// working directory when no file was found. Not read from TOML.
	Dir string `toml:"-"`
}

// ProjectConfig identifies the project.
type ProjectConfig struct {
	Name string `toml:"name"`
}

// AgentConfig controls the agent subprocess.
type AgentConfig struct {
	Command                 string   `toml:"command"`
	Args                    []string `toml:"args"`
	RequiredTools           []string `toml:"required_tools"`
	IterationTimeoutSeconds int      `toml:"iteration_timeout_seconds"` // 0 = no timeout
	ShutdownGraceSeconds    int      `toml:"shutdown_grace_seconds"`
}

// LoopConfig controls the iteration budget.
type LoopConfig struct {
	MaxIterations         int `toml:"max_iterations"`
	IterationDelaySeconds int `toml:"iteration_delay_seconds"`
}

// FilesConfig names the files shared with the agent, relative to Dir.
type FilesConfig struct {
	PRD        string `toml:"prd"`
	Prompt     string `toml:"prompt"`
	Progress   string `toml:"progress"`
	ArchiveDir string `toml:"archive_dir"`
	LastBranch string `toml:"last_branch"`
}

// JournalConfig controls the per-invocation JSONL event journal.
type JournalConfig struct {
	Dir       string `toml:"dir"`
	Retention int    `toml:"retention"` // number of journal files to keep; 0 = unlimited
}

// StatusConfig controls the status report appearance.
type StatusConfig struct {
	AccentColor string `toml:"accent_color"`
}

// NotificationsConfig controls webhook/ntfy.sh notifications.
type NotificationsConfig struct {
	URL        string `toml:"url"`
	OnComplete bool   `toml:"on_complete"`
	OnError    bool   `toml:"on_error"`
}

// Validate checks the configuration for issues that would cause confusing
// runtime failures. It returns all found issues joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.Command == "" {
		errs = append(errs, fmt.Errorf("agent.command must not be empty"))
	}
	if c.Agent.IterationTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("agent.iteration_timeout_seconds must be >= 0 (0 = no timeout)"))
	}
	if c.Agent.ShutdownGraceSeconds < 0 {
		errs = append(errs, fmt.Errorf("agent.shutdown_grace_seconds must be >= 0"))
	}
	for _, tool := range c.Agent.RequiredTools {
		if strings.TrimSpace(tool) == "" {
			errs = append(errs, fmt.Errorf("agent.required_tools must not contain empty names"))
			break
		}
	}

	if c.Loop.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("loop.max_iterations must be >= 1"))
	}
	if c.Loop.IterationDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("loop.iteration_delay_seconds must be >= 0"))
	}

	for _, f := range []struct{ key, val string }{
		{"files.prd", c.Files.PRD},
		{"files.prompt", c.Files.Prompt},
		{"files.progress", c.Files.Progress},
		{"files.archive_dir", c.Files.ArchiveDir},
		{"files.last_branch", c.Files.LastBranch},
	} {
		if f.val == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", f.key))
		}
	}

	if c.Journal.Retention < 0 {
		errs = append(errs, fmt.Errorf("journal.retention must be >= 0 (0 = unlimited)"))
	}

	if c.Status.AccentColor != "" && !hexColorRe.MatchString(c.Status.AccentColor) {
		errs = append(errs, fmt.Errorf("status.accent_color must be a hex color (e.g. \"#7D56F4\")"))
	}

	if c.Notifications.URL != "" {
		u, parseErr := url.ParseRequestURI(c.Notifications.URL)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("notifications.url must be a valid http or https URL"))
		}
	}

	return errors.Join(errs...)
}

// Defaults returns a Config with the stock settings.
func Defaults() Config {
	return Config{
		Agent: AgentConfig{
			Command:                 "claude",
			Args:                    []string{"--dangerously-skip-permissions", "--print"},
			RequiredTools:           []string{"jq"},
			IterationTimeoutSeconds: 3600,
			ShutdownGraceSeconds:    10,
		},
		Loop: LoopConfig{
			MaxIterations:         10,
			IterationDelaySeconds: 2,
		},
		Files: FilesConfig{
			PRD:        "prd.json",
			Prompt:     "prompt.md",
			Progress:   "progress.txt",
			ArchiveDir: "archive",
			LastBranch: ".last-branch",
		},
		Journal: JournalConfig{
			Dir:       filepath.Join(".ralph", "logs"),
			Retention: 20,
		},
		Status: StatusConfig{
			AccentColor: DefaultAccentColor,
		},
		Notifications: NotificationsConfig{
			OnComplete: true,
			OnError:    true,
		},
	}
}

// Load reads ralph.toml from the given path. If path is empty, it walks up
// from the current working directory looking for ralph.toml; when none is
// found the defaults apply with the working directory as project root.
// Returns an error if the file contains unknown keys (likely typos) or does
// not validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		found, dir, err := findConfig()
		if err != nil {
			return nil, err
		}
		if found == "" {
			cfg.Dir = dir
			cfg.Project.Name = DetectProjectName(dir)
			return &cfg, nil
		}
		path = found
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s (possible typos?)", path, joinKeys(keys))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	cfg.Dir = filepath.Dir(abs)

	if cfg.Project.Name == "" {
		cfg.Project.Name = DetectProjectName(cfg.Dir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return &cfg, nil
}

// Path resolves a configured file name against the project root.
func (c *Config) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Dir, name)
}

// IterationTimeout returns the per-iteration agent timeout (0 = none).
func (c *Config) IterationTimeout() time.Duration {
	return time.Duration(c.Agent.IterationTimeoutSeconds) * time.Second
}

// ShutdownGrace returns how long the agent gets between SIGTERM and kill.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Agent.ShutdownGraceSeconds) * time.Second
}

// IterationDelay returns the pause between iterations.
func (c *Config) IterationDelay() time.Duration {
	return time.Duration(c.Loop.IterationDelaySeconds) * time.Second
}

// joinKeys formats a slice of key names for display.
func joinKeys(keys []string) string {
	return strings.Join(keys, ", ")
}

// findConfig walks up from the current directory looking for ralph.toml.
// It returns the found path ("" if none) and the starting directory.
func findConfig() (found, start string, err error) {
	start, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("config: get working directory: %w", err)
	}

	dir := start
	for {
		candidate := filepath.Join(dir, FileName)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, start, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", start, nil
		}
		dir = parent
	}
}

// InitFile writes a default ralph.toml template to the given directory.
func InitFile(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config: %s already exists at %s", FileName, path)
	}

	content := `# ralph.toml: Ralph loop configuration
# Place this file in the root of your project.

[project]
name = ""

[agent]
command = "claude"
args = ["--dangerously-skip-permissions", "--print"]
required_tools = ["jq"]          # checked on PATH before the loop starts
iteration_timeout_seconds = 3600 # 0 = no per-iteration timeout
shutdown_grace_seconds = 10      # wait between SIGTERM and kill when interrupted

[loop]
max_iterations = 10       # overridden by: ralph <max_iterations>
iteration_delay_seconds = 2

[files]
prd = "prd.json"
prompt = "prompt.md"
progress = "progress.txt"
archive_dir = "archive"
last_branch = ".last-branch"

[journal]
dir = ".ralph/logs"
retention = 20 # number of journal files to keep; 0 = unlimited

[status]
accent_color = "#7D56F4"

[notifications]
url = ""           # ntfy.sh topic URL or any HTTP webhook (empty = disabled)
on_complete = true # notify when all stories pass
on_error = true    # notify on agent failures, parse errors, exhausted budget
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}
