// Package prompts holds the instructions sent to classification and judge
// providers. The defaults are embedded; a YAML file can override them.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalog []byte

var validate = validator.New() //nolint:gochecknoglobals // shared validator

// summaryProbe checks that a judge template actually embeds the summary.
const summaryProbe = "\x00summary\x00"

// Catalog is a parsed prompt set.
type Catalog struct {
	System string `yaml:"system" validate:"required"`
	Task   string `yaml:"task" validate:"required"`
	Judge  string `yaml:"judge" validate:"required"`

	judge *template.Template
}

type judgeData struct {
	Summary string
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("prompts: embedded catalog is invalid: %v", err))
	}
	return c
}

// Parse reads a complete catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load returns the embedded catalog with any keys present in the file at
// path layered on top. An empty path yields the defaults.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCatalog, path, err)
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) compile() error {
	c.System = strings.TrimSpace(c.System)
	c.Task = strings.TrimSpace(c.Task)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	tmpl, err := template.New("judge").Option("missingkey=error").Parse(c.Judge)
	if err != nil {
		return fmt.Errorf("%w: judge template: %v", ErrInvalidCatalog, err)
	}
	c.judge = tmpl

	probe, err := c.JudgePrompt(summaryProbe)
	if err != nil {
		return err
	}
	if !strings.Contains(probe, summaryProbe) {
		return fmt.Errorf("%w: judge template must reference {{.Summary}}", ErrInvalidCatalog)
	}
	return nil
}

// JudgePrompt renders the adjudication prompt around summary.
func (c *Catalog) JudgePrompt(summary string) (string, error) {
	var sb strings.Builder
	if err := c.judge.Execute(&sb, judgeData{Summary: summary}); err != nil {
		return "", fmt.Errorf("%w: render judge prompt: %v", ErrInvalidCatalog, err)
	}
	return strings.TrimSpace(sb.String()), nil
}
