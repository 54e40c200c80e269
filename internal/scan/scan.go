// Package scan gates pushes on secret scanning.
//
// A Scanner inspects a repository tree and fails with *errdefs.SecretError
// when anything looks like leaked credential material. Two strategies
// exist: Gitleaks shells out to the gitleaks binary, Noop always passes.
// The strategy is resolved once at configuration-load time via ForPolicy.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sealbridge/sealrepos/internal/errdefs"
)

// Scanner checks a repository tree for secrets before content may leave
// the personal side.
type Scanner interface {
	// Scan inspects the tree rooted at repoPath. It returns nil when the
	// tree is clean and *errdefs.SecretError when secrets are found.
	Scan(ctx context.Context, repoPath string) error
}

// ScanTimeout bounds a single scanner invocation. Large histories can
// take a while; a minute covers every repository we have seen.
const ScanTimeout = 60 * time.Second

// Gitleaks invokes the gitleaks binary and parses its JSON report.
type Gitleaks struct {
	// ConfigPath optionally points at a gitleaks rule file.
	ConfigPath string
}

// gitleaksFinding mirrors the fields we consume from a gitleaks JSON
// report entry.
type gitleaksFinding struct {
	Description string `json:"Description"`
	File        string `json:"File"`
	StartLine   int    `json:"StartLine"`
}

// Scan runs `gitleaks detect` against repoPath. The report is requested
// with --exit-code 0 so a non-empty report is distinguished from a tool
// failure; the gating decision is ours, not the scanner's.
func (g *Gitleaks) Scan(ctx context.Context, repoPath string) error {
	ctx, cancel := context.WithTimeout(ctx, ScanTimeout)
	defer cancel()

	reportPath, err := tempReportPath()
	if err != nil {
		return err
	}
	defer os.Remove(reportPath)

	args := []string{
		"detect",
		"--source", repoPath,
		"--no-banner",
		"--report-format", "json",
		"--report-path", reportPath,
		"--exit-code", "0",
	}
	if g.ConfigPath != "" {
		args = append(args, "--config", g.ConfigPath)
	}

	cmd := exec.CommandContext(ctx, "gitleaks", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("the gitleaks binary was not found; install it or disable scanning")
		}
		return fmt.Errorf("gitleaks failed: %v: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	report, err := os.ReadFile(reportPath)
	if err != nil {
		return fmt.Errorf("reading gitleaks report: %w", err)
	}

	findings, err := ParseReport(report)
	if err != nil {
		return err
	}
	if len(findings) > 0 {
		return &errdefs.SecretError{Tool: "gitleaks", Findings: findings}
	}
	return nil
}

func tempReportPath() (string, error) {
	f, err := os.CreateTemp("", "sealrepos-gitleaks-*.json")
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	path := f.Name()
	f.Close()
	return path, nil
}

// ParseReport decodes a gitleaks JSON report into findings. An empty
// report body is treated as no findings.
func ParseReport(report []byte) ([]errdefs.Finding, error) {
	if len(bytes.TrimSpace(report)) == 0 {
		return nil, nil
	}

	var raw []gitleaksFinding
	if err := json.Unmarshal(report, &raw); err != nil {
		return nil, fmt.Errorf("parsing gitleaks report: %w", err)
	}

	findings := make([]errdefs.Finding, 0, len(raw))
	for _, f := range raw {
		findings = append(findings, errdefs.Finding{
			Description: f.Description,
			File:        f.File,
			Line:        f.StartLine,
		})
	}
	return findings, nil
}

// ForPolicy resolves the configured scan policy to a Scanner. Disabled
// scanning yields Noop; the tool set is closed.
func ForPolicy(enable bool, tool, configPath string) (Scanner, error) {
	if !enable {
		return Noop{}, nil
	}
	switch tool {
	case "", "gitleaks":
		return &Gitleaks{ConfigPath: configPath}, nil
	default:
		return nil, fmt.Errorf("unknown scan tool %q (supported: gitleaks)", tool)
	}
}

// Noop is the scanner used when scanning is disabled. It always passes.
type Noop struct{}

// Scan implements Scanner and never reports findings.
func (Noop) Scan(ctx context.Context, repoPath string) error {
	return nil
}
