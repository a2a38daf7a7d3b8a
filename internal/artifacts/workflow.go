package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"launchpad-deployment/internal/models"

	"gopkg.in/yaml.v3"
)

type workflow struct {
	Name string         `yaml:"name"`
	On   workflowEvents `yaml:"on"`
	Jobs map[string]job `yaml:"jobs"`
}

type workflowEvents struct {
	Push             pushEvent      `yaml:"push"`
	WorkflowDispatch map[string]any `yaml:"workflow_dispatch"`
}

type pushEvent struct {
	Branches []string `yaml:"branches"`
}

type job struct {
	RunsOn string `yaml:"runs-on"`
	Steps  []step `yaml:"steps"`
}

type step struct {
	Name string            `yaml:"name,omitempty"`
	ID   string            `yaml:"id,omitempty"`
	If   string            `yaml:"if,omitempty"`
	Uses string            `yaml:"uses,omitempty"`
	With map[string]string `yaml:"with,omitempty"`
	Run  string            `yaml:"run,omitempty"`
}

func toolchainSteps(framework models.Framework) []step {
	switch framework {
	case models.FrameworkNode, models.FrameworkReact:
		return []step{
			{
				Name: "Setup Node.js",
				Uses: "actions/setup-node@v4",
				With: map[string]string{"node-version": "18", "cache": "npm"},
			},
			{Name: "Install Dependencies", Run: "npm ci"},
			{Name: "Build", Run: "npm run build"},
		}
	case models.FrameworkPython:
		return []step{
			{
				Name: "Setup Python",
				Uses: "actions/setup-python@v4",
				With: map[string]string{"python-version": "3.11", "cache": "pip"},
			},
			{Name: "Install Dependencies", Run: "pip install -r requirements.txt"},
		}
	}
	return nil
}

func callbackScript(subjectID int64, callbackURL string) string {
	body := fmt.Sprintf(`{"app_id": %d, "status": "deployed", "live_url": "${{ steps.deploy.outputs.preview-url }}"}`, subjectID)
	return strings.Join([]string{
		fmt.Sprintf(`curl -X POST "%s/webhook" \`, strings.TrimRight(callbackURL, "/")),
		`  -H "Content-Type: application/json" \`,
		fmt.Sprintf(`  -d '%s' || true`, body),
	}, "\n") + "\n"
}

// Workflow renders a GitHub Actions workflow that builds the subject, deploys
// it with the provider's action and reports back to callbackURL's webhook.
func Workflow(subject *models.Subject, callbackURL string) ([]byte, error) {
	steps := []step{{Uses: "actions/checkout@v4"}}
	steps = append(steps, toolchainSteps(subject.Framework)...)
	steps = append(steps,
		step{
			Name: "Deploy to Vercel",
			ID:   "deploy",
			Uses: "amondnet/vercel-action@v25",
			With: map[string]string{
				"vercel-token":      "${{ secrets.VERCEL_TOKEN }}",
				"vercel-org-id":     "${{ secrets.VERCEL_ORG_ID }}",
				"vercel-project-id": "${{ secrets.VERCEL_PROJECT_ID }}",
				"working-directory": "./",
				"vercel-args":       "--prod",
			},
		},
		step{
			Name: "Callback to Platform",
			If:   "success()",
			Run:  callbackScript(subject.ID, callbackURL),
		},
	)

	wf := workflow{
		Name: "Deploy to Vercel",
		On: workflowEvents{
			Push:             pushEvent{Branches: []string{"main"}},
			WorkflowDispatch: map[string]any{},
		},
		Jobs: map[string]job{
			"deploy": {RunsOn: "ubuntu-latest", Steps: steps},
		},
	}

	return yaml.Marshal(wf)
}

// WriteWorkflow writes the workflow under dir/.github/workflows.
func WriteWorkflow(dir string, subject *models.Subject, callbackURL string) error {
	data, err := Workflow(subject, callbackURL)
	if err != nil {
		return fmt.Errorf("render workflow: %w", err)
	}

	path := filepath.Join(dir, filepath.FromSlash(WorkflowFile))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
