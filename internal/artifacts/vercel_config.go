// Package artifacts writes the provider configuration and CI workflow files
// into a subject's source tree.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"launchpad-deployment/internal/models"
	"launchpad-deployment/internal/vercel"
)

const (
	ProviderConfigFile = "vercel.json"
	WorkflowFile       = ".github/workflows/deploy.yml"
)

type build struct {
	Src    string            `json:"src"`
	Use    string            `json:"use"`
	Config map[string]string `json:"config,omitempty"`
}

type route struct {
	Handle string `json:"handle,omitempty"`
	Src    string `json:"src,omitempty"`
	Dest   string `json:"dest,omitempty"`
}

type providerConfig struct {
	Version int     `json:"version"`
	Name    string  `json:"name,omitempty"`
	Builds  []build `json:"builds,omitempty"`
	Routes  []route `json:"routes,omitempty"`
}

// spaRoutes serve real files first and send every other path to the entry
// page, which is what client-side routers expect.
var spaRoutes = []route{
	{Handle: "filesystem"},
	{Src: "/(.*)", Dest: "/index.html"},
}

// ProviderConfig renders vercel.json for the subject's framework category.
func ProviderConfig(subject *models.Subject) ([]byte, error) {
	cfg := providerConfig{
		Version: 2,
		Name:    vercel.ProjectName(subject),
	}

	switch subject.Framework {
	case models.FrameworkReact:
		cfg.Builds = []build{{
			Src:    "package.json",
			Use:    "@vercel/static-build",
			Config: map[string]string{"distDir": "dist"},
		}}
		cfg.Routes = spaRoutes
	case models.FrameworkNode:
		cfg.Builds = []build{{Src: "package.json", Use: "@vercel/node"}}
	case models.FrameworkPython:
		cfg.Builds = []build{{Src: "*.py", Use: "@vercel/python"}}
	default:
		cfg.Builds = []build{{Src: "**/*", Use: "@vercel/static"}}
		cfg.Routes = spaRoutes
	}

	return json.MarshalIndent(cfg, "", "  ")
}

// WriteProviderConfig writes vercel.json into dir. If the full config cannot
// be rendered a minimal version-only file is written instead.
func WriteProviderConfig(dir string, subject *models.Subject) error {
	data, err := ProviderConfig(subject)
	if err != nil {
		data, err = json.MarshalIndent(providerConfig{Version: 2}, "", "  ")
		if err != nil {
			return err
		}
	}

	path := filepath.Join(dir, ProviderConfigFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
