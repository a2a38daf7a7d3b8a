package detector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"launchpad-deployment/internal/models"
)

// manifest is the subset of package.json the rules look at.
type manifest struct {
	Dependencies    map[string]any `json:"dependencies"`
	DevDependencies map[string]any `json:"devDependencies"`
	Scripts         map[string]any `json:"scripts"`

	all map[string]string
}

func (m manifest) has(names ...string) bool {
	for _, n := range names {
		if _, ok := m.all[n]; ok {
			return true
		}
	}
	return false
}

// rule is one step of the manifest precedence chain. Rules are evaluated in
// order and the first match wins.
type rule struct {
	name   string
	match  func(m manifest) bool
	result func(m manifest) models.DetectionResult
}

var manifestRules = []rule{
	{
		name:  "nextjs",
		match: func(m manifest) bool { return m.has("next") },
		result: func(m manifest) models.DetectionResult {
			return models.DetectionResult{
				Category:        models.FrameworkNode,
				Confidence:      95,
				Reason:          "nextjs_detected",
				Framework:       "nextjs",
				Version:         m.all["next"],
				DeploymentStyle: models.StyleNextJS,
			}
		},
	},
	{
		name:  "create-react-app",
		match: func(m manifest) bool { return m.has("react") && m.has("react-scripts") },
		result: func(manifest) models.DetectionResult {
			return models.DetectionResult{
				Category:        models.FrameworkReact,
				Confidence:      90,
				Reason:          "create_react_app",
				Framework:       "create-react-app",
				DeploymentStyle: models.StyleStatic,
				BuildCommand:    "npm run build",
				OutputDir:       "build",
			}
		},
	},
	{
		name:  "vite-react",
		match: func(m manifest) bool { return m.has("react") && m.has("vite", "@vitejs/plugin-react") },
		result: func(manifest) models.DetectionResult {
			return viteResult("vite_react", 90)
		},
	},
	{
		name:  "react",
		match: func(m manifest) bool { return m.has("react") },
		result: func(m manifest) models.DetectionResult {
			build, _ := m.Scripts["build"].(string)
			if build == "" {
				build = "npm run build"
			}
			return models.DetectionResult{
				Category:        models.FrameworkReact,
				Confidence:      80,
				Reason:          "react_generic",
				Framework:       "react",
				DeploymentStyle: models.StyleStatic,
				BuildCommand:    build,
				OutputDir:       "build",
			}
		},
	},
	{
		name:   "vue",
		match:  func(m manifest) bool { return m.has("vue") },
		result: nodeResult("vue_detected", 85, "vue", models.StyleStatic),
	},
	{
		name:  "vite",
		match: func(m manifest) bool { return m.has("vite") },
		result: func(manifest) models.DetectionResult {
			return viteResult("vite_detected", 85)
		},
	},
	{
		name:   "angular",
		match:  func(m manifest) bool { return m.has("@angular/core") },
		result: nodeResult("angular_detected", 85, "angular", models.StyleStatic),
	},
	{
		name:   "node-server",
		match:  func(m manifest) bool { return m.has("express", "fastify", "koa") },
		result: nodeResult("node_server", 85, "nodejs", models.StyleServer),
	},
	{
		name:   "gatsby",
		match:  func(m manifest) bool { return m.has("gatsby") },
		result: nodeResult("gatsby_detected", 90, "gatsby", models.StyleStatic),
	},
	{
		name:   "nodejs",
		match:  func(m manifest) bool { return len(m.all) > 0 },
		result: nodeResult("nodejs_generic", 60, "nodejs", models.StyleStatic),
	},
}

func viteResult(reason string, confidence int) models.DetectionResult {
	return models.DetectionResult{
		Category:        models.FrameworkReact,
		Confidence:      confidence,
		Reason:          reason,
		Framework:       "vite",
		DeploymentStyle: models.StyleStatic,
		BuildCommand:    "vite build",
		OutputDir:       "dist",
	}
}

func nodeResult(reason string, confidence int, framework string, style models.DeploymentStyle) func(manifest) models.DetectionResult {
	return func(manifest) models.DetectionResult {
		return models.DetectionResult{
			Category:        models.FrameworkNode,
			Confidence:      confidence,
			Reason:          reason,
			Framework:       framework,
			DeploymentStyle: style,
		}
	}
}

// manifestFallback is returned for a manifest with no dependencies or one
// that cannot be parsed.
var manifestFallback = models.DetectionResult{
	Category:        models.FrameworkReact,
	Confidence:      50,
	Reason:          "package_json_fallback",
	DeploymentStyle: models.StyleStatic,
}

func parseManifest(data []byte) (manifest, error) {
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	m.all = make(map[string]string, len(m.Dependencies)+len(m.DevDependencies))
	for k, v := range m.Dependencies {
		m.all[k] = fmt.Sprint(v)
	}
	for k, v := range m.DevDependencies {
		m.all[k] = fmt.Sprint(v)
	}
	return m, nil
}

func classifyManifest(m manifest) models.DetectionResult {
	for _, r := range manifestRules {
		if r.match(m) {
			return r.result(m)
		}
	}
	return manifestFallback
}

func analyzeManifest(path string) models.DetectionResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return manifestFallback
	}
	m, err := parseManifest(data)
	if err != nil {
		return manifestFallback
	}
	return classifyManifest(m)
}

// pythonCandidate scores a backend framework by counting which of its
// indicator strings appear in requirements.txt and the sampled sources.
type pythonCandidate struct {
	name       string
	indicators []string
}

// Order matters: ties go to the earlier candidate.
var pythonCandidates = []pythonCandidate{
	{"django", []string{"django", "manage.py", "settings.py"}},
	{"flask", []string{"flask", "app.py", "application.py"}},
	{"fastapi", []string{"fastapi", "main.py", "uvicorn"}},
	{"streamlit", []string{"streamlit", "st."}},
	{"dash", []string{"dash", "plotly"}},
}

const pythonSampleSize = 5

func scorePython(texts []string) map[string]int {
	scores := make(map[string]int)
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, c := range pythonCandidates {
			for _, ind := range c.indicators {
				if strings.Contains(lower, ind) {
					scores[c.name]++
				}
			}
		}
	}
	return scores
}

func analyzePython(root string, pyFiles []string) models.DetectionResult {
	var texts []string
	if req, err := os.ReadFile(filepath.Join(root, "requirements.txt")); err == nil {
		texts = append(texts, string(req))
	}
	for i, f := range pyFiles {
		if i == pythonSampleSize {
			break
		}
		if data, err := os.ReadFile(f); err == nil {
			texts = append(texts, string(data))
		}
	}

	scores := scorePython(texts)

	best, bestScore := "", 0
	for _, c := range pythonCandidates {
		if scores[c.name] > bestScore {
			best, bestScore = c.name, scores[c.name]
		}
	}

	if best == "" {
		return models.DetectionResult{
			Category:        models.FrameworkPython,
			Confidence:      70,
			Reason:          "python_generic",
			Framework:       "python",
			DeploymentStyle: models.StyleServer,
		}
	}

	return models.DetectionResult{
		Category:        models.FrameworkPython,
		Confidence:      min(90, bestScore*20),
		Reason:          best + "_detected",
		Framework:       best,
		Scores:          scores,
		DeploymentStyle: models.StyleServer,
	}
}
