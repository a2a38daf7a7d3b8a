package vercel

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"launchpad-deployment/internal/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxSlugLength = 50
	fallbackSlug  = "saas-app"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizeProjectName turns a display name into a provider-safe slug.
// Accented letters fold to their base form before anything else is replaced.
func SanitizeProjectName(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(name),
	)
	if err != nil {
		folded = strings.ToLower(name)
	}

	slug := strings.Trim(nonAlnum.ReplaceAllString(folded, "-"), "-")
	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// ProjectName prefixes the slug with the subject id so two subjects with
// the same display name never collide.
func ProjectName(subject *models.Subject) string {
	return fmt.Sprintf("app-%d-%s", subject.ID, SanitizeProjectName(subject.Name))
}

// ProjectSettings selects the build block for a detection result. The
// returned description is logged by the caller. A nil framework value is
// sent as JSON null so the provider does not apply a preset.
func ProjectSettings(d models.DetectionResult) (map[string]any, string) {
	switch d.Style() {
	case models.StyleStatic:
		switch d.Framework {
		case "vite":
			return map[string]any{
				"framework":       "vite",
				"buildCommand":    "vite build",
				"outputDirectory": "dist",
				"installCommand":  "npm install",
			}, "Configuring Vite build settings"
		case "create-react-app":
			return map[string]any{
				"framework":       "create-react-app",
				"buildCommand":    "npm run build",
				"outputDirectory": "build",
				"installCommand":  "npm install",
			}, "Configuring Create React App settings"
		default:
			build, output := d.BuildCommand, d.OutputDir
			if build == "" {
				build = "npm run build"
			}
			if output == "" {
				output = "dist"
			}
			return map[string]any{
				"framework":       nil,
				"buildCommand":    build,
				"outputDirectory": output,
				"installCommand":  "npm install",
			}, "Configuring static site settings"
		}

	case models.StyleServer:
		switch d.Category {
		case models.FrameworkNode:
			return map[string]any{
				"framework":      "nodejs",
				"buildCommand":   "npm run build",
				"installCommand": "npm install",
			}, "Configuring Node.js server settings"
		case models.FrameworkPython:
			return map[string]any{
				"framework":      "python",
				"buildCommand":   "pip install -r requirements.txt",
				"installCommand": "pip install -r requirements.txt",
			}, "Configuring Python application settings"
		}

	case models.StyleNextJS:
		return map[string]any{}, "Leaving Next.js settings to provider detection"
	}

	return map[string]any{}, "Using provider default settings"
}
