package packager

import (
	"encoding/json"
	"fmt"
	"html"

	"launchpad-deployment/internal/deploylog"
	"launchpad-deployment/internal/models"
)

const landingPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            text-align: center;
            padding: 50px;
            background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%);
            min-height: 100vh;
            margin: 0;
            display: flex;
            align-items: center;
            justify-content: center;
        }
        .container {
            background: white;
            padding: 2rem;
            border-radius: 1rem;
            box-shadow: 0 20px 40px rgba(0,0,0,0.1);
            max-width: 600px;
        }
        h1 { color: #333; }
        p { color: #666; line-height: 1.6; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>Your application has been successfully deployed!</p>
        <p>This is a default page. Upload your own index.html to customize.</p>
    </div>
</body>
</html>
`

type defaultManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Private         bool              `json:"private"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// LandingPage renders the page served when an upload has no entry page.
func LandingPage(appName string) string {
	title := html.EscapeString(appName)
	if title == "" {
		title = "SaaS Application"
	}
	return fmt.Sprintf(landingPageTemplate, title, title)
}

// DefaultManifest renders a package.json with no-op build and start scripts.
func DefaultManifest(subjectID int64) (string, error) {
	m := defaultManifest{
		Name:    fmt.Sprintf("app-%d", subjectID),
		Version: "1.0.0",
		Private: true,
		Scripts: map[string]string{
			"build": "echo 'Static build complete'",
			"start": "echo 'Static site ready'",
		},
		Dependencies:    map[string]string{},
		DevDependencies: map[string]string{},
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// synthesize appends an entry page when the tree has none, and a minimal
// manifest for static React uploads that shipped without one.
func (p *Packager) synthesize(files []models.PackagedFile, subject *models.Subject, rec deploylog.Recorder) []models.PackagedFile {
	hasIndex, hasManifest := false, false
	for _, f := range files {
		switch f.Path {
		case "index.html", "index.htm":
			hasIndex = true
		case "package.json":
			hasManifest = true
		}
	}

	if !hasIndex {
		rec.Info("Creating default index.html...")
		files = append(files, models.PackagedFile{Path: "index.html", Data: LandingPage(subject.Name)})
		rec.Success("Added default index.html")
	}

	if !hasManifest && subject.Framework == models.FrameworkReact {
		rec.Info("Creating default package.json for React app...")
		data, err := DefaultManifest(subject.ID)
		if err != nil {
			rec.Warnf("Could not create default package.json: %v", err)
			return files
		}
		files = append(files, models.PackagedFile{Path: "package.json", Data: data})
		rec.Success("Added default package.json")
	}

	return files
}
