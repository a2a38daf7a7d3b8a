// Package detector classifies an uploaded source tree into a framework
// category with a confidence score and provider build hints.
package detector

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"launchpad-deployment/internal/archive"
	"launchpad-deployment/internal/logger"
	"launchpad-deployment/internal/models"

	"github.com/sirupsen/logrus"
)

const manifestName = "package.json"

// Detector inspects source trees. It holds no state beyond its logger and is
// safe for concurrent use.
type Detector struct {
	log *logrus.Entry
}

func New() *Detector {
	return &Detector{log: logger.WithModule("detector")}
}

// Detect classifies the tree at sourcePath, which may be a directory or a
// zip archive. It never fails: unreadable input yields a zero-confidence
// default.
func (d *Detector) Detect(sourcePath string) models.DetectionResult {
	if _, err := os.Stat(sourcePath); err != nil {
		return models.DetectionResult{Category: models.FrameworkReact, Reason: "default"}
	}

	dir, err := archive.Resolve(sourcePath)
	if err != nil {
		d.log.WithError(err).WithField("path", sourcePath).Warn("Failed to extract archive")
		return models.DetectionResult{Category: models.FrameworkReact, Reason: "zip_error"}
	}

	d.log.WithField("path", dir).Debug("Detecting framework")

	if manifestPath, ok := findManifest(dir); ok {
		return analyzeManifest(manifestPath)
	}

	pyFiles, htmlFiles := scanSources(dir)
	if len(pyFiles) > 0 {
		return analyzePython(dir, pyFiles)
	}

	if htmlFiles > 0 {
		return models.DetectionResult{
			Category:        models.FrameworkReact,
			Confidence:      70,
			Reason:          "static_html",
			DeploymentStyle: models.StyleStatic,
			HTMLFiles:       htmlFiles,
		}
	}

	return models.DetectionResult{Category: models.FrameworkReact, Confidence: 30, Reason: "default_fallback"}
}

// findManifest searches breadth-first so a root-level manifest always wins
// over one in a nested package.
func findManifest(root string) (string, bool) {
	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && e.Name() == manifestName {
				return filepath.Join(dir, e.Name()), true
			}
		}
		for _, e := range entries {
			if e.IsDir() && !archive.IsExcludedDir(e.Name()) {
				queue = append(queue, filepath.Join(dir, e.Name()))
			}
		}
	}
	return "", false
}

// scanSources lists .py files in lexical walk order and counts markup files.
func scanSources(root string) ([]string, int) {
	var pyFiles []string
	htmlFiles := 0

	_ = filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if e.IsDir() {
			if path != root && archive.IsExcludedDir(e.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".py":
			pyFiles = append(pyFiles, path)
		case ".html", ".htm":
			htmlFiles++
		}
		return nil
	})

	return pyFiles, htmlFiles
}
