// Package packager turns a source tree into the provider's inline-files
// deployment payload.
package packager

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"launchpad-deployment/internal/archive"
	"launchpad-deployment/internal/deploylog"
	"launchpad-deployment/internal/logger"
	"launchpad-deployment/internal/models"

	"github.com/sirupsen/logrus"
)

// MaxFileSize is the largest file that is sent to the provider.
const MaxFileSize = 10 * 1024 * 1024

// providerConfigName is regenerated separately and never passed through.
const providerConfigName = "vercel.json"

var (
	ErrSourceNotFound = errors.New("source path not found")
	ErrNoFiles        = errors.New("no deployable files")
)

var allowedDotfiles = map[string]bool{
	".env.example": true,
	".gitignore":   true,
}

var textExtensions = map[string]bool{
	".json": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".html": true, ".htm": true, ".css": true, ".scss": true, ".sass": true,
	".less": true, ".md": true, ".txt": true, ".xml": true, ".svg": true,
	".yml": true, ".yaml": true, ".toml": true, ".ini": true, ".cfg": true,
	".conf": true,
}

type Packager struct {
	log *logrus.Entry
}

func New() *Packager {
	return &Packager{log: logger.WithModule("packager")}
}

// Package collects every deployable file under the subject's source path.
// It returns either the full file set or an error; no partial result is
// ever returned.
func (p *Packager) Package(subject *models.Subject, rec deploylog.Recorder) ([]models.PackagedFile, error) {
	if subject.SourcePath == "" {
		rec.Error("Source path not set")
		return nil, ErrSourceNotFound
	}
	if _, err := os.Stat(subject.SourcePath); err != nil {
		rec.Errorf("Source path not found: %s", subject.SourcePath)
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, subject.SourcePath)
	}

	sourceDir := subject.SourcePath
	if archive.IsZip(subject.SourcePath) {
		rec.Info("Extracting ZIP file...")
		dir, err := archive.Extract(subject.SourcePath)
		if err != nil {
			rec.Errorf("Error preparing files: %v", err)
			return nil, err
		}
		sourceDir = dir
		rec.Success("ZIP file extracted successfully")
	}

	rec.Infof("Scanning directory: %s", sourceDir)

	files, err := p.collect(sourceDir, rec)
	if err != nil {
		rec.Errorf("Error preparing files: %v", err)
		return nil, err
	}

	files = p.synthesize(files, subject, rec)
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	rec.Successf("Prepared %d files for deployment", len(files))
	rec.Info("Files to deploy:")
	for _, f := range files[:min(3, len(files))] {
		rec.Infof("  • %s", f.Path)
	}
	if len(files) > 3 {
		rec.Infof("  • ... and %d more files", len(files)-3)
	}

	p.log.WithFields(logrus.Fields{
		"subject_id": subject.ID,
		"files":      len(files),
	}).Debug("Packaged source tree")

	return files, nil
}

func (p *Packager) collect(sourceDir string, rec deploylog.Recorder) ([]models.PackagedFile, error) {
	var files []models.PackagedFile

	err := filepath.WalkDir(sourceDir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			if path == sourceDir {
				return err
			}
			rec.Warnf("Skipping %s: %v", path, err)
			if e != nil && e.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := e.Name()
		if e.IsDir() {
			if path != sourceDir && archive.IsExcludedDir(name) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if strings.HasPrefix(name, ".") && !allowedDotfiles[name] {
			return nil
		}
		if strings.EqualFold(name, providerConfigName) {
			rec.Warnf("Skipping %s to avoid conflicts: %s", providerConfigName, rel)
			return nil
		}
		if !e.Type().IsRegular() {
			return nil
		}

		info, err := e.Info()
		if err != nil {
			rec.Warnf("Skipping file %s: %v", rel, err)
			return nil
		}
		if info.Size() > MaxFileSize {
			rec.Warnf("Skipping large file: %s (%d bytes)", rel, info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			rec.Warnf("Skipping file %s: %v", rel, err)
			return nil
		}

		file, ok := encode(rel, name, content, rec)
		if ok {
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// encode picks the wire encoding for one file. Text files that decode as
// UTF-8 are sent verbatim; everything else is base64.
func encode(rel, name string, content []byte, rec deploylog.Recorder) (models.PackagedFile, bool) {
	ext := strings.ToLower(filepath.Ext(name))

	if textExtensions[ext] && utf8.Valid(content) {
		if ext == ".json" {
			var v any
			if err := json.Unmarshal(content, &v); err != nil {
				rec.Errorf("Invalid JSON file %s: %v", rel, err)
				return models.PackagedFile{}, false
			}
			rec.Successf("Valid JSON: %s", rel)
		}
		return models.PackagedFile{Path: rel, Data: string(content)}, true
	}

	return models.PackagedFile{
		Path:     rel,
		Data:     base64.StdEncoding.EncodeToString(content),
		Encoding: models.EncodingBase64,
	}, true
}
