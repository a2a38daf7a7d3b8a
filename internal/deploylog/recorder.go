package deploylog

import (
	"fmt"

	"launchpad-deployment/internal/models"
)

// Recorder binds a Store to one subject so pipeline stages can log without
// carrying the subject id around. The zero value discards everything.
type Recorder struct {
	store     Store
	subjectID int64
}

func NewRecorder(store Store, subjectID int64) Recorder {
	return Recorder{store: store, subjectID: subjectID}
}

func (r Recorder) SubjectID() int64 { return r.subjectID }

func (r Recorder) log(level models.LogLevel, msg string) {
	if r.store == nil {
		return
	}
	r.store.Append(r.subjectID, level, msg)
}

func (r Recorder) Info(msg string)    { r.log(models.LevelInfo, msg) }
func (r Recorder) Success(msg string) { r.log(models.LevelSuccess, msg) }
func (r Recorder) Warn(msg string)    { r.log(models.LevelWarning, msg) }
func (r Recorder) Error(msg string)   { r.log(models.LevelError, msg) }

func (r Recorder) Infof(format string, args ...any) {
	r.log(models.LevelInfo, fmt.Sprintf(format, args...))
}

func (r Recorder) Successf(format string, args ...any) {
	r.log(models.LevelSuccess, fmt.Sprintf(format, args...))
}

func (r Recorder) Warnf(format string, args ...any) {
	r.log(models.LevelWarning, fmt.Sprintf(format, args...))
}

func (r Recorder) Errorf(format string, args ...any) {
	r.log(models.LevelError, fmt.Sprintf(format, args...))
}
