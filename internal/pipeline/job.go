package pipeline

import (
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeDeploy   JobType = "deploy"
	JobTypeRedeploy JobType = "redeploy"
	JobTypeVerify   JobType = "verify"
)

// Job is one unit of background work for a subject.
type Job struct {
	ID         uuid.UUID
	Type       JobType
	SubjectID  int64
	EnqueuedAt time.Time
}

func NewJob(jobType JobType, subjectID int64) Job {
	return Job{
		ID:         uuid.New(),
		Type:       jobType,
		SubjectID:  subjectID,
		EnqueuedAt: time.Now(),
	}
}
