package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubmissionStore persists answer events.
type SubmissionStore interface {
	AddSubmission(ctx context.Context, s *Submission) error
	ListSubmissionsByUser(ctx context.Context, userID string) ([]*Submission, error)
}

// Grader scores an answer. *TaskClient is the production implementation.
type Grader interface {
	Submit(ctx context.Context, taskID, trackID, answer string) (*GradeResult, error)
}

// Rewarder applies the gamification update. *ProgressService implements it.
type Rewarder interface {
	Apply(ctx context.Context, userID string, conf Confidence) (*RewardOutcome, error)
}

type SubmitRequest struct {
	UserID           string
	TrackID          string
	TaskID           string
	Answer           string
	TimeTakenSeconds *int
}

type SubmitResult struct {
	Submission *Submission
	Grade      *GradeResult
	Reward     *RewardOutcome
}

// SubmissionService is the request path: grade, record, reward.
type SubmissionService struct {
	store    SubmissionStore
	grader   Grader
	rewarder Rewarder
	now      func() time.Time
	idGen    func() string
}

func NewSubmissionService(store SubmissionStore, grader Grader, rewarder Rewarder) *SubmissionService {
	return &SubmissionService{
		store:    store,
		grader:   grader,
		rewarder: rewarder,
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    uuid.NewString,
	}
}

// Submit grades the answer, records it, then runs the reward update.
// The submission row is kept even if the reward update fails afterwards.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	req.TrackID = strings.TrimSpace(req.TrackID)
	req.TaskID = strings.TrimSpace(req.TaskID)
	if req.UserID == "" {
		return nil, NewUnauthorizedError("user required")
	}
	if req.TrackID == "" || req.TaskID == "" || strings.TrimSpace(req.Answer) == "" {
		return nil, NewInvalidError("Missing track_id, taskId, or answer")
	}
	if req.TimeTakenSeconds != nil && *req.TimeTakenSeconds < 0 {
		return nil, NewInvalidError("timeTakenInSeconds must not be negative")
	}

	grade, err := s.grader.Submit(ctx, req.TaskID, req.TrackID, req.Answer)
	if err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:               s.idGen(),
		UserID:           req.UserID,
		TaskID:           req.TaskID,
		TrackID:          req.TrackID,
		Answer:           req.Answer,
		TimeTakenSeconds: req.TimeTakenSeconds,
		Confidence:       grade.Confidence.Ptr(),
		CreatedAt:        s.now(),
	}
	if err := s.store.AddSubmission(ctx, sub); err != nil {
		return nil, err
	}

	reward, err := s.rewarder.Apply(ctx, req.UserID, grade.Confidence)
	if err != nil {
		log.Printf("submission: %s recorded but reward update failed: %v", sub.ID, err)
		return nil, err
	}
	return &SubmitResult{Submission: sub, Grade: grade, Reward: reward}, nil
}

// List returns the user's submissions, newest first.
func (s *SubmissionService) List(ctx context.Context, userID string) ([]*Submission, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("user required")
	}
	return s.store.ListSubmissionsByUser(ctx, userID)
}
