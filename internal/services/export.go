package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"
)

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

var submissionCSVHeader = []string{"submission_id", "task_id", "track_id", "answer", "time_taken_seconds", "confidence", "created_at"}

// ExportSubmissionsCSV renders submissions one per row in the given order.
// Missing optional values are left blank.
func ExportSubmissionsCSV(subs []*Submission) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(submissionCSVHeader)
	for _, s := range subs {
		taken, conf := "", ""
		if s.TimeTakenSeconds != nil {
			taken = strconv.Itoa(*s.TimeTakenSeconds)
		}
		if s.Confidence != nil {
			conf = strconv.FormatFloat(*s.Confidence, 'f', -1, 64)
		}
		rec := []string{s.ID, s.TaskID, s.TrackID, s.Answer, taken, conf, s.CreatedAt.UTC().Format(time.RFC3339)}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Export returns the user's submission history as a CSV download.
func (s *SubmissionService) Export(ctx context.Context, userID string) (*ExportResult, error) {
	subs, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	data, err := ExportSubmissionsCSV(subs)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    "submissions_" + s.now().Format("20060102") + ".csv",
		ContentType: "text/csv; charset=utf-8",
		Data:        data,
	}, nil
}
