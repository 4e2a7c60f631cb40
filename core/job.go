package core

import (
	"context"
	"net/http"
	"time"
)

// Job statuses reported by the HMC. The three terminal values end polling.
const (
	JobStatusRunning           = "running"
	JobStatusCancelPending     = "cancel-pending"
	JobStatusComplete          = "complete"
	JobStatusCompleteWithError = "complete-with-error"
	JobStatusCanceled          = "canceled"
)

// JobTerminal reports whether a job status value is terminal.
func JobTerminal(status string) bool {
	switch status {
	case JobStatusComplete, JobStatusCompleteWithError, JobStatusCanceled:
		return true
	}
	return false
}

// Job is the handle of an asynchronous HMC operation, identified by its job
// URI. It is returned by Post with the NoWait option.
type Job struct {
	URI     string
	session *Session
}

// jobStatus is the polled state of a job.
type jobStatus struct {
	Status     string
	StatusCode int
	ReasonCode int
	Results    map[string]interface{}
}

// QueryStatus fetches the job's current status and, for terminal jobs, its
// results.
func (j *Job) QueryStatus(ctx context.Context) (string, map[string]interface{}, error) {
	st, err := j.query(ctx)
	if err != nil {
		return "", nil, err
	}
	return st.Status, st.Results, nil
}

func (j *Job) query(ctx context.Context) (jobStatus, error) {
	body, err := j.session.Get(ctx, j.URI)
	if err != nil {
		return jobStatus{}, err
	}
	st := jobStatus{}
	st.Status, _ = body["status"].(string)
	if v, ok := body["job-status-code"].(float64); ok {
		st.StatusCode = int(v)
	}
	if v, ok := body["job-reason-code"].(float64); ok {
		st.ReasonCode = int(v)
	}
	st.Results, _ = body["job-results"].(map[string]interface{})
	if st.Status == "" {
		return st, &ConsistencyError{URI: j.URI, Message: "job status response has no status field"}
	}
	return st, nil
}

// Cancel requests cancellation of the job.
func (j *Job) Cancel(ctx context.Context) error {
	_, _, err := j.session.Post(ctx, j.URI+"/operations/cancel", nil, NoWait())
	return err
}

// Delete removes the job resource from the HMC. Only terminal jobs may be
// deleted.
func (j *Job) Delete(ctx context.Context) error {
	return j.session.Delete(ctx, j.URI)
}

// WaitForCompletion polls the job until it reaches a terminal status,
// honoring the operation timeout. On success it returns the job results
// (possibly nil); a job that completed with an error or was canceled is
// surfaced as an HTTPError synthesized from the job error fields.
//
// The polling interval starts at one second and backs off to ten.
func (s *Session) WaitForCompletion(ctx context.Context, job *Job, timeout time.Duration) (map[string]interface{}, error) {
	if timeout <= 0 {
		timeout = s.rt.OperationTimeout
	}
	deadline := time.Now().Add(timeout)
	interval := time.Second

	for {
		st, err := job.query(ctx)
		if err != nil {
			return nil, err
		}
		if JobTerminal(st.Status) {
			if st.Status == JobStatusComplete {
				return st.Results, nil
			}
			msg, _ := st.Results["message"].(string)
			if msg == "" {
				msg = "job ended with status " + st.Status
			}
			return nil, &HTTPError{
				Status:  st.StatusCode,
				Reason:  st.ReasonCode,
				Message: msg,
				Method:  http.MethodPost,
				URI:     job.URI,
			}
		}
		if time.Now().After(deadline) {
			return nil, &OperationTimeoutError{JobURI: job.URI, Timeout: timeout}
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closed:
			return nil, ErrSessionClosed
		}
		if interval < 10*time.Second {
			interval *= 2
			if interval > 10*time.Second {
				interval = 10 * time.Second
			}
		}
	}
}
