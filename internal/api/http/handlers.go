package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/yscope/log-ingestor/internal/api/respond"
	"github.com/yscope/log-ingestor/internal/model"
	"github.com/yscope/log-ingestor/internal/scanner"
	"github.com/yscope/log-ingestor/internal/sqslistener"
)

// Service is the slice of the service manager the HTTP layer needs.
type Service interface {
	CreateScannerJob(ctx context.Context, creds model.Credentials, params scanner.JobParams) (uuid.UUID, error)
	CreateSQSListenerJob(ctx context.Context, creds model.Credentials, params sqslistener.JobParams) (uuid.UUID, error)
	DeleteJob(idStr string) error
}

// JobHandler is a thin HTTP transport over the service manager.
type JobHandler struct {
	svc Service
}

// NewJobHandler creates a handler backed by svc.
func NewJobHandler(svc Service) *JobHandler { return &JobHandler{svc: svc} }

// CreateScannerJob GET /scanner/create?region=..&bucket=..&key_prefix=..&dataset=..
func (h *JobHandler) CreateScannerJob(w http.ResponseWriter, r *http.Request) {
	creds, ok := basicCredentials(r)
	if !ok {
		respond.WriteUnauthorized(w, "Basic auth with an access key pair is required")
		return
	}
	q := r.URL.Query()
	params := scanner.JobParams{
		Region:    q.Get("region"),
		Bucket:    q.Get("bucket"),
		KeyPrefix: q.Get("key_prefix"),
		Dataset:   q.Get("dataset"),
	}
	if params.Region == "" || params.Bucket == "" {
		respond.WriteBadRequest(w, "region and bucket are required")
		return
	}

	id, err := h.svc.CreateScannerJob(r.Context(), creds, params)
	if err != nil {
		respond.WriteInternalError(w, fmt.Sprintf("Failed to create job: %v", err))
		return
	}
	respond.WriteText(w, http.StatusOK, id.String())
}

// CreateSQSListenerJob GET /sqs_listener/create?region=..&bucket=..&key_prefix=..&sqs_url=..&dataset=..
func (h *JobHandler) CreateSQSListenerJob(w http.ResponseWriter, r *http.Request) {
	creds, ok := basicCredentials(r)
	if !ok {
		respond.WriteUnauthorized(w, "Basic auth with an access key pair is required")
		return
	}
	q := r.URL.Query()
	params := sqslistener.JobParams{
		Region:    q.Get("region"),
		Bucket:    q.Get("bucket"),
		KeyPrefix: q.Get("key_prefix"),
		QueueURL:  q.Get("sqs_url"),
		Dataset:   q.Get("dataset"),
	}
	if params.Region == "" || params.Bucket == "" {
		respond.WriteBadRequest(w, "region and bucket are required")
		return
	}
	if u, err := url.Parse(params.QueueURL); err != nil || u.Scheme == "" || u.Host == "" {
		respond.WriteBadRequest(w, "sqs_url must be a valid absolute URL")
		return
	}

	id, err := h.svc.CreateSQSListenerJob(r.Context(), creds, params)
	if err != nil {
		respond.WriteInternalError(w, fmt.Sprintf("Failed to create job: %v", err))
		return
	}
	respond.WriteText(w, http.StatusOK, id.String())
}

// DeleteJob GET /delete?job_id=..
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if err := h.svc.DeleteJob(jobID); err != nil {
		respond.WriteBadRequest(w, fmt.Sprintf("Error: %v", err))
		return
	}
	respond.WriteText(w, http.StatusOK, fmt.Sprintf("Deleted job: %s", jobID))
}

// basicCredentials extracts the access key pair from the Basic auth
// header. Both fields must be present.
func basicCredentials(r *http.Request) (model.Credentials, bool) {
	user, pass, ok := r.BasicAuth()
	if !ok || user == "" || pass == "" {
		return model.Credentials{}, false
	}
	return model.Credentials{AccessKeyID: user, SecretAccessKey: pass}, true
}
