package validator

import (
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

// Accepted upload formats. A file passes if either its extension or its
// declared content type matches; the check is local and issues no request.
var (
	acceptedExtensions = map[string]bool{
		".csv":  true,
		".tsv":  true,
		".xlsx": true,
	}
	acceptedContentTypes = map[string]bool{
		"text/csv":                 true,
		"text/tab-separated-values": true,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
		"application/vnd.ms-excel":                                          true,
	}
)

// UploadRequest is the operator's submit input, validated before upload.
type UploadRequest struct {
	FileName     string
	ContentType  string
	RepositoryID string
}

// ExecuteRequest is the commit input built from a reviewed diff.
type ExecuteRequest struct {
	JobID         string
	UploadTaskID  string
	RepositoryID  string
	DeleteUserIDs []string
}

// Validator provides validation methods for sync requests.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateUpload validates an upload request, including the local file
// format check.
func (v *Validator) ValidateUpload(r *UploadRequest) error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.FileName,
			validation.Required.Error("file_name_required"),
		),
		validation.Field(&r.RepositoryID,
			validation.Required.Error("repository_id_required"),
		),
	)
	if err != nil {
		return err
	}

	if !AcceptedFormat(r.FileName, r.ContentType) {
		return &domain.FormatError{FileName: r.FileName, ContentType: r.ContentType}
	}
	return nil
}

// ValidateExecute validates an execute request.
func (v *Validator) ValidateExecute(r *ExecuteRequest) error {
	return validation.ValidateStruct(r,
		validation.Field(&r.JobID,
			validation.Required.Error("job_id_required"),
			is.UUID.Error("job_id_must_be_uuid"),
		),
		validation.Field(&r.UploadTaskID,
			validation.Required.Error("upload_task_id_required"),
			is.UUID.Error("upload_task_id_must_be_uuid"),
		),
		validation.Field(&r.RepositoryID,
			validation.Required.Error("repository_id_required"),
		),
		validation.Field(&r.DeleteUserIDs,
			validation.Each(validation.Required.Error("delete_user_id_empty")),
		),
	)
}

// AcceptedFormat reports whether a file name or declared content type
// matches one of the accepted spreadsheet formats.
func AcceptedFormat(fileName, contentType string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	if acceptedExtensions[ext] {
		return true
	}
	// Content types may carry parameters, e.g. "text/csv; charset=utf-8".
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return acceptedContentTypes[ct]
}

// ConvertValidationErrors flattens ozzo validation errors into field/reason
// pairs for logging and API responses.
func ConvertValidationErrors(err error) map[string]string {
	out := make(map[string]string)
	if ve, ok := err.(validation.Errors); ok {
		for field, fieldErr := range ve {
			out[field] = fieldErr.Error()
		}
	} else if err != nil {
		out["request"] = err.Error()
	}
	return out
}
