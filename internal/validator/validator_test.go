package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/validator"
)

func TestAcceptedFormat(t *testing.T) {
	tests := []struct {
		name        string
		fileName    string
		contentType string
		want        bool
	}{
		{"csv extension", "users.csv", "", true},
		{"tsv extension", "users.tsv", "", true},
		{"xlsx extension", "users.xlsx", "", true},
		{"uppercase extension", "USERS.CSV", "", true},
		{"csv content type", "export.dat", "text/csv", true},
		{"csv content type with charset", "export.dat", "text/csv; charset=utf-8", true},
		{"tsv content type", "export.dat", "text/tab-separated-values", true},
		{"xlsx content type", "book", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", true},
		{"legacy excel content type", "book", "application/vnd.ms-excel", true},
		{"plain text rejected", "users.txt", "text/plain", false},
		{"json rejected", "users.json", "application/json", false},
		{"no hints rejected", "users", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validator.AcceptedFormat(tt.fileName, tt.contentType))
		})
	}
}

func TestValidator_ValidateUpload(t *testing.T) {
	v := validator.NewValidator()

	t.Run("valid request", func(t *testing.T) {
		err := v.ValidateUpload(&validator.UploadRequest{
			FileName:     "users.csv",
			ContentType:  "text/csv",
			RepositoryID: "repo-1",
		})
		assert.NoError(t, err)
	})

	t.Run("missing repository id", func(t *testing.T) {
		err := v.ValidateUpload(&validator.UploadRequest{
			FileName: "users.csv",
		})
		require.Error(t, err)
		fields := validator.ConvertValidationErrors(err)
		assert.Contains(t, fields, "RepositoryID")
	})

	t.Run("missing file name", func(t *testing.T) {
		err := v.ValidateUpload(&validator.UploadRequest{
			RepositoryID: "repo-1",
		})
		require.Error(t, err)
	})

	t.Run("unsupported format is a typed error", func(t *testing.T) {
		err := v.ValidateUpload(&validator.UploadRequest{
			FileName:     "users.pdf",
			ContentType:  "application/pdf",
			RepositoryID: "repo-1",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

		var fe *domain.FormatError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "users.pdf", fe.FileName)
	})
}

func TestValidator_ValidateExecute(t *testing.T) {
	v := validator.NewValidator()
	valid := validator.ExecuteRequest{
		JobID:         "6e1c8d2e-32a3-4a80-9c8c-0f4bfa5f12aa",
		UploadTaskID:  "0b9a2f11-64e2-41d9-8df4-3a4c8df2b901",
		RepositoryID:  "repo-1",
		DeleteUserIDs: []string{"u1", "u2"},
	}

	t.Run("valid request", func(t *testing.T) {
		req := valid
		assert.NoError(t, v.ValidateExecute(&req))
	})

	t.Run("empty deletions allowed", func(t *testing.T) {
		req := valid
		req.DeleteUserIDs = nil
		assert.NoError(t, v.ValidateExecute(&req))
	})

	t.Run("job id must be a uuid", func(t *testing.T) {
		req := valid
		req.JobID = "not-a-uuid"
		require.Error(t, v.ValidateExecute(&req))
	})

	t.Run("blank deletion id rejected", func(t *testing.T) {
		req := valid
		req.DeleteUserIDs = []string{"u1", ""}
		require.Error(t, v.ValidateExecute(&req))
	})

	t.Run("missing upload task id", func(t *testing.T) {
		req := valid
		req.UploadTaskID = ""
		require.Error(t, v.ValidateExecute(&req))
	})
}
