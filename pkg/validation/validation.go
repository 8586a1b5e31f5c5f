package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxNameLength bounds dataset names
const MaxNameLength = 255

// UploadRequest holds the caller-side preconditions of a dataset upload
type UploadRequest struct {
	Name     string `validate:"required,max=255"`
	FileName string `validate:"txtfile"`
	Size     int64  `validate:"gt=0"`
}

// Error lists every failed precondition of a request
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return strings.Join(e.Messages, "; ")
}

// Validator checks upload requests
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the custom upload rules registered
func New() *Validator {
	v := validator.New()
	// Registration only fails for an empty tag or nil func
	_ = v.RegisterValidation("txtfile", validateTxtFile)
	return &Validator{validate: v}
}

// ValidateUpload trims the dataset name and checks the request. The
// returned request carries the trimmed name.
func (v *Validator) ValidateUpload(req UploadRequest) (UploadRequest, error) {
	req.Name = strings.TrimSpace(req.Name)

	if err := v.validate.Struct(req); err != nil {
		return req, formatValidationError(err)
	}
	return req, nil
}

// HasTxtExtension reports whether a filename is acceptable as an edge list:
// no extension at all, or ".txt".
func HasTxtExtension(fileName string) bool {
	ext := filepath.Ext(fileName)
	return ext == "" || strings.EqualFold(ext, ".txt")
}

func validateTxtFile(fl validator.FieldLevel) bool {
	return HasTxtExtension(fl.Field().String())
}

// formatValidationError turns validator errors into user facing messages
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatFieldError(e))
	}
	return &Error{Messages: messages}
}

func formatFieldError(e validator.FieldError) string {
	switch e.Field() {
	case "Name":
		if e.Tag() == "max" {
			return fmt.Sprintf("Dataset name must be at most %s characters", e.Param())
		}
		return "Dataset name is required"
	case "Size":
		return "File is required and cannot be empty"
	case "FileName":
		return "Dataset must be a txt file"
	default:
		return fmt.Sprintf("%s is invalid", strings.ToLower(e.Field()))
	}
}
