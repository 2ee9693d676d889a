// Package validation pre-checks user input before it reaches the service
// layer. Struct rules run through go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"confessions/internal/models"

	"github.com/go-playground/validator/v10"
)

// MaxAffiliationLength bounds the free-form affiliation field.
const MaxAffiliationLength = 120

// SubmissionInput is the body of a confession submission.
type SubmissionInput struct {
	Content     string `json:"content" validate:"required,min=10,max=500"`
	Category    string `json:"category" validate:"required,category"`
	Affiliation string `json:"affiliation" validate:"max=120"`
	MediaURL    string `json:"media_url" validate:"omitempty,url,max=2048"`
}

// CommentInput is the body of a new comment.
type CommentInput struct {
	Content string `json:"content" validate:"required,min=1,max=500"`
}

// ModerationInput is the optional body of a reject action.
type ModerationInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ValidationError represents an error encountered during validation of a struct field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator wraps a configured go-playground validator.
type Validator struct {
	cli *validator.Validate
}

// New initializes and returns a new instance of the Validator.
func New() *Validator {
	cli := validator.New(validator.WithRequiredStructEnabled())
	cli.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = cli.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseCategory(fl.Field().String())
		return ok
	})
	return &Validator{cli: cli}
}

func (v *Validator) formatError(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "url":
		return "must be a valid URL"
	case "category":
		return "is not a known category"
	default:
		return fe.Error()
	}
}

// ValidateStruct validates s and returns one entry per failing field.
func (v *Validator) ValidateStruct(s any) []ValidationError {
	if err := v.cli.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// Submission trims in and validates it. Content length is measured in
// characters after trimming.
func (v *Validator) Submission(in *SubmissionInput) error {
	in.Content = strings.TrimSpace(in.Content)
	in.Category = strings.TrimSpace(in.Category)
	in.Affiliation = strings.TrimSpace(in.Affiliation)
	in.MediaURL = strings.TrimSpace(in.MediaURL)
	return AsAppError(v.ValidateStruct(in))
}

// Comment trims in and validates it.
func (v *Validator) Comment(in *CommentInput) error {
	in.Content = strings.TrimSpace(in.Content)
	return AsAppError(v.ValidateStruct(in))
}

// Moderation trims in and validates it.
func (v *Validator) Moderation(in *ModerationInput) error {
	in.Reason = strings.TrimSpace(in.Reason)
	return AsAppError(v.ValidateStruct(in))
}

// AsAppError folds field errors into one VALIDATION_ERROR, or nil.
func AsAppError(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Field == "" {
			parts = append(parts, e.Message)
			continue
		}
		parts = append(parts, e.Field+" "+e.Message)
	}
	return models.NewValidationError(strings.Join(parts, "; "))
}
