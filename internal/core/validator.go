package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"simplenotes/internal/types"
)

// MaxNoteTitleLength is the longest accepted note title, in characters.
const MaxNoteTitleLength = 200

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validator wraps go-playground/validator with the API's custom tags and
// converts failures into validation AppErrors.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator. Field names in errors use the json tag.
//
// Custom tags:
//   - note_title: 1..MaxNoteTitleLength characters after trimming whitespace
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("note_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return title != "" && utf8.RuneCountInString(title) <= MaxNoteTitleLength
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s. On failure it returns an AppError whose code
// comes from the first failing tag and whose details carry every failure
// under "validation_errors".
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Code:    tagToErrorCode(fe.Tag()),
			Message: messageFor(fe),
		})
	}

	return types.NewAppErrorWithDetails(
		types.ErrorCode(out[0].Code),
		out[0].Message,
		err,
		map[string]any{"validation_errors": out},
	)
}

// tagToErrorCode maps a validator tag to the AppError code it reports.
func tagToErrorCode(tag string) string {
	switch tag {
	case "email":
		return string(types.ErrCodeValidationInvalidEmail)
	case "note_title":
		return string(types.ErrCodeValidationInvalidTitle)
	case "uuid", "uuid4":
		return string(types.ErrCodeValidationInvalidID)
	default:
		return string(types.ErrCodeValidationMissingField)
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "note_title":
		return fmt.Sprintf("%s must be 1 to %d characters", fe.Field(), MaxNoteTitleLength)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
