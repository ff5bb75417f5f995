// Package validation はTaskの入力検証を行います。HTMLフォームとJSON APIの両方から使われます。
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"mini-task-manager/internal/models"
)

const (
	MsgTitleRequired       = "Title is required"
	MsgTitleLength         = "Title must be between 1 and 100 characters"
	MsgTitleEncoding       = "Title contains invalid characters"
	MsgDescriptionLength   = "Description must be less than 500 characters"
	MsgDescriptionEncoding = "Description contains invalid characters"
	MsgCompletedBoolean    = "Completed must be a boolean"

	fieldTitle       = "title"
	fieldDescription = "description"
	fieldCompleted   = "completed"
	fieldNonField    = "_"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("register notblank: %v", err))
	}
	if err := v.RegisterValidation("utf8", validUTF8); err != nil {
		panic(fmt.Sprintf("register utf8: %v", err))
	}
	return v
}

// validUTF8 は文字列が正しいUTF-8であることを検証します。
func validUTF8(fl validator.FieldLevel) bool {
	return utf8.ValidString(fl.Field().String())
}

// ValidationError はフィールドごとのエラーメッセージを保持します。
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], ", ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// First は指定フィールドの最初のメッセージを返します。
func (e *ValidationError) First(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// AsValidationError はerrがValidationErrorならそれを返します。
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// ValidateInput は作成用の入力をすべて検証します。
func ValidateInput(in models.TaskInput) error {
	verr := &ValidationError{}
	collect(verr, validate.Struct(in))
	return verr.orNil()
}

// ValidatePatch は指定されたフィールドだけを検証します。
// nullのtitleは空文字として扱い、nullのcompletedはエラーになります。
func ValidatePatch(p models.TaskPatch) error {
	verr := &ValidationError{}
	in := models.TaskInput{Title: p.Title.Value, Description: p.Description.Value}
	var fields []string
	if p.Title.Set {
		fields = append(fields, "Title")
	}
	if p.Description.Set {
		fields = append(fields, "Description")
	}
	if len(fields) > 0 {
		collect(verr, validate.StructPartial(in, fields...))
	}
	if p.Completed.Set && p.Completed.Null {
		verr.add(fieldCompleted, MsgCompletedBoolean)
	}
	return verr.orNil()
}

func collect(verr *ValidationError, err error) {
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add(fieldNonField, err.Error())
		return
	}
	for _, fe := range fieldErrs {
		switch fe.StructField() {
		case "Title":
			switch fe.Tag() {
			case "notblank":
				verr.add(fieldTitle, MsgTitleRequired)
			case "utf8":
				verr.add(fieldTitle, MsgTitleEncoding)
			default:
				verr.add(fieldTitle, MsgTitleLength)
			}
		case "Description":
			if fe.Tag() == "utf8" {
				verr.add(fieldDescription, MsgDescriptionEncoding)
			} else {
				verr.add(fieldDescription, MsgDescriptionLength)
			}
		default:
			verr.add(strings.ToLower(fe.StructField()), fe.Error())
		}
	}
}
