package knowledge

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 50 << 20

// AllowedExtensions lists the accepted upload types.
var AllowedExtensions = []string{"pdf", "docx", "txt", "csv", "xls", "xlsx", "doc", "json"}

// CreateRequest is the input of Service.Create.
type CreateRequest struct {
	Name        string     `json:"name" validate:"required,max=255"`
	Description string     `json:"description"`
	SourceType  SourceType `json:"source_type" validate:"required,oneof=file link manual"`
	SourceURL   string     `json:"source_url" validate:"required_if=SourceType link,omitempty,url"`
	Content     string     `json:"content" validate:"required_if=SourceType manual"`
	Files       []Upload   `json:"files" validate:"dive"`
}

// Upload is one file attached to a CreateRequest.
type Upload struct {
	Filename    string                        `json:"name" validate:"required,kb_extension"`
	Size        int64                         `json:"size" validate:"max=52428800"`
	ContentType string                        `json:"-"`
	Open        func() (io.ReadCloser, error) `json:"-"`
}

// ValidationError carries field-level messages keyed by JSON field path.
type ValidationError struct {
	Fields map[string][]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return "knowledge: invalid fields: " + strings.Join(keys, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("kb_extension", func(fl validator.FieldLevel) bool {
		return allowedExtension(fl.Field().String())
	})
	return v
}

func allowedExtension(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Validate checks the request and returns a *ValidationError on failure.
func (r CreateRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: map[string][]string{}}
	for _, fe := range verrs {
		key := fieldPath(fe.Namespace())
		out.Fields[key] = append(out.Fields[key], message(fe))
	}
	return out
}

// fieldPath drops the struct name: "CreateRequest.files[0].name" -> "files[0].name".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "required_if":
		parts := strings.Fields(fe.Param())
		return fmt.Sprintf("The %s field is required when source type is %s.", field, parts[len(parts)-1])
	case "max":
		if fe.Field() == "size" {
			return fmt.Sprintf("The file may not be greater than %d kilobytes.", MaxFileSize/1024)
		}
		return fmt.Sprintf("The %s may not be greater than %s characters.", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	case "url":
		return fmt.Sprintf("The %s format is invalid.", field)
	case "kb_extension":
		return "The file must be a file of type: " + strings.Join(AllowedExtensions, ", ") + "."
	}
	return fmt.Sprintf("The %s field is invalid.", field)
}
