// Package validation wraps go-playground/validator with English messages
// keyed by JSON field names.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Error carries per-field messages for a rejected input.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewError builds a single-field validation error.
func NewError(field, msg string) *Error {
	return &Error{Fields: map[string]string{field: msg}}
}

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func New() *Validator {
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")

	validate := validator.New()
	_ = en_translations.RegisterDefaultTranslations(validate, trans)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: validate, translator: trans}
}

// RegisterStructRule installs a struct-level rule and the messages for the
// tags it reports.
func (v *Validator) RegisterStructRule(fn validator.StructLevelFunc, messages map[string]string, types ...interface{}) {
	v.validate.RegisterStructValidation(fn, types...)
	for tag, text := range messages {
		v.registerMessage(tag, text)
	}
}

func (v *Validator) registerMessage(tag, text string) {
	_ = v.validate.RegisterTranslation(
		tag, v.translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Struct validates s and converts failures into *Error.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = fe.Translate(v.translator)
	}
	return out
}
