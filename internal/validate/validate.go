package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	requiredTag  = "required"
	requiredText = "this field is required"

	identifierTag  = "identifier"
	identifierText = "{0} must not contain spaces or control characters"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError carries the failing fields of a request.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	return err.Err.Error()
}

// Validator checks structs against their validate tags and renders
// English messages keyed by JSON field names.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func New() *Validator {
	locale := en.New()
	translator, _ := ut.New(locale, locale).GetTranslator("en")
	v := validator.New()
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(identifierTag, identifierValidation)
	registerTranslation(v, translator, identifierTag, identifierText, false)
	registerTranslation(v, translator, requiredTag, requiredText, true)
	return &Validator{validate: v, translator: translator}
}

func registerTranslation(v *validator.Validate, translator ut.Translator, tag, text string, override bool) {
	_ = v.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// identifierValidation rejects ids with whitespace or control characters.
func identifierValidation(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && !strings.ContainsAny(s, " \t\r\n\x00")
}

// Struct validates s and returns a *ValidationError listing every failing field.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldPath(fe), Error: fe.Translate(v.translator)})
	}
	return &ValidationError{Err: errors.New("invalid request"), Fields: fields}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
