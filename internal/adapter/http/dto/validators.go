package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)
	currencyRe   = regexp.MustCompile(`^[a-zA-Z]{3}$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("iso_currency", validateCurrency)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateCurrency accepts a three letter code in any case.
// Whether the ledger supports it is decided by the service.
func validateCurrency(fl validator.FieldLevel) bool {
	return currencyRe.MatchString(fl.Field().String())
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer. Maps are left alone.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
