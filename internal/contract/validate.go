package contract

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/sells-group/elasticity-cli/internal/model"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func contractValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("formula", isFormula)
		_ = v.RegisterValidation("capture_group", hasOneCaptureGroup)
		v.RegisterStructValidation(baseRuleLevel, BaseRule{})

		// Report yaml key names so messages point at the document.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

// isFormula accepts "<numerator> / <denominator>". Empty values pass so the
// required_without rule decides presence.
func isFormula(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, _, ok := PriceRule{Formula: s}.Operands()
	return ok
}

// hasOneCaptureGroup accepts a compilable pattern with exactly one group.
func hasOneCaptureGroup(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	re, err := regexp.Compile(s)
	if err != nil {
		return false
	}
	return re.NumSubexp() == 1
}

func baseRuleLevel(sl validator.StructLevel) {
	b := sl.Current().Interface().(BaseRule)
	if b.Fallback != "" && b.Formula == "" {
		sl.ReportError(b.Fallback, "fallback", "Fallback", "fallback_formula", "")
	}
	if b.MinDenominator > 0 && b.Fallback == "" {
		sl.ReportError(b.MinDenominator, "min_denominator", "MinDenominator", "fallback_required", "")
	}
}

// formatErrors joins field errors into one readable message.
func formatErrors(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return strings.Join(msgs, "; ")
}

func validateContract(c Contract) error {
	err := contractValidator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewConfigurationError(c.Name, "validate contract: %v", err)
	}
	return model.NewConfigurationError(c.Name, "%s", formatErrors(verrs))
}

func formatFieldError(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_without":
		return fmt.Sprintf("%s is required when %s is not set", field, strings.ToLower(param))
	case "excluded_with":
		return fmt.Sprintf("%s cannot be combined with %s", field, strings.ToLower(param))
	case "formula":
		return fmt.Sprintf("%s must look like \"<numerator column> / <denominator column>\"", field)
	case "capture_group":
		return fmt.Sprintf("%s must be a valid pattern with exactly one capture group", field)
	case "fallback_formula":
		return fmt.Sprintf("%s only applies to formula base prices", field)
	case "fallback_required":
		return fmt.Sprintf("%s needs a fallback column", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
