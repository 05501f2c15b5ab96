package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

// Enumerations accepted by the custom tags.
var (
	PayoutKeyTypes     = []string{"cpf", "cnpj", "email", "phone", "random"}
	BetTypes           = []string{"red", "black", "green", "odd", "even", "number"}
	Decisions          = []string{"approve", "reject"}
	WithdrawalStatuses = []string{"pending", "approved", "rejected"}
	EntryKinds         = []string{"deposit", "withdrawal", "withdrawal_refund", "withdrawal_completed", "bet", "payout"}
)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func oneOf(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := strings.ToLower(fl.Field().String())
		for _, allowed := range values {
			if v == allowed {
				return true
			}
		}
		return false
	}
}

func registerCustomValidations() {
	_ = validate.RegisterValidation("payout_key_type", oneOf(PayoutKeyTypes))
	_ = validate.RegisterValidation("bet_type", oneOf(BetTypes))
	_ = validate.RegisterValidation("decision", oneOf(Decisions))
	_ = validate.RegisterValidation("withdrawal_status", oneOf(WithdrawalStatuses))
	_ = validate.RegisterValidation("entry_kind", oneOf(EntryKinds))
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range validationErrors {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "uuid", "uuid4":
			errors[field] = "Invalid identifier"
		case "payout_key_type":
			errors[field] = "Invalid payout key type. Must be: " + strings.Join(PayoutKeyTypes, ", ")
		case "bet_type":
			errors[field] = "Invalid bet type. Must be: " + strings.Join(BetTypes, ", ")
		case "decision":
			errors[field] = "Invalid decision. Must be: approve or reject"
		case "withdrawal_status":
			errors[field] = "Invalid status. Must be: " + strings.Join(WithdrawalStatuses, ", ")
		case "entry_kind":
			errors[field] = "Invalid transaction kind"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
