package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type withdrawalInput struct {
	Credits int64  `json:"credits" validate:"required,gte=1"`
	KeyType string `json:"payout_key_type" validate:"required,payout_key_type"`
	Key     string `json:"payout_key" validate:"required,max=140"`
}

type spinInput struct {
	BetType string `json:"bet_type" validate:"required,bet_type"`
}

func TestValidate_UsesJSONNamesAndCustomTags(t *testing.T) {
	errs := Validate(&withdrawalInput{Credits: 0, KeyType: "iban"})

	assert.Equal(t, "This field is required", errs["credits"])
	assert.Contains(t, errs["payout_key_type"], "cpf")
	assert.Equal(t, "This field is required", errs["payout_key"])
}

func TestValidate_Passes(t *testing.T) {
	assert.Nil(t, Validate(&withdrawalInput{Credits: 100, KeyType: "CPF", Key: "123"}))
	assert.Nil(t, Validate(&spinInput{BetType: "green"}))
}

func TestValidate_BetType(t *testing.T) {
	errs := Validate(&spinInput{BetType: "dozen"})
	assert.Contains(t, errs["bet_type"], "Invalid bet type")
}

func TestValidateVar(t *testing.T) {
	assert.NoError(t, ValidateVar("reject", "decision"))
	assert.Error(t, ValidateVar("maybe", "decision"))
}
