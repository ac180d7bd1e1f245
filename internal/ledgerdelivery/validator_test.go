package ledgerdelivery

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/pkg/moneypkg"
)

func TestRegisterValidation(t *testing.T) {
	v := validator.New()

	require.NoError(t, registerValidation(v, "amount", moneypkg.ValidAmount))
	require.NoError(t, v.Var("10.00", "amount"))
	require.Error(t, v.Var("-1", "amount"))

	err := registerValidation(v, "", moneypkg.ValidAmount)
	require.ErrorContains(t, err, "cannot register  validator")
	require.ErrorContains(t, err, "cannot be empty")
}

func TestRegisterValidators(t *testing.T) {
	require.NoError(t, RegisterValidators())
}
