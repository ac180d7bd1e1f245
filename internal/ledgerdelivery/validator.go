package ledgerdelivery

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/go-petr/pet-ledger/pkg/moneypkg"
)

// RegisterValidators registers the amount and balance binding rules used by
// the request types with gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}

	if err := registerValidation(v, "amount", moneypkg.ValidAmount); err != nil {
		return err
	}

	return registerValidation(v, "balance", moneypkg.ValidBalance)
}

func registerValidation(v *validator.Validate, tag string, fn validator.Func) error {
	if err := v.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("cannot register %s validator: %w", tag, err)
	}

	return nil
}
