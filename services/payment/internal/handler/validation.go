package handler

import (
	"strings"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"example.com/funnel-payments/services/payment/internal/domain"
)

// RegisterValidators регистрирует теги валидации в движке gin binding:
//
//	purchasable — product_type, оплачиваемый через прямой шлюз
//	br_document — CPF (11 цифр) или CNPJ (14 цифр), разделители допускаются
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("purchasable", validatePurchasable); err != nil {
		return err
	}
	return v.RegisterValidation("br_document", validateBRDocument)
}

func validatePurchasable(fl validator.FieldLevel) bool {
	switch domain.ProductType(fl.Field().String()) {
	case domain.ProductSubscription, domain.ProductTikTokAccount, domain.ProductModel:
		return true
	}
	return false
}

func validateBRDocument(fl validator.FieldLevel) bool {
	digits := onlyDigits(fl.Field().String())
	return len(digits) == 11 || len(digits) == 14
}

// onlyDigits убирает точки, дефисы и слэши из CPF/CNPJ.
func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
