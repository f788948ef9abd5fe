package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("invalid request")

	validate = validator.New()
)

type SetQuantityRequest struct {
	Value string `json:"value" validate:"required,max=32"`
}

type RenameEventRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type LayoutRequest struct {
	Mode LayoutMode `json:"mode" validate:"required,oneof=tabs grid"`
}

type ManagerEmailsRequest struct {
	Emails []string `json:"emails" validate:"max=50,dive,required,email"`
}

// Validate runs the struct tags of req.
func Validate(req any) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidRequest, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
