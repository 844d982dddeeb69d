package controllers

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertFox/internal/pkg/billing"
	"github.com/ManuelReschke/CertFox/internal/pkg/entitlements"
)

const requestTimeout = 20 * time.Second

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requestContext bounds a handler's store and gateway calls.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

func respondOK(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "data": data})
}

func respondCreated(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

// statusForKind maps a billing failure class onto its HTTP status.
func statusForKind(k billing.Kind) int {
	switch k {
	case billing.KindValidation, billing.KindNotApplicable:
		return fiber.StatusBadRequest
	case billing.KindAuth, billing.KindSignatureInvalid:
		return fiber.StatusUnauthorized
	case billing.KindInsufficientCredits, billing.KindGatewayFatal:
		return fiber.StatusPaymentRequired
	case billing.KindEntitlement:
		return fiber.StatusForbidden
	case billing.KindNotFound:
		return fiber.StatusNotFound
	case billing.KindConflict:
		return fiber.StatusConflict
	case billing.KindGatewayTransient:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	if errors.Is(err, entitlements.ErrOrganizationNotFound) {
		err = &billing.Error{Kind: billing.KindNotFound, Message: "organization not found", Err: err}
	}
	kind := billing.KindOf(err)
	status := statusForKind(kind)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[Billing] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   kind,
		"message": billing.Message(err),
	})
}

func validationError(msg string) error {
	return &billing.Error{Kind: billing.KindValidation, Message: msg}
}

// bindJSON decodes the request body into dst and runs its validate tags. An
// empty body is accepted when allowEmpty is set.
func bindJSON(c *fiber.Ctx, dst interface{}, allowEmpty bool) error {
	if len(c.Body()) == 0 {
		if !allowEmpty {
			return validationError("request body is required")
		}
	} else if err := c.BodyParser(dst); err != nil {
		return validationError("invalid JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(problems, "; ")
}
