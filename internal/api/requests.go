package api

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

type checkoutRequest struct {
	DeliveryDate string `json:"delivery_date" binding:"required,datetime=2006-01-02,future_date"`
	DeliveryTime string `json:"delivery_time" binding:"required"`
	ShopperID    string `json:"shopper_id" binding:"required,max=500"`
}

func (r checkoutRequest) toService() service.CheckoutRequest {
	date, _ := time.Parse(dateLayout, r.DeliveryDate)
	return service.CheckoutRequest{
		DeliveryDate: date,
		DeliveryTime: strings.TrimSpace(r.DeliveryTime),
		ShopperID:    strings.TrimSpace(r.ShopperID),
	}
}

type confirmRequest struct {
	PaymentID       int64  `json:"payment_id" binding:"required,gt=0"`
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

var registerOnce sync.Once

// registerValidators adds the custom binding rules to gin's validator
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("future_date", futureDate)
	})
}

// futureDate accepts a YYYY-MM-DD string strictly after today (UTC)
func futureDate(fl validator.FieldLevel) bool {
	d, err := time.Parse(dateLayout, fl.Field().String())
	if err != nil {
		return false
	}
	today := time.Now().UTC().Format(dateLayout)
	return d.Format(dateLayout) > today
}

// bindJSON decodes the body into dest and turns binding failures into validation errors
func bindJSON(c *gin.Context, dest interface{}) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return bindError(err)
	}
	return nil
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Validation("Invalid request body")
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperrors.Validation(field + " is required")
	case "datetime":
		return apperrors.Validation(field + " must be a date in YYYY-MM-DD format")
	case "future_date":
		return apperrors.Validation(field + " must be a date after today")
	case "max":
		return apperrors.Validation(fmt.Sprintf("%s may not be greater than %s characters", field, fe.Param()))
	case "gt":
		return apperrors.Validation(field + " must be a positive integer")
	}
	return apperrors.Validation(field + " is invalid")
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("Invalid " + name)
	}
	return id, nil
}
