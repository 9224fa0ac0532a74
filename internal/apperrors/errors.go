package apperrors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeEmptyCart          Code = "EMPTY_CART"
	CodeProductUnavailable Code = "PRODUCT_UNAVAILABLE"
	CodeInvalidStatus      Code = "INVALID_STATUS"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeGateway            Code = "GATEWAY_ERROR"
	CodePersistence        Code = "PERSISTENCE_ERROR"
	CodeInternal           Code = "INTERNAL_ERROR"
)

type Metadata struct {
	HTTPStatus    int
	PublicMessage string
	// ExposeMessage lets the error's own message reach the client.
	ExposeMessage bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:         {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", ExposeMessage: true},
	CodeEmptyCart:          {HTTPStatus: http.StatusBadRequest, PublicMessage: "Your cart is empty", ExposeMessage: true},
	CodeProductUnavailable: {HTTPStatus: http.StatusBadRequest, PublicMessage: "Some products in your cart are no longer available", ExposeMessage: true},
	CodeInvalidStatus:      {HTTPStatus: http.StatusBadRequest, PublicMessage: "invalid order status", ExposeMessage: true},
	CodeUnauthenticated:    {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ExposeMessage: true},
	CodeForbidden:          {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied", ExposeMessage: true},
	CodeNotFound:           {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ExposeMessage: true},
	CodeConflict:           {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", ExposeMessage: true},
	CodeGateway:            {HTTPStatus: http.StatusInternalServerError, PublicMessage: "Payment service error. Please try again."},
	CodePersistence:        {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error"},
	CodeInternal:           {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error"},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is an application error carrying a taxonomy code.
type Error struct {
	code    Code
	message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches an *Error with the same code and message, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code && e.message == t.message
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the taxonomy code of err, CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

var (
	ErrEmptyCart          = New(CodeEmptyCart, "Your cart is empty")
	ErrProductUnavailable = New(CodeProductUnavailable, "Some products in your cart are no longer available")
	ErrInvalidStatus      = New(CodeInvalidStatus, "invalid order status")
	ErrOrderNotFound      = New(CodeNotFound, "Order not found")
	ErrPaymentNotFound    = New(CodeNotFound, "Payment not found")
	ErrUnauthorized       = New(CodeForbidden, "Unauthorized access to payment")
	ErrCheckoutInProgress = New(CodeConflict, "A checkout is already in progress")
	ErrIntentMismatch     = New(CodeValidation, "payment_intent_id does not match this payment")
	ErrPaymentFailed      = New(CodeConflict, "Payment has failed")
)

// Gateway wraps a payment processor failure.
func Gateway(err error) *Error {
	return Wrap(CodeGateway, err, "payment gateway request failed")
}

// Persistence wraps an unexpected storage failure.
func Persistence(err error, message string) *Error {
	return Wrap(CodePersistence, err, message)
}

// Validation builds a client-facing validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}
