package dto

import "github.com/digital-shop/bot/internal/models"

type AuthResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
	User  any    `json:"user"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type ListResponse struct {
	Items  any `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ConfirmResponse struct {
	Order          *models.Order `json:"order"`
	AlreadyGranted bool          `json:"already_granted"`
	Delivered      bool          `json:"delivered"`
	DeliveryError  string        `json:"delivery_error,omitempty"`
}

type CurrencyInfo struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}
