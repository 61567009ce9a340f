package dto

type AuthTelegramRequest struct {
	InitData string `json:"init_data"`
}

// ConfirmOrderRequest mirrors the "/confirm <order_id> <user_id>" command:
// the buyer's telegram id must match the order.
type ConfirmOrderRequest struct {
	UserID int64 `json:"user_id"`
}
