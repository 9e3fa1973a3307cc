package api

// API request/response types for REST endpoints and WebSocket messages.
// Amounts cross the wire as decimal strings so arbitrary-precision values
// survive JSON; assets as "native" or a 0x token address.

// ==============================
// REST Request Types
// ==============================

// CreateOrderRequest is the payload for POST /api/v1/orders
type CreateOrderRequest struct {
	Creator         string `json:"creator"`         // caller address
	PurchaseAsset   string `json:"purchaseAsset"`   // "native" or token address
	PurchaseValue   string `json:"purchaseValue"`   // decimal string
	PaymentAsset    string `json:"paymentAsset"`
	PaymentValue    string `json:"paymentValue"`
	CollateralAsset string `json:"collateralAsset"`
	CollateralValue string `json:"collateralValue"`
	TimeToFill      int64  `json:"timeToFill,omitempty"`    // advisory, milliseconds
	AttachedValue   string `json:"attachedValue,omitempty"` // native payments only
}

// CommitOrderRequest is the payload for POST /api/v1/orders/{id}/commit
type CommitOrderRequest struct {
	Filler        string `json:"filler"`
	AttachedValue string `json:"attachedValue,omitempty"` // native collateral only
}

// CancelOrderRequest is the payload for POST /api/v1/orders/{id}/cancel
type CancelOrderRequest struct {
	Caller string `json:"caller"`
}

// FillOrderRequest is the payload for POST /api/v1/orders/{id}/fill
type FillOrderRequest struct {
	Caller        string `json:"caller"`
	AttachedValue string `json:"attachedValue,omitempty"` // native purchase asset only
}

// FaucetRequest is the payload for the devnet mint endpoints
type FaucetRequest struct {
	Token   string `json:"token,omitempty"` // empty for native
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// ApproveRequest grants the engine vault an allowance (devnet helper)
type ApproveRequest struct {
	Token  string `json:"token"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

// ==============================
// REST Response Types
// ==============================

// OrderInfo represents an active or archived order
type OrderInfo struct {
	ID              uint64 `json:"id"`
	Creator         string `json:"creator"`
	PurchaseAsset   string `json:"purchaseAsset"`
	PurchaseValue   string `json:"purchaseValue"`
	PaymentAsset    string `json:"paymentAsset"`
	PaymentValue    string `json:"paymentValue"`
	CollateralAsset string `json:"collateralAsset"`
	CollateralValue string `json:"collateralValue"`
	Committed       bool   `json:"committed"`
	Filler          string `json:"filler,omitempty"`
	TimeToFill      int64  `json:"timeToFill"`
	CreatedAt       int64  `json:"createdAt"`
	CommittedAt     int64  `json:"committedAt,omitempty"`
	Outcome         string `json:"outcome,omitempty"`  // archive entries only
	ClosedAt        int64  `json:"closedAt,omitempty"` // archive entries only
}

// CreateOrderResponse is the response from order creation
type CreateOrderResponse struct {
	Status  string `json:"status"` // "created"
	OrderID uint64 `json:"orderId"`
}

// OpResponse is the response from commit/cancel/fill
type OpResponse struct {
	Status  string `json:"status"` // "committed", "cancelled", "filled"
	OrderID uint64 `json:"orderId"`
}

// BalanceInfo represents an address's holdings of one asset
type BalanceInfo struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

// EscrowInfo reports the engine-held escrow total for one asset
type EscrowInfo struct {
	Asset    string `json:"asset"`
	Escrowed string `json:"escrowed"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`   // taxonomy kind: authorization | state | value_mismatch | transfer | ...
	Message string `json:"message"` // stable reason string
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orders"]
}

// OrderEventUpdate is broadcast on every successful lifecycle transition
type OrderEventUpdate struct {
	Type      string `json:"type"` // "order_created" | "order_committed" | "order_cancelled" | "order_filled"
	OrderID   uint64 `json:"orderId"`
	Creator   string `json:"creator"`
	Filler    string `json:"filler,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
