package v1

// ActionRecovery is the action stamped on scheduler-issued notifications.
// Every other notification carries the triggering event type as its action.
const ActionRecovery = "recovery"

// NotificationPayload is the flat shape posted to the automation webhook.
// Optional fields default to ""/0/false rather than null; the purchase- and
// error-only fields are omitted entirely for other actions.
type NotificationPayload struct {
	Timestamp string `json:"timestamp"` // RFC 3339
	Action    string `json:"action"`
	Status    string `json:"status"`
	CartID    string `json:"cartId"`

	UserID    string `json:"userId"`
	UserPhone string `json:"userPhone"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
	UserTaxID string `json:"userTaxId"`

	ProductID     string `json:"productId"`
	ProductName   string `json:"productName"`
	ProductAuthor string `json:"productAuthor"`
	ProductType   string `json:"productType"`

	CartValue  float64 `json:"cartValue"`
	TotalValue float64 `json:"totalValue"`
	Currency   string  `json:"currency"`

	PaymentMethod   string  `json:"paymentMethod"`
	Installments    int     `json:"installments"`
	HasInstallments bool    `json:"hasInstallments"`
	DiscountCode    string  `json:"discountCode"`
	DiscountValue   float64 `json:"discountValue"`

	HoursSinceLastEvent int `json:"hoursSinceLastEvent"`

	// Present only when action == purchase.
	Recovered     *bool    `json:"recovered,omitempty"`
	RecoveryValue *float64 `json:"recoveryValue,omitempty"`

	// Present only when action == error.
	StatusCode   *int    `json:"statusCode,omitempty"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
}
