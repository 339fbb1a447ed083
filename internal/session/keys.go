package session

// Redis key templates, formatted with the session or draft ID.
const (
	// KeyPurchase holds a JSON-encoded workflow.Session.
	KeyPurchase = "purchase:%s"
	// KeyPaymentLock is held while a payment of the purchase session is being settled.
	KeyPaymentLock = "purchase:%s:pay"
	// KeyDraft holds a JSON-encoded Draft.
	KeyDraft = "draft:%s"
)
