package domain

import "time"

// Operation identifies whether an order write creates a new document or
// mutates an existing one. Amount precedence depends on it.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)

// Valid reports whether the operation is one of the known write kinds.
func (o Operation) Valid() bool {
	return o == OperationCreate || o == OperationUpdate
}

// ShippingMode describes how a line item contributes to the shipping total.
type ShippingMode string

const (
	ShippingModeFree       ShippingMode = "free"
	ShippingModeFlat       ShippingMode = "flat"
	ShippingModeCalculated ShippingMode = "calculated"
)

// Valid reports whether the mode is recognised. The empty mode is accepted and
// treated as free.
func (m ShippingMode) Valid() bool {
	switch m {
	case "", ShippingModeFree, ShippingModeFlat, ShippingModeCalculated:
		return true
	}
	return false
}

// Address is the shipping destination passed to the quote collaborator.
type Address struct {
	Line1      string `firestore:"line1" json:"line1"`
	Line2      string `firestore:"line2,omitempty" json:"line2,omitempty"`
	City       string `firestore:"city" json:"city"`
	State      string `firestore:"state,omitempty" json:"state,omitempty"`
	PostalCode string `firestore:"postalCode" json:"postalCode"`
	Country    string `firestore:"country" json:"country"`
}

// OrderItem is a single order line. Amount fields are optional snapshots from
// the processor; when present they take precedence over unitAmount*quantity
// in the items-subtotal derivation.
type OrderItem struct {
	ProductRef       string       `firestore:"productRef" json:"productRef"`
	Quantity         int64        `firestore:"quantity" json:"quantity"`
	UnitAmount       int64        `firestore:"unitAmountCents" json:"unitAmountCents"`
	AmountSubtotal   *int64       `firestore:"amountSubtotalCents,omitempty" json:"amountSubtotalCents,omitempty"`
	AmountTax        *int64       `firestore:"amountTaxCents,omitempty" json:"amountTaxCents,omitempty"`
	AmountTotal      *int64       `firestore:"amountTotalCents,omitempty" json:"amountTotalCents,omitempty"`
	ShippingMode     ShippingMode `firestore:"shippingMode,omitempty" json:"shippingMode,omitempty"`
	ShippingSubtotal int64        `firestore:"shippingSubtotalCents,omitempty" json:"shippingSubtotalCents,omitempty"`
}

// OrderAmounts is the authoritative amounts block. It is overwritten as a
// whole on every order write; once the block exists every field in it is an
// explicit value, which is what makes persisted zeros trustworthy.
type OrderAmounts struct {
	Subtotal      int64 `firestore:"subtotalCents" json:"subtotalCents"`
	ShippingTotal int64 `firestore:"shippingTotalCents" json:"shippingTotalCents"`
	DiscountTotal int64 `firestore:"discountTotalCents" json:"discountTotalCents"`
	TaxTotal      int64 `firestore:"taxTotalCents" json:"taxTotalCents"`
	PlatformFee   int64 `firestore:"platformFeeCents" json:"platformFeeCents"`
	ProcessorFee  int64 `firestore:"stripeFeeCents" json:"stripeFeeCents"`
	SellerNet     int64 `firestore:"sellerNetCents" json:"sellerNetCents"`
}

// Gross derives the gross order total. It is never persisted independently;
// it must always be reproducible from the four inputs.
func (a OrderAmounts) Gross() int64 {
	gross := a.Subtotal + a.ShippingTotal - a.DiscountTotal + a.TaxTotal
	if gross < 0 {
		return 0
	}
	return gross
}

// Order is the mutable aggregate under reconciliation.
type Order struct {
	ID             string        `firestore:"-" json:"id"`
	SellerTenantID string        `firestore:"sellerTenantId" json:"sellerTenantId"`
	BuyerID        string        `firestore:"buyerId" json:"buyerId"`
	Items          []OrderItem   `firestore:"items" json:"items"`
	Amounts        *OrderAmounts `firestore:"amounts,omitempty" json:"amounts,omitempty"`
	// Total is the amount actually captured by the payment processor. Only
	// create-time input or system-trusted writes may change it.
	Total                   int64      `firestore:"totalCents" json:"totalCents"`
	Destination             *Address   `firestore:"destination,omitempty" json:"destination,omitempty"`
	ProcessorIdempotencyKey string     `firestore:"processorIdempotencyKey,omitempty" json:"processorIdempotencyKey,omitempty"`
	CreatedAt               time.Time  `firestore:"createdAt" json:"createdAt"`
	UpdatedAt               time.Time  `firestore:"updatedAt" json:"updatedAt"`
	PaidAt                  *time.Time `firestore:"paidAt,omitempty" json:"paidAt,omitempty"`
}

// ProcessedEvent records that an upstream processor event has been applied.
// Existence of the document, enforced by the store's create-if-absent
// semantics, is the idempotency gate.
type ProcessedEvent struct {
	EventID     string    `firestore:"eventId" json:"eventId"`
	Source      string    `firestore:"source,omitempty" json:"source,omitempty"`
	ProcessedAt time.Time `firestore:"processedAt" json:"processedAt"`
}

// AuditRecord captures an attempted fee override by a non-system actor.
// Append-only; failures to write one must never fail the parent order write.
type AuditRecord struct {
	ID                    string    `firestore:"-" json:"id"`
	OrderID               string    `firestore:"orderId" json:"orderId"`
	ActorID               string    `firestore:"actorId" json:"actorId"`
	Operation             Operation `firestore:"operation" json:"operation"`
	SystemTrusted         bool      `firestore:"isSystemTrusted" json:"isSystemTrusted"`
	AttemptedPlatformFee  *int64    `firestore:"attemptedPlatformFeeCents,omitempty" json:"attemptedPlatformFeeCents,omitempty"`
	AttemptedProcessorFee *int64    `firestore:"attemptedStripeFeeCents,omitempty" json:"attemptedStripeFeeCents,omitempty"`
	Fields                []string  `firestore:"fields,omitempty" json:"fields,omitempty"`
	OccurredAt            time.Time `firestore:"timestamp" json:"timestamp"`
}

// TenantCounter is a denormalized per-tenant listing count.
type TenantCounter struct {
	TenantID  string    `firestore:"-" json:"tenantId"`
	Count     int64     `firestore:"count" json:"count"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"updatedAt"`
}
