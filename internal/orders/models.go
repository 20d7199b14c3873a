package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderItem is one line of an order. ID is a synthetic item+variant composite
// assigned by the menu UI and is unique within the order.
type OrderItem struct {
	ID                  string  `bson:"id" json:"id"`
	Name                string  `bson:"name" json:"name"`
	Quantity            int     `bson:"quantity" json:"quantity"`
	Price               float64 `bson:"price" json:"price"`
	QuantityID          string  `bson:"quantityId" json:"quantityId"`
	QuantityDescription string  `bson:"quantityDescription" json:"quantityDescription"`
}

type Timestamps struct {
	Created time.Time `bson:"created" json:"created"`
	Updated time.Time `bson:"updated" json:"updated"`
}

// Order is the central document. OrderID and OutletID are immutable once
// created; TotalAmount is caller-supplied and never recomputed from Items
// (see repo.go).
type Order struct {
	OrderID       string        `bson:"orderId" json:"orderId"`
	OutletID      string        `bson:"outletId" json:"outletId"`
	Items         []OrderItem   `bson:"items" json:"items"`
	TotalAmount   float64       `bson:"totalAmount" json:"totalAmount"`
	OrderStatus   Status        `bson:"orderStatus" json:"orderStatus"`
	PaymentStatus PaymentStatus `bson:"paymentStatus" json:"paymentStatus"`
	Comments      string        `bson:"comments" json:"comments"`
	CustomerName  string        `bson:"customerName,omitempty" json:"customerName,omitempty"`
	TableNumber   string        `bson:"tableNumber,omitempty" json:"tableNumber,omitempty"`
	Timestamps    Timestamps    `bson:"timestamps" json:"timestamps"`
}

// CreateInput is a checkout request. TotalAmount is trusted as-is.
type CreateInput struct {
	OutletID     string      `json:"outletId"`
	Items        []OrderItem `json:"items"`
	TotalAmount  float64     `json:"totalAmount"`
	Comments     string      `json:"comments"`
	CustomerName string      `json:"customerName"`
	TableNumber  string      `json:"tableNumber"`
}

// UpdateInput carries partial fields; nil means leave unchanged.
type UpdateInput struct {
	OrderStatus   *Status        `json:"orderStatus,omitempty"`
	PaymentStatus *PaymentStatus `json:"paymentStatus,omitempty"`
	Comments      *string        `json:"comments,omitempty"`
	Items         []OrderItem    `json:"items,omitempty"`
	TotalAmount   *float64       `json:"totalAmount,omitempty"`
}

// NewOrderID builds a human-readable order id:
// ORD-<millisecond timestamp>-<8 uppercase chars of a fresh uuid>.
func NewOrderID(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}
