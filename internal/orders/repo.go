package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("order not found")

// Repo owns order persistence. Orders are never deleted; a completed order
// stays in the store and only migrates between views client-side.
type Repo struct{ Orders *mongo.Collection }

func (r *Repo) EnsureIndexes(ctx context.Context) error {
	_, err := r.Orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "outletId", Value: 1}, {Key: "timestamps.created", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Create inserts a fresh order: server-assigned id, taken/unpaid, both
// timestamps set to now. TotalAmount is stored as supplied by the caller and
// not recomputed from Items; that is a known integrity gap kept for
// compatibility with the staff dashboard.
func (r *Repo) Create(ctx context.Context, in CreateInput) (*Order, error) {
	now := time.Now().UTC()
	o := &Order{
		OrderID:       NewOrderID(now),
		OutletID:      in.OutletID,
		Items:         in.Items,
		TotalAmount:   in.TotalAmount,
		OrderStatus:   StatusTaken,
		PaymentStatus: PaymentUnpaid,
		Comments:      in.Comments,
		CustomerName:  in.CustomerName,
		TableNumber:   in.TableNumber,
		Timestamps:    Timestamps{Created: now, Updated: now},
	}
	if _, err := r.Orders.InsertOne(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (r *Repo) GetByOrderID(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := r.Orders.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &o, nil
}

// Update applies the provided fields and refreshes timestamps.updated.
// Invalid enum values are ignored rather than rejected, and no transition
// graph is enforced: staff may jump straight from taken to served.
func (r *Repo) Update(ctx context.Context, orderID string, in UpdateInput) (*Order, error) {
	set := bson.M{"timestamps.updated": time.Now().UTC()}
	if in.OrderStatus != nil && in.OrderStatus.Valid() {
		set["orderStatus"] = *in.OrderStatus
	}
	if in.PaymentStatus != nil && in.PaymentStatus.Valid() {
		set["paymentStatus"] = *in.PaymentStatus
	}
	if in.Comments != nil {
		set["comments"] = *in.Comments
	}
	if in.Items != nil {
		set["items"] = in.Items
	}
	if in.TotalAmount != nil {
		set["totalAmount"] = *in.TotalAmount
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var o Order
	err := r.Orders.FindOneAndUpdate(ctx, bson.M{"orderId": orderID}, bson.M{"$set": set}, opts).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return &o, nil
}

// ListByOutlet returns up to 100 most recently created orders; staff views
// only, the sync engine never calls this.
func (r *Repo) ListByOutlet(ctx context.Context, outletID string) ([]Order, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamps.created", Value: -1}}).
		SetLimit(100)
	cur, err := r.Orders.Find(ctx, bson.M{"outletId": outletID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer cur.Close(ctx)

	var out []Order
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return out, nil
}
