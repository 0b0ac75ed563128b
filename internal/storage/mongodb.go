package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oritmalki/bizmanager/configs"
	"github.com/oritmalki/bizmanager/internal/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var mongoClient *mongo.Client
var mongoDB *mongo.Database

// InitMongoDB initializes MongoDB connection
func InitMongoDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(configs.MONGO_URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(configs.MONGO_DB_NAME)

	log.Println("✓ Connected to MongoDB")
	return nil
}

// GetMongoDB returns the MongoDB database instance
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB() {
	if mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
		log.Println("MongoDB connection closed")
	}
}

// Enrichment lifecycle of a payment's reference fields. A record moves
// forward only: submitted -> enriching -> final. Manual edits happen on
// final records and never re-enter the pipeline.
const (
	EnrichmentSubmitted = "submitted"
	EnrichmentEnriching = "enriching"
	EnrichmentFinal     = "final"
)

// PaymentRecord is one financial movement, optionally linked to an order.
// Amount is a canonical decimal string. BankDetails is the canonical JSON
// string produced by the payment normalizer.
type PaymentRecord struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID            string             `bson:"order_id,omitempty" json:"order_id,omitempty"`
	Amount             string             `bson:"amount" json:"amount"`
	Method             string             `bson:"method" json:"method"`
	ConfirmationNumber string             `bson:"confirmation_number,omitempty" json:"confirmation_number,omitempty"`
	LastFourDigits     string             `bson:"last_four_digits,omitempty" json:"last_four_digits,omitempty"`
	CheckNumber        string             `bson:"check_number,omitempty" json:"check_number,omitempty"`
	BankDetails        string             `bson:"bank_details,omitempty" json:"bank_details,omitempty"`
	Installments       int                `bson:"installments" json:"installments"`
	ReceiptFileName    string             `bson:"receipt_file_name,omitempty" json:"receipt_file_name,omitempty"`
	ReceiptMIMEType    string             `bson:"receipt_mime_type,omitempty" json:"receipt_mime_type,omitempty"`
	EnrichmentStatus   string             `bson:"enrichment_status" json:"enrichment_status"`
	EnrichedByModel    string             `bson:"enriched_by_model,omitempty" json:"enriched_by_model,omitempty"`
	EnrichedAt         *time.Time         `bson:"enriched_at,omitempty" json:"enriched_at,omitempty"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// HasReferenceData reports whether any reference field allowed for the
// record's method is already populated. Records with all allowed fields
// empty are candidates for enrichment.
func (p *PaymentRecord) HasReferenceData() bool {
	switch p.Method {
	case payments.MethodCash:
		return true // cash carries no reference fields
	case payments.MethodBit, payments.MethodPaybox:
		return p.ConfirmationNumber != ""
	case payments.MethodCredit:
		return p.ConfirmationNumber != "" && p.LastFourDigits != ""
	case payments.MethodTransfer:
		return p.ConfirmationNumber != "" && p.BankDetails != ""
	case payments.MethodCheck:
		return p.CheckNumber != "" && p.BankDetails != ""
	default:
		return p.ConfirmationNumber != ""
	}
}

func paymentsCollection() *mongo.Collection {
	return mongoDB.Collection("payments")
}

// InsertPayment stores a new payment and returns its durable id. The id is
// threaded into the background enrichment task so write-back never has to
// re-derive which row it belongs to.
func InsertPayment(rec *PaymentRecord) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.EnrichmentStatus == "" {
		rec.EnrichmentStatus = EnrichmentSubmitted
	}

	result, err := paymentsCollection().InsertOne(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to insert payment: %w", err)
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	rec.ID = oid
	return oid.Hex(), nil
}

// GetPayment retrieves one payment by its hex id
func GetPayment(id string) (*PaymentRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid payment id %q: %w", id, err)
	}

	var rec PaymentRecord
	err = paymentsCollection().FindOne(ctx, bson.M{"_id": oid}).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("payment not found: %s", id)
		}
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}

	return &rec, nil
}

// FindLatestByNaturalKey locates the most recently inserted payment matching
// parent order + amount + method. Fallback lookup for enrichment tasks that
// lost their record id; same-key payments in quick succession can collide
// here, which is why the id path is preferred.
func FindLatestByNaturalKey(orderID, amount, method string) (*PaymentRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	filter := bson.M{
		"order_id": orderID,
		"amount":   amount,
		"method":   method,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	var rec PaymentRecord
	err := paymentsCollection().FindOne(ctx, filter, opts).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("no payment matches order=%s amount=%s method=%s", orderID, amount, method)
		}
		return nil, fmt.Errorf("failed to query payment by natural key: %w", err)
	}

	return &rec, nil
}

// SetEnrichmentStatus moves a record along the enrichment lifecycle
func SetEnrichmentStatus(id, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid payment id %q: %w", id, err)
	}

	_, err = paymentsCollection().UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"enrichment_status": status, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update enrichment status: %w", err)
	}
	return nil
}

// ApplyEnrichment writes sanitized reference fields back onto an existing
// payment in a single conditional update, records which model produced them
// and marks the record final.
func ApplyEnrichment(id string, san payments.Sanitized, model string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid payment id %q: %w", id, err)
	}

	now := time.Now()
	set := bson.M{
		"method":              san.Method,
		"confirmation_number": san.ConfirmationNumber,
		"last_four_digits":    san.LastFourDigits,
		"check_number":        san.CheckNumber,
		"bank_details":        san.BankDetails,
		"installments":        san.Installments,
		"enrichment_status":   EnrichmentFinal,
		"updated_at":          now,
	}
	if model != "" {
		set["enriched_by_model"] = model
		set["enriched_at"] = now
	}

	result, err := paymentsCollection().UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to write enrichment: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("payment %s vanished before enrichment write-back", id)
	}
	return nil
}

// UpdatePayment applies a manual edit. The caller passes already-sanitized
// values; manual edits always bypass AI enrichment.
func UpdatePayment(id string, amount string, san payments.Sanitized) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid payment id %q: %w", id, err)
	}

	set := bson.M{
		"method":              san.Method,
		"confirmation_number": san.ConfirmationNumber,
		"last_four_digits":    san.LastFourDigits,
		"check_number":        san.CheckNumber,
		"bank_details":        san.BankDetails,
		"installments":        san.Installments,
		"enrichment_status":   EnrichmentFinal,
		"updated_at":          time.Now(),
	}
	if amount != "" {
		set["amount"] = amount
	}

	result, err := paymentsCollection().UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("payment not found: %s", id)
	}
	return nil
}

// PaymentStore adapts the package-level persistence functions to the small
// interfaces other components consume, so they can be faked in tests.
type PaymentStore struct{}

func (PaymentStore) InsertPayment(rec *PaymentRecord) (string, error) {
	return InsertPayment(rec)
}

func (PaymentStore) GetPayment(id string) (*PaymentRecord, error) {
	return GetPayment(id)
}

func (PaymentStore) UpdatePayment(id string, amount string, san payments.Sanitized) error {
	return UpdatePayment(id, amount, san)
}

func (PaymentStore) FindLatestByNaturalKey(orderID, amount, method string) (*PaymentRecord, error) {
	return FindLatestByNaturalKey(orderID, amount, method)
}

func (PaymentStore) ApplyEnrichment(id string, san payments.Sanitized, model string) error {
	return ApplyEnrichment(id, san, model)
}

func (PaymentStore) SetEnrichmentStatus(id, status string) error {
	return SetEnrichmentStatus(id, status)
}

// --- Notification attempt log ---

// NotificationLogEntry records one webhook dispatch attempt with enough
// context to replay it by hand.
type NotificationLogEntry struct {
	Type      string    `bson:"type" json:"type"`
	Success   bool      `bson:"success" json:"success"`
	Error     string    `bson:"error,omitempty" json:"error,omitempty"`
	Subject   string    `bson:"subject,omitempty" json:"subject,omitempty"`
	FileName  string    `bson:"file_name,omitempty" json:"file_name,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// RecordNotificationAttempt appends a dispatch attempt to the log. Failures
// here are logged and swallowed; the log must never block a dispatch.
func RecordNotificationAttempt(entry NotificationLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry.CreatedAt = time.Now()
	_, err := mongoDB.Collection("notification_log").InsertOne(ctx, entry)
	if err != nil {
		log.Printf("WARN failed to record notification attempt: %v", err)
	}
}
