package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nathannewyen/fhir-gateway/internal/gateway"
)

const auditCollectionName = "access_audit"

// auditDocument is the BSON shape one AuditEntry is stored as.
type auditDocument struct {
	RequestID  string    `bson:"request_id"`
	Method     string    `bson:"method"`
	Path       string    `bson:"path"`
	Subject    string    `bson:"subject"`
	StatusCode int       `bson:"status_code"`
	Outcome    string    `bson:"outcome"`
	Detail     string    `bson:"detail"`
	RecordedAt time.Time `bson:"recorded_at"`
}

// MongoSink persists each AuditEntry as one document in the access_audit
// collection. Adapted from the retrieval pack's NewMongoConnection: connects
// against a single URI and pings once at construction.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSink connects to uri and selects dbName's access_audit collection.
func NewMongoSink(uri, dbName string) (*MongoSink, error) {
	clientOptions := options.Client().ApplyURI(uri)

	connectionContext, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, connectionErr := mongo.Connect(connectionContext, clientOptions)
	if connectionErr != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", connectionErr)
	}

	pingContext, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingContext, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(dbName).Collection(auditCollectionName)
	return &MongoSink{client: client, collection: collection}, nil
}

// Record implements gateway.AuditRecorder. A write failure is dropped
// rather than propagated: the audit trail must never block or fail the
// request path it is recording.
func (s *MongoSink) Record(ctx context.Context, entry gateway.AuditEntry) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, _ = s.collection.InsertOne(ctx, auditDocument{
		RequestID:  entry.RequestID,
		Method:     entry.Method,
		Path:       entry.Path,
		Subject:    entry.Subject,
		StatusCode: entry.StatusCode,
		Outcome:    entry.Outcome,
		Detail:     entry.Detail,
		RecordedAt: time.Now(),
	})
}

// Close disconnects the underlying client.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
