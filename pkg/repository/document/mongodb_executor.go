package document

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nimburion/listquery/pkg/observability/tracing"
	mongostore "github.com/nimburion/listquery/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// IDField is the identity field every MongoDB document carries.
	IDField        = "_id"
	createdAtField = "createdAt"
	updatedAtField = "updatedAt"
)

// MongoStore is the subset of the MongoDB adapter used by MongoDBExecutor.
type MongoStore interface {
	CountDocuments(ctx context.Context, collection string, filter interface{}) (int64, error)
	Find(ctx context.Context, collection string, filter interface{}, opts *options.FindOptions) ([]bson.M, error)
	FindOne(ctx context.Context, collection string, filter interface{}, result interface{}) error
	InsertOne(ctx context.Context, collection string, doc interface{}) (*mongo.InsertOneResult, error)
	FindOneAndUpdate(ctx context.Context, collection string, filter, update interface{}, result interface{}) error
	DeleteOne(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error)
}

// MongoDBExecutor adapts the store/mongodb adapter to the Store contract.
type MongoDBExecutor struct {
	store MongoStore
	now   func() time.Time
}

// NewMongoDBExecutor creates a new MongoDBExecutor instance.
func NewMongoDBExecutor(adapter *mongostore.Adapter) (*MongoDBExecutor, error) {
	if adapter == nil {
		return nil, fmt.Errorf("mongodb adapter is required")
	}
	return NewMongoDBExecutorWithStore(adapter), nil
}

// NewMongoDBExecutorWithStore builds an executor over any MongoStore implementation.
func NewMongoDBExecutorWithStore(store MongoStore) *MongoDBExecutor {
	return &MongoDBExecutor{store: store, now: time.Now}
}

// Count counts the documents matching filter.
func (e *MongoDBExecutor) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	ctx, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationDBCount,
		tracing.WithDBSystem("mongodb"),
		tracing.WithDBTable(collection),
	)
	defer span.End()

	n, err := e.store.CountDocuments(ctx, collection, bson.M(filter))
	if err != nil {
		tracing.RecordError(span, err)
		return 0, err
	}
	tracing.RecordSuccess(span)
	return n, nil
}

// Find fetches one page of documents with the given sort, projection, skip and limit.
func (e *MongoDBExecutor) Find(ctx context.Context, collection string, opts FindOptions) ([]Document, error) {
	ctx, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationDBQuery,
		tracing.WithDBSystem("mongodb"),
		tracing.WithDBTable(collection),
		tracing.WithDBPage(opts.Skip, opts.Limit),
	)
	defer span.End()

	found, err := e.store.Find(ctx, collection, bson.M(opts.Filter), findOptions(opts))
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	tracing.RecordSuccess(span)

	docs := make([]Document, 0, len(found))
	for _, doc := range found {
		docs = append(docs, Document(doc))
	}
	return docs, nil
}

// FindByID finds a single document by identity.
func (e *MongoDBExecutor) FindByID(ctx context.Context, collection string, id interface{}) (Document, error) {
	out := bson.M{}
	if err := e.store.FindOne(ctx, collection, bson.M{IDField: id}, &out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return Document(out), nil
}

// Insert stores doc, stamping createdAt/updatedAt when absent, and returns it with its identity.
func (e *MongoDBExecutor) Insert(ctx context.Context, collection string, doc Document) (Document, error) {
	stored := make(bson.M, len(doc)+2)
	for k, v := range doc {
		stored[k] = v
	}
	now := e.now().UTC()
	if _, ok := stored[createdAtField]; !ok {
		stored[createdAtField] = now
	}
	if _, ok := stored[updatedAtField]; !ok {
		stored[updatedAtField] = now
	}

	result, err := e.store.InsertOne(ctx, collection, stored)
	if err != nil {
		return nil, asDuplicateKey(err)
	}
	stored[IDField] = result.InsertedID
	return Document(stored), nil
}

// UpdateByID applies patch with $set and returns the updated document.
// The identity field is never patched.
func (e *MongoDBExecutor) UpdateByID(ctx context.Context, collection string, id interface{}, patch Document) (Document, error) {
	set := make(bson.M, len(patch)+1)
	for k, v := range patch {
		if k == IDField {
			continue
		}
		set[k] = v
	}
	set[updatedAtField] = e.now().UTC()

	out := bson.M{}
	if err := e.store.FindOneAndUpdate(ctx, collection, bson.M{IDField: id}, bson.M{"$set": set}, &out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, asDuplicateKey(err)
	}
	return Document(out), nil
}

// DeleteByID removes a single document and reports whether one existed.
func (e *MongoDBExecutor) DeleteByID(ctx context.Context, collection string, id interface{}) (bool, error) {
	result, err := e.store.DeleteOne(ctx, collection, bson.M{IDField: id})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

// ParseID converts a hex ObjectID string; any other value is used as-is.
func ParseID(raw string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(raw); err == nil {
		return oid
	}
	return raw
}

var dupKeyPattern = regexp.MustCompile(`dup key: \{ ?"?([^:"]+)"?: (.+?) ?\}`)

// asDuplicateKey converts a unique index violation into a DuplicateKeyError
// and passes any other error through.
func asDuplicateKey(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	dup := &DuplicateKeyError{Cause: err}

	var raws []bson.Raw
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, writeErr := range we.WriteErrors {
			raws = append(raws, writeErr.Raw)
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		raws = append(raws, ce.Raw)
	}
	for _, raw := range raws {
		if dup.Field, dup.Value = keyValueFromRaw(raw); dup.Field != "" {
			return dup
		}
	}

	if m := dupKeyPattern.FindStringSubmatch(err.Error()); m != nil {
		dup.Field = strings.TrimSpace(m[1])
		dup.Value = strings.Trim(strings.TrimSpace(m[2]), `"`)
	}
	return dup
}

func keyValueFromRaw(raw bson.Raw) (string, string) {
	if len(raw) == 0 {
		return "", ""
	}
	keyValue, ok := raw.Lookup("keyValue").DocumentOK()
	if !ok {
		return "", ""
	}
	elems, err := keyValue.Elements()
	if err != nil || len(elems) == 0 {
		return "", ""
	}
	value := elems[0].Value()
	if s, ok := value.StringValueOK(); ok {
		return elems[0].Key(), s
	}
	return elems[0].Key(), value.String()
}

func findOptions(opts FindOptions) *options.FindOptions {
	fo := options.Find().SetSkip(opts.Skip).SetLimit(opts.Limit)
	if opts.Sort.Field != "" {
		fo.SetSort(bson.D{{Key: opts.Sort.Field, Value: opts.Sort.Direction()}})
	}
	if projection := projectionDocument(opts.Projection); projection != nil {
		fo.SetProjection(projection)
	}
	return fo
}

func projectionDocument(p Projection) bson.D {
	if p.IsEmpty() {
		return nil
	}
	value := 1
	if p.Exclude {
		value = 0
	}
	out := make(bson.D, 0, len(p.Fields)+1)
	for _, field := range p.Fields {
		out = append(out, bson.E{Key: field, Value: value})
	}
	if p.IDExcluded && !p.Exclude {
		out = append(out, bson.E{Key: IDField, Value: 0})
	}
	return out
}
