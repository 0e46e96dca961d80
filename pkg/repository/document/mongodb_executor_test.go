package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimburion/listquery/pkg/observability/logger"
	mongostore "github.com/nimburion/listquery/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)                      {}
func (nopLogger) Info(string, ...any)                       {}
func (nopLogger) Warn(string, ...any)                       {}
func (nopLogger) Error(string, ...any)                      {}
func (n nopLogger) With(...any) logger.Logger               { return n }
func (n nopLogger) WithContext(context.Context) logger.Logger { return n }

func TestMongoDBExecutor_MockDeployment(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("count", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: int32(3)}},
		))
		exec := NewMongoDBExecutorWithStore(mongostore.NewAdapterFromClient(mt.Client, "test", time.Second, nopLogger{}))

		n, err := exec.Count(context.Background(), "users", Filter{"active": true})
		if err != nil {
			mt.Fatalf("Count() error = %v", err)
		}
		if n != 3 {
			mt.Fatalf("Count() = %d, want 3", n)
		}
	})

	mt.Run("find", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "a"}, {Key: "name", Value: "ann"}},
			bson.D{{Key: "_id", Value: "b"}, {Key: "name", Value: "bob"}},
		))
		exec := NewMongoDBExecutorWithStore(mongostore.NewAdapterFromClient(mt.Client, "test", time.Second, nopLogger{}))

		docs, err := exec.Find(context.Background(), "users", FindOptions{
			Filter: Filter{"active": true},
			Sort:   Sort{Field: "name", Order: SortAsc},
			Limit:  2,
		})
		if err != nil {
			mt.Fatalf("Find() error = %v", err)
		}
		if len(docs) != 2 || docs[1]["name"] != "bob" {
			mt.Fatalf("unexpected documents: %#v", docs)
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "unknown operator: $bogus",
			Name:    "BadValue",
		}))
		exec := NewMongoDBExecutorWithStore(mongostore.NewAdapterFromClient(mt.Client, "test", time.Second, nopLogger{}))

		if _, err := exec.Find(context.Background(), "users", FindOptions{Limit: 1}); err == nil {
			mt.Fatal("expected store error to propagate")
		}
	})

	mt.Run("insert stamps timestamps", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		exec := NewMongoDBExecutorWithStore(mongostore.NewAdapterFromClient(mt.Client, "test", time.Second, nopLogger{}))
		fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		exec.now = func() time.Time { return fixed }

		doc, err := exec.Insert(context.Background(), "users", Document{"email": "a@b.c"})
		if err != nil {
			mt.Fatalf("Insert() error = %v", err)
		}
		if doc[createdAtField] != fixed || doc[updatedAtField] != fixed {
			mt.Fatalf("expected timestamps, got %#v", doc)
		}
		if doc[IDField] == nil {
			mt.Fatal("expected generated identity")
		}
	})

	mt.Run("insert duplicate key", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: `E11000 duplicate key error collection: test.users index: email_1 dup key: { email: "a@b.c" }`,
		}))
		exec := NewMongoDBExecutorWithStore(mongostore.NewAdapterFromClient(mt.Client, "test", time.Second, nopLogger{}))

		_, err := exec.Insert(context.Background(), "users", Document{"email": "a@b.c"})
		var dup *DuplicateKeyError
		if !errors.As(err, &dup) {
			mt.Fatalf("expected DuplicateKeyError, got %v", err)
		}
		if dup.Field != "email" || dup.Value != "a@b.c" {
			mt.Fatalf("unexpected key %q=%q", dup.Field, dup.Value)
		}
		if dup.Error() != "email:a@b.c already exists" {
			mt.Fatalf("unexpected message %q", dup.Error())
		}
	})

	mt.Run("find by id missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch))
		exec := NewMongoDBExecutorWithStore(mongostore.NewAdapterFromClient(mt.Client, "test", time.Second, nopLogger{}))

		if _, err := exec.FindByID(context.Background(), "users", "nope"); !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("delete", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(1)}))
		exec := NewMongoDBExecutorWithStore(mongostore.NewAdapterFromClient(mt.Client, "test", time.Second, nopLogger{}))

		deleted, err := exec.DeleteByID(context.Background(), "users", "a")
		if err != nil || !deleted {
			mt.Fatalf("DeleteByID() = %v, %v", deleted, err)
		}
	})
}

func TestKeyValueFromRaw(t *testing.T) {
	raw, err := bson.Marshal(bson.D{
		{Key: "code", Value: int32(11000)},
		{Key: "keyValue", Value: bson.D{{Key: "sku", Value: int32(42)}}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	field, value := keyValueFromRaw(raw)
	if field != "sku" || value != "42" {
		t.Fatalf("keyValueFromRaw() = %q, %q", field, value)
	}

	if field, _ := keyValueFromRaw(nil); field != "" {
		t.Fatalf("expected empty field for empty raw, got %q", field)
	}
}

func TestAsDuplicateKey_PassesOtherErrors(t *testing.T) {
	cause := errors.New("connection reset")
	if got := asDuplicateKey(cause); got != cause {
		t.Fatalf("expected passthrough, got %v", got)
	}
}

