package document

import (
	"context"
	"errors"
	"testing"
	"time"

	mongostore "github.com/nimburion/listquery/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type fakeMongoStore struct {
	filter    interface{}
	update    interface{}
	inserted  interface{}
	findOpts  *options.FindOptions
	findOne   bson.M
	findErr   error
	deleted   int64
	insertID  interface{}
	countResp int64
}

func (f *fakeMongoStore) CountDocuments(_ context.Context, _ string, filter interface{}) (int64, error) {
	f.filter = filter
	return f.countResp, nil
}

func (f *fakeMongoStore) Find(_ context.Context, _ string, filter interface{}, opts *options.FindOptions) ([]bson.M, error) {
	f.filter = filter
	f.findOpts = opts
	return []bson.M{{"_id": "a"}, {"_id": "b"}}, nil
}

func (f *fakeMongoStore) FindOne(_ context.Context, _ string, filter interface{}, result interface{}) error {
	f.filter = filter
	if f.findErr != nil {
		return f.findErr
	}
	out := result.(*bson.M)
	for k, v := range f.findOne {
		(*out)[k] = v
	}
	return nil
}

func (f *fakeMongoStore) InsertOne(_ context.Context, _ string, doc interface{}) (*mongo.InsertOneResult, error) {
	f.inserted = doc
	return &mongo.InsertOneResult{InsertedID: f.insertID}, nil
}

func (f *fakeMongoStore) FindOneAndUpdate(_ context.Context, _ string, filter, update interface{}, result interface{}) error {
	f.filter = filter
	f.update = update
	if f.findErr != nil {
		return f.findErr
	}
	out := result.(*bson.M)
	(*out)["_id"] = "x"
	return nil
}

func (f *fakeMongoStore) DeleteOne(_ context.Context, _ string, filter interface{}) (*mongo.DeleteResult, error) {
	f.filter = filter
	return &mongo.DeleteResult{DeletedCount: f.deleted}, nil
}

func TestSortOrder_Constants(t *testing.T) {
	if SortAsc != "asc" {
		t.Fatalf("SortAsc = %q, want asc", SortAsc)
	}
	if SortDesc != "desc" {
		t.Fatalf("SortDesc = %q, want desc", SortDesc)
	}
	if (Sort{Field: "a", Order: SortDesc}).Direction() != -1 {
		t.Fatal("expected -1 for descending sort")
	}
	if (Sort{Field: "a", Order: SortAsc}).Direction() != 1 {
		t.Fatal("expected 1 for ascending sort")
	}
}

func TestNewMongoDBExecutor_Validation(t *testing.T) {
	if _, err := NewMongoDBExecutor(nil); err == nil {
		t.Fatal("expected error for nil adapter")
	}

	exec, err := NewMongoDBExecutor(&mongostore.Adapter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec == nil {
		t.Fatal("expected non-nil executor")
	}
}

func TestFindOptions_SortSkipLimitProjection(t *testing.T) {
	fo := findOptions(FindOptions{
		Sort:       Sort{Field: "createdAt", Order: SortDesc},
		Projection: Projection{Fields: []string{"name", "email"}},
		Skip:       40,
		Limit:      20,
	})
	if fo.Skip == nil || *fo.Skip != 40 {
		t.Fatalf("expected skip 40, got %v", fo.Skip)
	}
	if fo.Limit == nil || *fo.Limit != 20 {
		t.Fatalf("expected limit 20, got %v", fo.Limit)
	}
	sort, ok := fo.Sort.(bson.D)
	if !ok || len(sort) != 1 || sort[0].Key != "createdAt" || sort[0].Value != -1 {
		t.Fatalf("unexpected sort: %#v", fo.Sort)
	}
	projection, ok := fo.Projection.(bson.D)
	if !ok || len(projection) != 2 || projection[0].Key != "name" || projection[1].Value != 1 {
		t.Fatalf("unexpected projection: %#v", fo.Projection)
	}
}

func TestFindOptions_EmptyProjectionMeansAllFields(t *testing.T) {
	fo := findOptions(FindOptions{Limit: 5})
	if fo.Projection != nil {
		t.Fatalf("expected no projection, got %#v", fo.Projection)
	}
	if fo.Sort != nil {
		t.Fatalf("expected no sort, got %#v", fo.Sort)
	}
}

func TestProjectionDocument_Exclusion(t *testing.T) {
	doc := projectionDocument(Projection{Fields: []string{"password"}, Exclude: true})
	if len(doc) != 1 || doc[0].Value != 0 {
		t.Fatalf("unexpected exclusion projection: %#v", doc)
	}
}

func TestMongoDBExecutor_CountAndFindPassSameFilter(t *testing.T) {
	store := &fakeMongoStore{countResp: 7}
	exec := NewMongoDBExecutorWithStore(store)
	filter := Filter{"role": "admin"}

	n, err := exec.Count(context.Background(), "users", filter)
	if err != nil || n != 7 {
		t.Fatalf("Count() = %d, %v", n, err)
	}
	if got := store.filter.(bson.M); got["role"] != "admin" {
		t.Fatalf("unexpected count filter: %#v", got)
	}

	docs, err := exec.Find(context.Background(), "users", FindOptions{Filter: filter, Limit: 2})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(docs) != 2 || docs[0]["_id"] != "a" {
		t.Fatalf("unexpected docs: %#v", docs)
	}
	if got := store.filter.(bson.M); got["role"] != "admin" {
		t.Fatalf("unexpected find filter: %#v", got)
	}
}

func TestMongoDBExecutor_FindByID(t *testing.T) {
	store := &fakeMongoStore{findOne: bson.M{"_id": "u1", "name": "john"}}
	exec := NewMongoDBExecutorWithStore(store)

	doc, err := exec.FindByID(context.Background(), "users", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["name"] != "john" {
		t.Fatalf("unexpected document: %#v", doc)
	}

	store.findErr = mongo.ErrNoDocuments
	if _, err := exec.FindByID(context.Background(), "users", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMongoDBExecutor_InsertStampsTimestamps(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := &fakeMongoStore{insertID: "new-id"}
	exec := NewMongoDBExecutorWithStore(store)
	exec.now = func() time.Time { return fixed }

	doc, err := exec.Insert(context.Background(), "users", Document{"name": "jane"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["_id"] != "new-id" {
		t.Fatalf("expected inserted id, got %v", doc["_id"])
	}
	if doc["createdAt"] != fixed || doc["updatedAt"] != fixed {
		t.Fatalf("expected timestamps to be stamped, got %#v", doc)
	}

	given := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	doc, _ = exec.Insert(context.Background(), "users", Document{"createdAt": given})
	if doc["createdAt"] != given {
		t.Fatalf("expected caller createdAt to be preserved, got %v", doc["createdAt"])
	}
}

func TestMongoDBExecutor_UpdateByIDNeverPatchesID(t *testing.T) {
	store := &fakeMongoStore{}
	exec := NewMongoDBExecutorWithStore(store)

	if _, err := exec.UpdateByID(context.Background(), "users", "x", Document{"_id": "y", "name": "n"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set := store.update.(bson.M)["$set"].(bson.M)
	if _, ok := set["_id"]; ok {
		t.Fatal("identity field must not be patched")
	}
	if set["name"] != "n" {
		t.Fatalf("unexpected $set: %#v", set)
	}
	if _, ok := set["updatedAt"]; !ok {
		t.Fatal("expected updatedAt to be set")
	}

	store.findErr = mongo.ErrNoDocuments
	if _, err := exec.UpdateByID(context.Background(), "users", "x", Document{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMongoDBExecutor_DeleteByID(t *testing.T) {
	store := &fakeMongoStore{deleted: 1}
	exec := NewMongoDBExecutorWithStore(store)
	ok, err := exec.DeleteByID(context.Background(), "users", "x")
	if err != nil || !ok {
		t.Fatalf("DeleteByID() = %v, %v", ok, err)
	}

	store.deleted = 0
	ok, _ = exec.DeleteByID(context.Background(), "users", "x")
	if ok {
		t.Fatal("expected false when nothing was deleted")
	}
}

func TestParseID(t *testing.T) {
	hex := "64b7f0c2a1b2c3d4e5f60718"
	if _, ok := ParseID(hex).(primitive.ObjectID); !ok {
		t.Fatalf("expected ObjectID for %q", hex)
	}
	if got := ParseID("user-42"); got != "user-42" {
		t.Fatalf("expected raw string id, got %v", got)
	}
}

func TestProjectionDocument_InclusionWithoutID(t *testing.T) {
	doc := projectionDocument(Projection{Fields: []string{"name"}, IDExcluded: true})
	if len(doc) != 2 || doc[1].Key != "_id" || doc[1].Value != 0 {
		t.Fatalf("unexpected projection: %#v", doc)
	}
}
