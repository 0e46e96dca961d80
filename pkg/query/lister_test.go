package query

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordingLogger struct {
	mu      sync.Mutex
	entries map[string]int
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: map[string]int{}}
}

func (l *recordingLogger) record(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[level]++
}

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[level]
}

func (l *recordingLogger) Debug(msg string, args ...any)                 { l.record("debug") }
func (l *recordingLogger) Info(msg string, args ...any)                  { l.record("info") }
func (l *recordingLogger) Warn(msg string, args ...any)                  { l.record("warn") }
func (l *recordingLogger) Error(msg string, args ...any)                 { l.record("error") }
func (l *recordingLogger) With(args ...any) logger.Logger                { return l }
func (l *recordingLogger) WithContext(ctx context.Context) logger.Logger { return l }

type memoryCache struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
	sets   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.values[key] = value
	return nil
}

func (c *memoryCache) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := strconv.ParseInt(string(c.values[key]), 10, 64)
	n++
	c.values[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func TestNewLister_Validation(t *testing.T) {
	if _, err := NewLister(nil, newRecordingLogger()); err == nil {
		t.Fatal("expected error for nil finder")
	}
	if _, err := NewLister(&fakeFinder{}, nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

func TestList_SecondPage(t *testing.T) {
	finder := &fakeFinder{total: 25, docs: []document.Document{{"name": "k"}}}
	l, err := NewLister(finder, newRecordingLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := l.List(context.Background(), Request{
		Collection:   "users",
		BaseFilter:   document.Filter{"active": true},
		SearchFields: []string{"name"},
		Params:       mustParse(t, "page=2&limit=10&role=admin&sort=name"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := PageInfo{CurrentPage: 2, PerPage: 10, PageCount: 3, SkipCount: 10, ItemCount: 25, HasNextPage: true, HasPreviousPage: true}
	if res.PageInfo != want {
		t.Fatalf("expected %+v, got %+v", want, res.PageInfo)
	}
	if finder.lastOpts.Skip != 10 || finder.lastOpts.Limit != 10 {
		t.Fatalf("unexpected paging sent to store: %+v", finder.lastOpts)
	}
	if finder.lastOpts.Sort != (document.Sort{Field: "name", Order: document.SortAsc}) {
		t.Fatalf("unexpected sort sent to store: %+v", finder.lastOpts.Sort)
	}
	if finder.lastOpts.Filter["role"] != "admin" || finder.lastOpts.Filter["active"] != true {
		t.Fatalf("unexpected predicate: %v", finder.lastOpts.Filter)
	}
}

func TestList_SearchWithoutMatches(t *testing.T) {
	finder := &fakeFinder{}
	l, _ := NewLister(finder, newRecordingLogger())

	res, err := l.List(context.Background(), Request{
		Collection:   "users",
		SearchFields: []string{"name", "email"},
		Params:       mustParse(t, "q=john"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Documents == nil || len(res.Documents) != 0 {
		t.Fatalf("expected empty non-nil data, got %#v", res.Documents)
	}
	want := PageInfo{CurrentPage: 1, PerPage: 20, PageCount: 0, SkipCount: 0, ItemCount: 0}
	if res.PageInfo != want {
		t.Fatalf("expected %+v, got %+v", want, res.PageInfo)
	}
	or, ok := finder.lastFilter[OpOr].(bson.A)
	if !ok || len(or) != 2 {
		t.Fatalf("expected a two-field search disjunction, got %v", finder.lastFilter)
	}
}

func TestList_ValidationSkipsStore(t *testing.T) {
	finder := &fakeFinder{}
	log := newRecordingLogger()
	l, _ := NewLister(finder, log)

	for _, query := range []string{"limit=0", `mongoQuery={bad`} {
		_, err := l.List(context.Background(), Request{Collection: "users", Params: mustParse(t, query)})
		if !IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", query, err)
		}
	}
	if counts, finds := finder.calls(); counts != 0 || finds != 0 {
		t.Fatalf("expected no store calls, got %d/%d", counts, finds)
	}
	if log.count("error") != 0 || log.count("debug") != 2 {
		t.Fatalf("expected validation errors at debug only, got %v", log.entries)
	}
}

func TestList_StoreErrorLoggedOnce(t *testing.T) {
	log := newRecordingLogger()
	l, _ := NewLister(&fakeFinder{countErr: errors.New("boom")}, log)

	_, err := l.List(context.Background(), Request{Collection: "users", Params: mustParse(t, "")})
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if log.count("error") != 1 {
		t.Fatalf("expected exactly one error log, got %d", log.count("error"))
	}
}

func TestList_Idempotent(t *testing.T) {
	finder := &fakeFinder{total: 2, docs: []document.Document{{"name": "a"}, {"name": "b"}}}
	l, _ := NewLister(finder, newRecordingLogger())
	req := Request{Collection: "users", BaseFilter: document.Filter{"active": true}, Params: mustParse(t, "limit=5&status=a&status=b")}

	first, err := l.List(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstOpts := finder.lastOpts
	second, err := l.List(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) || !reflect.DeepEqual(firstOpts, finder.lastOpts) {
		t.Fatal("identical requests must yield identical predicates and results")
	}
}

func TestList_WithOptionsMaxLimit(t *testing.T) {
	l, _ := NewLister(&fakeFinder{}, newRecordingLogger(), WithOptions(Options{MaxLimit: 50}))
	_, err := l.List(context.Background(), Request{Collection: "users", Params: mustParse(t, "limit=51")})
	if code := validationCode(t, err); code != "validation.list_query.limit_too_large" {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestList_CacheHitSkipsStore(t *testing.T) {
	finder := &fakeFinder{total: 1, docs: []document.Document{{"name": "a"}}}
	cache := newMemoryCache()
	l, _ := NewLister(finder, newRecordingLogger(), WithCache(cache, time.Minute))
	req := Request{Collection: "users", Params: mustParse(t, "limit=5")}

	if _, err := l.List(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := l.List(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts, finds := finder.calls(); counts != 1 || finds != 1 {
		t.Fatalf("expected second call served from cache, got %d/%d store calls", counts, finds)
	}
	if res.PageInfo.ItemCount != 1 || len(res.Documents) != 1 || res.Documents[0]["name"] != "a" {
		t.Fatalf("unexpected cached result: %+v", res)
	}
}

func TestResultKey_TypeSensitive(t *testing.T) {
	oid := primitive.NewObjectID()
	when := primitive.NewDateTimeFromTime(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	tests := []struct {
		name string
		a, b document.Filter
		same bool
	}{
		{"object id vs hex string", document.Filter{"_id": oid}, document.Filter{"_id": oid.Hex()}, false},
		{"int vs numeric string", document.Filter{"age": int32(30)}, document.Filter{"age": "30"}, false},
		{"int32 vs int64", document.Filter{"age": int32(30)}, document.Filter{"age": int64(30)}, false},
		{"date vs string", document.Filter{"createdAt": when}, document.Filter{"createdAt": "2024-05-01T00:00:00Z"}, false},
		{
			"nested map flavours",
			document.Filter{"age": bson.M{"$gt": 1, "$lt": 9}, "name": "a"},
			document.Filter{"name": "a", "age": map[string]interface{}{"$lt": 9, "$gt": 1}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyA, err := resultKey("users", 0, document.FindOptions{Filter: tt.a, Limit: 20})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			keyB, err := resultKey("users", 0, document.FindOptions{Filter: tt.b, Limit: 20})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (keyA == keyB) != tt.same {
				t.Fatalf("expected same=%v, got keys %s and %s", tt.same, keyA, keyB)
			}
		})
	}
}

func TestList_CacheSeparatesTypedPredicates(t *testing.T) {
	finder := &fakeFinder{total: 1, docs: []document.Document{{"name": "a"}}}
	l, _ := NewLister(finder, newRecordingLogger(), WithCache(newMemoryCache(), time.Minute))
	oid := primitive.NewObjectID()

	for _, query := range []string{
		`mongoQuery={"ref":{"$oid":"` + oid.Hex() + `"}}`,
		"ref=" + oid.Hex(),
	} {
		if _, err := l.List(context.Background(), Request{Collection: "users", Params: mustParse(t, query)}); err != nil {
			t.Fatalf("%s: unexpected error: %v", query, err)
		}
	}
	if counts, finds := finder.calls(); counts != 2 || finds != 2 {
		t.Fatalf("expected both predicates to reach the store, got %d/%d", counts, finds)
	}
}

func TestList_InvalidateBumpsGeneration(t *testing.T) {
	finder := &fakeFinder{total: 1, docs: []document.Document{{"name": "a"}}}
	cache := newMemoryCache()
	l, _ := NewLister(finder, newRecordingLogger(), WithCache(cache, time.Minute))
	req := Request{Collection: "users", Params: mustParse(t, "")}

	if _, err := l.List(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Invalidate(context.Background(), "users"); err != nil {
		t.Fatalf("unexpected invalidate error: %v", err)
	}
	if _, err := l.List(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts, _ := finder.calls(); counts != 2 {
		t.Fatalf("expected store hit after invalidation, got %d counts", counts)
	}
}

func TestList_CacheFailureDoesNotFailRequest(t *testing.T) {
	finder := &fakeFinder{total: 1, docs: []document.Document{{"name": "a"}}}
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	log := newRecordingLogger()
	l, _ := NewLister(finder, log, WithCache(cache, time.Minute))

	res, err := l.List(context.Background(), Request{Collection: "users", Params: mustParse(t, "")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PageInfo.ItemCount != 1 {
		t.Fatalf("unexpected result: %+v", res.PageInfo)
	}
	if log.count("warn") == 0 {
		t.Fatal("expected cache failure logged at warn")
	}
}

func TestInvalidate_NoCache(t *testing.T) {
	l, _ := NewLister(&fakeFinder{}, newRecordingLogger())
	if err := l.Invalidate(context.Background(), "users"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
