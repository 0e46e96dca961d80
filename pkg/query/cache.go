package query

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/nimburion/listquery/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

const cacheKeyPrefix = "listquery:"

// ResultCache stores serialized list results. Implementations must be safe for
// concurrent use; a miss is reported as (nil, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

type cachedPage struct {
	Total     int64               `json:"total"`
	Documents []document.Document `json:"documents"`
}

func generationKey(collection string) string {
	return cacheKeyPrefix + "gen:" + collection
}

// resultKey hashes the collection generation and every input that shapes the result.
// The payload is canonical Extended JSON over key-sorted documents, so equal
// predicates produce equal keys and values differing only in BSON type do not.
func resultKey(collection string, generation int64, opts document.FindOptions) (string, error) {
	payload, err := bson.MarshalExtJSON(bson.D{
		{Key: "collection", Value: collection},
		{Key: "generation", Value: generation},
		{Key: "filter", Value: canonicalValue(opts.Filter)},
		{Key: "sort", Value: bson.D{
			{Key: "field", Value: opts.Sort.Field},
			{Key: "order", Value: string(opts.Sort.Order)},
		}},
		{Key: "projection", Value: bson.D{
			{Key: "fields", Value: opts.Projection.Fields},
			{Key: "exclude", Value: opts.Projection.Exclude},
			{Key: "idExcluded", Value: opts.Projection.IDExcluded},
		}},
		{Key: "skip", Value: opts.Skip},
		{Key: "limit", Value: opts.Limit},
	}, true, false)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return cacheKeyPrefix + "page:" + collection + ":" + hex.EncodeToString(sum[:]), nil
}

// canonicalValue rewrites maps as key-sorted bson.D, recursively.
// bson.D keeps its own order since it is significant to the store.
func canonicalValue(v interface{}) interface{} {
	switch node := v.(type) {
	case document.Filter:
		return canonicalMap(node)
	case bson.M:
		return canonicalMap(node)
	case map[string]interface{}:
		return canonicalMap(node)
	case bson.D:
		out := make(bson.D, len(node))
		for i, e := range node {
			out[i] = bson.E{Key: e.Key, Value: canonicalValue(e.Value)}
		}
		return out
	case bson.A:
		return canonicalSlice(node)
	case []interface{}:
		return canonicalSlice(node)
	case []bson.M:
		out := make(bson.A, len(node))
		for i, m := range node {
			out[i] = canonicalMap(m)
		}
		return out
	default:
		return v
	}
}

func canonicalMap(m map[string]interface{}) bson.D {
	out := make(bson.D, 0, len(m))
	for _, key := range sortedKeys(m) {
		out = append(out, bson.E{Key: key, Value: canonicalValue(m[key])})
	}
	return out
}

func canonicalSlice(items []interface{}) bson.A {
	out := make(bson.A, len(items))
	for i, item := range items {
		out[i] = canonicalValue(item)
	}
	return out
}

func readGeneration(ctx context.Context, cache ResultCache, collection string) (int64, error) {
	raw, ok, err := cache.Get(ctx, generationKey(collection))
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

func encodePage(docs []document.Document, total int64) ([]byte, error) {
	return json.Marshal(cachedPage{Total: total, Documents: docs})
}

func decodePage(raw []byte) ([]document.Document, int64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var page cachedPage
	if err := dec.Decode(&page); err != nil {
		return nil, 0, err
	}
	if page.Documents == nil {
		page.Documents = []document.Document{}
	}
	return page.Documents, page.Total, nil
}
