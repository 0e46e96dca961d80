package query

import (
	"reflect"
	"testing"

	"github.com/nimburion/listquery/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestBuild_EqualityFromPlainParams(t *testing.T) {
	got, err := Build(nil, mustParse(t, "role=admin&status=a&status=b&status=a&page=2&q=x"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := document.Filter{
		"role":   "admin",
		"status": bson.M{OpIn: bson.A{"a", "b"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuild_NestedGroupBecomesDottedEquality(t *testing.T) {
	got, err := Build(nil, mustParse(t, "address[city]=Rome"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["address.city"] != "Rome" {
		t.Fatalf("expected address.city=Rome, got %v", got)
	}
}

func TestBuild_BaseFilterOverridesEquality(t *testing.T) {
	base := document.Filter{"role": "user", "active": true}
	got, err := Build(base, mustParse(t, "role=admin"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["role"] != "user" || got["active"] != true {
		t.Fatalf("expected base filter to win, got %v", got)
	}
	if base["role"] != "user" || len(base) != 2 {
		t.Fatalf("base filter was mutated: %v", base)
	}
}

func TestBuild_InListDropsEmptyElements(t *testing.T) {
	got, err := Build(nil, mustParse(t, "inList[email]=a@x.io,,b@x.io,&notInList[status]=banned"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := document.Filter{
		"email":  bson.M{OpIn: bson.A{"a@x.io", "b@x.io"}},
		"status": bson.M{OpNin: bson.A{"banned"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuild_EmptyInListMatchesNothing(t *testing.T) {
	got, err := Build(nil, mustParse(t, "inList[email]=,"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got["email"], bson.M{OpIn: bson.A{}}) {
		t.Fatalf("expected empty $in, got %v", got["email"])
	}
}

func TestBuild_ElemMatchMergesPerArrayField(t *testing.T) {
	got, err := Build(nil, mustParse(t, "inListArrOfObj[roles.name]=admin,editor&inListArrOfObj[roles.scope]=global"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := bson.M{OpElemMatch: bson.M{
		"name":  bson.M{OpIn: bson.A{"admin", "editor"}},
		"scope": bson.M{OpIn: bson.A{"global"}},
	}}
	if !reflect.DeepEqual(got["roles"], want) {
		t.Fatalf("expected %v, got %v", want, got["roles"])
	}
}

func TestBuild_ElemNotInBracketNesting(t *testing.T) {
	got, err := Build(nil, mustParse(t, "notInListArrOfObj[roles][name]=guest"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := bson.M{OpElemMatch: bson.M{"name": bson.M{OpNin: bson.A{"guest"}}}}
	if !reflect.DeepEqual(got["roles"], want) {
		t.Fatalf("expected %v, got %v", want, got["roles"])
	}
}

func TestBuild_SearchAcrossFields(t *testing.T) {
	got, err := Build(nil, mustParse(t, "q=a.b"), []string{"name", "email"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := bson.A{
		bson.M{"name": primitive.Regex{Pattern: `a\.b`, Options: "i"}},
		bson.M{"email": primitive.Regex{Pattern: `a\.b`, Options: "i"}},
	}
	if !reflect.DeepEqual(got[OpOr], want) {
		t.Fatalf("expected %v, got %v", want, got[OpOr])
	}
}

func TestBuild_SearchAbsent(t *testing.T) {
	for _, tt := range []struct {
		query  string
		fields []string
	}{
		{"q=ann", nil},
		{"q=", []string{"name"}},
		{"", []string{"name"}},
	} {
		got, err := Build(nil, mustParse(t, tt.query), tt.fields)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := got[OpOr]; ok {
			t.Fatalf("%q: expected no search clause, got %v", tt.query, got)
		}
	}
}

func TestBuild_RawPredicate(t *testing.T) {
	got, err := Build(nil, mustParse(t, `mongoQuery={"age":{"$gte":18}}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	age, ok := got["age"].(bson.M)
	if !ok {
		t.Fatalf("expected age expression, got %T", got["age"])
	}
	if v, ok := age["$gte"].(int32); !ok || v != 18 {
		t.Fatalf("expected $gte 18, got %v", age)
	}
}

func TestBuild_RawCannotOverrideBase(t *testing.T) {
	base := document.Filter{"tenant": "acme"}
	got, err := Build(base, mustParse(t, `mongoQuery={"tenant":"other"}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["tenant"] != "acme" {
		t.Fatalf("expected base tenant kept, got %v", got["tenant"])
	}
	guards, ok := got[OpAnd].(bson.A)
	if !ok || len(guards) != 1 {
		t.Fatalf("expected one $and guard, got %v", got[OpAnd])
	}
	if !reflect.DeepEqual(guards[0], bson.M{"tenant": "other"}) {
		t.Fatalf("unexpected guard %v", guards[0])
	}
}

func TestBuild_Rejections(t *testing.T) {
	tests := []struct {
		query string
		code  string
	}{
		{`mongoQuery={"age":`, "validation.list_query.raw_malformed"},
		{`mongoQuery=[1,2]`, "validation.list_query.raw_malformed"},
		{`mongoQuery={"$where":"sleep(100)"}`, "validation.list_query.raw_operator_forbidden"},
		{`mongoQuery={"$or":[{"a":{"$function":{}}}]}`, "validation.list_query.raw_operator_forbidden"},
		{`mongoQuery[age]=1`, "validation.list_query.raw_not_string"},
		{`inList=a,b`, "validation.list_query.group_not_bracketed"},
		{`inListArrOfObj[roles]=admin`, "validation.list_query.array_key_malformed"},
		{`%24where=sleep(5000)||true`, "validation.list_query.field_invalid"},
		{`$or=x`, "validation.list_query.field_invalid"},
		{`age.$gt=1`, "validation.list_query.field_invalid"},
		{`address[$ne]=x`, "validation.list_query.field_invalid"},
		{`inList[$where]=a,b`, "validation.list_query.field_invalid"},
		{`notInList[tags.$size]=1`, "validation.list_query.field_invalid"},
		{`inListArrOfObj[roles.$where]=admin`, "validation.list_query.field_invalid"},
		{`notInListArrOfObj[$roles.name]=admin`, "validation.list_query.field_invalid"},
	}
	for _, tt := range tests {
		_, err := Build(nil, mustParse(t, tt.query), nil)
		if code := validationCode(t, err); code != tt.code {
			t.Fatalf("%s: expected %s, got %s", tt.query, tt.code, code)
		}
	}
}

func TestBuild_IdentityEqualityUsesObjectID(t *testing.T) {
	oid := primitive.NewObjectID()

	got, err := Build(nil, mustParse(t, "_id="+oid.Hex()), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["_id"] != oid {
		t.Fatalf("expected ObjectID %v, got %#v", oid, got["_id"])
	}

	got, err = Build(nil, mustParse(t, "_id="+oid.Hex()+"&_id=legacy-key"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := bson.M{OpIn: bson.A{oid, "legacy-key"}}
	if !reflect.DeepEqual(got["_id"], want) {
		t.Fatalf("expected %v, got %v", want, got["_id"])
	}

	got, _ = Build(nil, mustParse(t, "ref="+oid.Hex()), nil)
	if got["ref"] != oid.Hex() {
		t.Fatalf("expected non-identity fields to stay strings, got %#v", got["ref"])
	}
}

func TestMerge_LastWriteWinsByChannel(t *testing.T) {
	clauses := []Clause{
		{Channel: ChannelNotIn, Field: "status", Operator: OpNin, Value: bson.A{"x"}},
		{Channel: ChannelEquality, Field: "status", Operator: OpEq, Value: "y"},
		{Channel: ChannelIn, Field: "status", Operator: OpIn, Value: bson.A{"z"}},
	}
	got := Merge(clauses)
	if !reflect.DeepEqual(got["status"], bson.M{OpNin: bson.A{"x"}}) {
		t.Fatalf("expected not-in clause to win, got %v", got["status"])
	}
}

func TestMerge_AppendsToExistingAnd(t *testing.T) {
	clauses := []Clause{
		{Channel: ChannelBase, Field: OpAnd, Operator: OpEq, Value: bson.A{bson.M{"a": 1}}},
		{Channel: ChannelBase, Field: "b", Operator: OpEq, Value: 2},
		{Channel: ChannelRaw, Field: "b", Value: 3},
	}
	got := Merge(clauses)
	want := bson.A{bson.M{"a": 1}, bson.M{"b": 3}}
	if !reflect.DeepEqual(got[OpAnd], want) {
		t.Fatalf("expected %v, got %v", want, got[OpAnd])
	}
	if got["b"] != 2 {
		t.Fatalf("expected base b kept, got %v", got["b"])
	}
}

func TestChannelString(t *testing.T) {
	if ChannelElemNotIn.String() != "elem_not_in" || Channel(99).String() != "unknown" {
		t.Fatal("unexpected channel names")
	}
}
