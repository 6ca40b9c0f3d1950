package jsonrpc

import (
	"errors"
	"fmt"
	"testing"

	"mini-jsonrpc/value"
)

// testRequest parses an object of string members into a map.
type testRequest struct {
	method string
	params *value.Value
}

func (r testRequest) Method() string { return r.method }

func (r testRequest) Params() (value.Value, bool) {
	if r.params == nil {
		return value.Value{}, false
	}
	return *r.params, true
}

func (r testRequest) ParseResult(result value.Value) (map[string]string, error) {
	obj, ok := result.AsObject()
	if !ok {
		return nil, fmt.Errorf("result is %v", result.Kind())
	}
	out := make(map[string]string, obj.Len())
	for _, m := range obj.Members() {
		s, ok := m.Value.AsString()
		if !ok {
			return nil, fmt.Errorf("member %s is %v", m.Key, m.Value.Kind())
		}
		out[m.Key] = s
	}
	return out, nil
}

type testNotificationRequest struct{ testRequest }

func (testNotificationRequest) IsNotification() bool { return true }

var errParse = errors.New("parse error")

type testParseErrorRequest struct{ testRequest }

func (testParseErrorRequest) ParseResult(value.Value) (map[string]string, error) {
	return nil, errParse
}

func newTestElement() *Element[map[string]string] {
	return NewElement[map[string]string](testRequest{method: "method"}, "2.0", NumberID(1))
}

func TestRequestObject(t *testing.T) {
	req := testRequest{method: "method", params: ParamsOf(value.MustParse(`{"key":"value"}`))}
	element := NewElement[map[string]string](req, "2.0", NumberID(1))

	if element.ID() != NumberID(1) {
		t.Fatalf("expect id 1, got %v", element.ID())
	}
	if element.Version() != "2.0" {
		t.Fatalf("expect version 2.0, got %s", element.Version())
	}

	body, ok := element.Body().AsObject()
	if !ok {
		t.Fatal("expect body to be an object")
	}
	if body.Len() != 4 {
		t.Fatalf("expect 4 members, got %d", body.Len())
	}
	if v, _ := body.Get("jsonrpc"); v.String() != `"2.0"` {
		t.Errorf("jsonrpc mismatch: %v", v)
	}
	if v, _ := body.Get("method"); v.String() != `"method"` {
		t.Errorf("method mismatch: %v", v)
	}
	if v, _ := body.Get("id"); !v.IsInteger() || v.String() != "1" {
		t.Errorf("id must be the raw number 1, got %v", v)
	}
	params, _ := body.Get("params")
	if params.Len() != 1 {
		t.Errorf("expect 1 param, got %d", params.Len())
	}
	if v, _ := params.Field("key"); v.String() != `"value"` {
		t.Errorf("param mismatch: %v", v)
	}
}

func TestRequestObjectStringID(t *testing.T) {
	element := NewElement[map[string]string](testRequest{method: "method"}, "2.0", StringID("abc"))
	if got := element.Body().String(); got != `{"jsonrpc":"2.0","method":"method","id":"abc"}` {
		t.Errorf("unexpected body: %s", got)
	}
}

func TestNotificationRequestObject(t *testing.T) {
	req := testNotificationRequest{testRequest{method: "method", params: ParamsOf(value.MustParse(`{"key":"value"}`))}}
	element := NewElement[map[string]string](req, "2.0", NumberID(1))

	if !element.ID().IsAbsent() {
		t.Fatalf("expect absent id, got %v", element.ID())
	}
	body, _ := element.Body().AsObject()
	if body.Len() != 3 {
		t.Fatalf("expect 3 members, got %d", body.Len())
	}
	if body.Has("id") {
		t.Error("notification must not carry an id")
	}
	if !body.Has("params") {
		t.Error("expect params")
	}
}

func TestRequestObjectWithoutParams(t *testing.T) {
	body, _ := newTestElement().Body().AsObject()
	if body.Has("params") {
		t.Error("params must be omitted when the request has none")
	}
}

func TestResponseFromObject(t *testing.T) {
	element := newTestElement()
	response := value.MustParse(`{"id":1,"jsonrpc":"2.0","result":{"key":"value"}}`)

	got, err := element.ResponseFromObject(response)
	if err != nil {
		t.Fatalf("ResponseFromObject failed: %v", err)
	}
	if got["key"] != "value" {
		t.Errorf("expect value, got %q", got["key"])
	}
}

func TestResponseFromArray(t *testing.T) {
	element := newTestElement()
	response, _ := value.MustParse(`[
		{"id":2,"jsonrpc":"2.0","result":{"key2":"value2"}},
		{"id":1,"jsonrpc":"2.0","result":{"key1":"value1"}}
	]`).AsArray()

	got, err := element.ResponseFromArray(response)
	if err != nil {
		t.Fatalf("ResponseFromArray failed: %v", err)
	}
	if got["key1"] != "value1" {
		t.Errorf("expect value1, got %q", got["key1"])
	}
}

func TestResponseFromObjectResponseError(t *testing.T) {
	element := newTestElement()
	response := value.MustParse(`{"id":1,"jsonrpc":"2.0","error":{"code":123,"message":"abc","data":{"key":"value"}}}`)

	_, err := element.ResponseFromObject(response)
	assertResponseError(t, err)
}

func TestResponseFromArrayResponseError(t *testing.T) {
	element := newTestElement()
	response, _ := value.MustParse(`[
		{"id":1,"jsonrpc":"2.0","error":{"code":123,"message":"abc","data":{"key":"value"}}},
		{"id":2,"jsonrpc":"2.0","result":{}}
	]`).AsArray()

	_, err := element.ResponseFromArray(response)
	assertResponseError(t, err)
}

func assertResponseError(t *testing.T, err error) {
	t.Helper()
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("expect *ResponseError, got %v", err)
	}
	if respErr.Code != 123 {
		t.Errorf("code mismatch: got %d, want 123", respErr.Code)
	}
	if respErr.Message != "abc" {
		t.Errorf("message mismatch: got %s, want abc", respErr.Message)
	}
	if respErr.Data == nil {
		t.Fatal("expect data")
	}
	if v, _ := respErr.Data.Field("key"); v.String() != `"value"` {
		t.Errorf("data mismatch: %v", *respErr.Data)
	}
}

func TestResponseErrorWithoutData(t *testing.T) {
	_, err := newTestElement().ResponseFromObject(value.MustParse(`{"id":1,"jsonrpc":"2.0","error":{"code":-32601,"message":"nope"}}`))
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("expect *ResponseError, got %v", err)
	}
	if respErr.Data != nil {
		t.Errorf("expect nil data, got %v", *respErr.Data)
	}
	if respErr.Code != CodeMethodNotFound {
		t.Errorf("code mismatch: %d", respErr.Code)
	}
}

func TestResponseFromObjectResultObjectParseError(t *testing.T) {
	element := NewElement[map[string]string](testParseErrorRequest{testRequest{method: "method"}}, "2.0", NumberID(1))

	_, err := element.ResponseFromObject(value.MustParse(`{"id":1,"jsonrpc":"2.0","result":{}}`))
	assertResultParseError(t, err)
}

func TestResponseFromArrayResultObjectParseError(t *testing.T) {
	element := NewElement[map[string]string](testParseErrorRequest{testRequest{method: "method"}}, "2.0", NumberID(1))
	response, _ := value.MustParse(`[{"id":1,"jsonrpc":"2.0","result":{}},{"id":2,"jsonrpc":"2.0","result":{}}]`).AsArray()

	_, err := element.ResponseFromArray(response)
	assertResultParseError(t, err)
}

func assertResultParseError(t *testing.T, err error) {
	t.Helper()
	var parseErr *ResultObjectParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expect *ResultObjectParseError, got %v", err)
	}
	if !errors.Is(err, errParse) {
		t.Errorf("underlying parse error lost: %v", parseErr.Err)
	}
}

func TestResponseFromObjectErrorObjectParseError(t *testing.T) {
	_, err := newTestElement().ResponseFromObject(value.MustParse(`{"id":1,"jsonrpc":"2.0","error":{"message":"abc"}}`))
	assertKind(t, err, KindErrorObjectParseError)
}

func TestResponseFromArrayErrorObjectParseError(t *testing.T) {
	response, _ := value.MustParse(`[{"id":1,"jsonrpc":"2.0","error":{"message":"abc"}},{"id":2,"jsonrpc":"2.0","result":{}}]`).AsArray()
	_, err := newTestElement().ResponseFromArray(response)
	assertKind(t, err, KindErrorObjectParseError)
}

func TestErrorObjectMalformedShapes(t *testing.T) {
	cases := []string{
		`{"id":1,"jsonrpc":"2.0","error":{"code":"123","message":"abc"}}`,
		`{"id":1,"jsonrpc":"2.0","error":{"code":1.5,"message":"abc"}}`,
		`{"id":1,"jsonrpc":"2.0","error":{"code":123}}`,
		`{"id":1,"jsonrpc":"2.0","error":{"code":123,"message":7}}`,
		`{"id":1,"jsonrpc":"2.0","error":"boom"}`,
	}
	for _, c := range cases {
		_, err := newTestElement().ResponseFromObject(value.MustParse(c))
		if kind, _ := KindOf(err); kind != KindErrorObjectParseError {
			t.Errorf("%s: expect ErrorObjectParseError, got %v", c, err)
		}
	}
}

func TestResponseFromObjectUnsupportedVersion(t *testing.T) {
	_, err := newTestElement().ResponseFromObject(value.MustParse(`{"id":1,"jsonrpc":"1.0","result":{"key":"value"}}`))
	assertUnsupportedVersion(t, err)
}

func TestResponseFromArrayUnsupportedVersion(t *testing.T) {
	response, _ := value.MustParse(`[{"id":1,"jsonrpc":"1.0","result":{}},{"id":2,"jsonrpc":"2.0","result":{}}]`).AsArray()
	_, err := newTestElement().ResponseFromArray(response)
	assertUnsupportedVersion(t, err)
}

func assertUnsupportedVersion(t *testing.T, err error) {
	t.Helper()
	var versionErr *UnsupportedVersionError
	if !errors.As(err, &versionErr) {
		t.Fatalf("expect *UnsupportedVersionError, got %v", err)
	}
	if versionErr.Version != "1.0" {
		t.Errorf("version mismatch: got %s, want 1.0", versionErr.Version)
	}
}

func TestNonStringVersionIsUnsupported(t *testing.T) {
	cases := []struct {
		version string
		want    string
	}{
		{`2`, "2"},
		{`null`, "null"},
		{`{"major":2}`, `{"major":2}`},
		{`["2.0"]`, `["2.0"]`},
	}
	for _, c := range cases {
		object := value.MustParse(`{"jsonrpc":` + c.version + `,"id":1,"result":{"k":"v"}}`)
		_, err := newTestElement().ResponseFromObject(object)
		var versionErr *UnsupportedVersionError
		if !errors.As(err, &versionErr) {
			t.Errorf("object %s: expect *UnsupportedVersionError, got %v", c.version, err)
		} else if versionErr.Version != c.want {
			t.Errorf("object %s: version mismatch: got %s, want %s", c.version, versionErr.Version, c.want)
		}

		batch, _ := value.MustParse(`[{"jsonrpc":"2.0","id":2,"result":{}},{"jsonrpc":` + c.version + `,"id":1,"result":{"k":"v"}}]`).AsArray()
		_, err = newTestElement().ResponseFromArray(batch)
		versionErr = nil
		if !errors.As(err, &versionErr) {
			t.Errorf("batch %s: expect *UnsupportedVersionError, got %v", c.version, err)
		} else if versionErr.Version != c.want {
			t.Errorf("batch %s: version mismatch: got %s, want %s", c.version, versionErr.Version, c.want)
		}
	}
}

func TestFloatVersionIsUnsupported(t *testing.T) {
	_, err := newTestElement().ResponseFromObject(value.MustParse(`{"jsonrpc":2.0,"id":1,"result":{}}`))
	assertKind(t, err, KindUnsupportedVersion)
}

func TestVersionCheckedBeforeID(t *testing.T) {
	_, err := newTestElement().ResponseFromObject(value.MustParse(`{"id":2,"jsonrpc":"1.0","result":{}}`))
	assertKind(t, err, KindUnsupportedVersion)
}

func TestMissingVersionIsAccepted(t *testing.T) {
	got, err := newTestElement().ResponseFromObject(value.MustParse(`{"id":1,"result":{"k":"v"}}`))
	if err != nil {
		t.Fatalf("expect success without version member, got %v", err)
	}
	if got["k"] != "v" {
		t.Errorf("unexpected result %v", got)
	}
}

func TestBatchSiblingsAreNotValidated(t *testing.T) {
	response, _ := value.MustParse(`[{"id":2,"jsonrpc":"1.0"},{"id":1,"jsonrpc":"2.0","result":{"k":"v"}}]`).AsArray()
	if _, err := newTestElement().ResponseFromArray(response); err != nil {
		t.Fatalf("sibling units must be ignored, got %v", err)
	}
}

func TestResponseFromObjectResponseNotFound(t *testing.T) {
	element := newTestElement()
	response := value.MustParse(`{"id":2,"jsonrpc":"2.0","result":{}}`)

	_, err := element.ResponseFromObject(response)
	var notFound *ResponseNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expect *ResponseNotFoundError, got %v", err)
	}
	if notFound.ID != element.ID() {
		t.Errorf("id mismatch: got %v, want %v", notFound.ID, element.ID())
	}
	if !value.Equal(notFound.Payload, response) {
		t.Errorf("payload mismatch: %v", notFound.Payload)
	}
}

func TestResponseFromArrayResponseNotFound(t *testing.T) {
	element := newTestElement()
	raw := value.MustParse(`[{"id":2,"jsonrpc":"2.0","result":{}},{"id":3,"jsonrpc":"2.0","result":{}}]`)
	response, _ := raw.AsArray()

	_, err := element.ResponseFromArray(response)
	var notFound *ResponseNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expect *ResponseNotFoundError, got %v", err)
	}
	if notFound.ID != element.ID() {
		t.Errorf("id mismatch: got %v", notFound.ID)
	}
	if !value.Equal(notFound.Payload, raw) {
		t.Errorf("expect the whole batch as payload, got %v", notFound.Payload)
	}
}

func TestResponseNotFoundForNullAndTypedIDs(t *testing.T) {
	cases := []string{
		`{"id":null,"jsonrpc":"2.0","result":{}}`,
		`{"jsonrpc":"2.0","result":{}}`,
		`{"id":"1","jsonrpc":"2.0","result":{}}`,
		`"not an object"`,
	}
	for _, c := range cases {
		_, err := newTestElement().ResponseFromObject(value.MustParse(c))
		if kind, _ := KindOf(err); kind != KindResponseNotFound {
			t.Errorf("%s: expect ResponseNotFound, got %v", c, err)
		}
	}
}

func TestNotificationNeverMatches(t *testing.T) {
	element := NewElement[map[string]string](testNotificationRequest{testRequest{method: "m"}}, "2.0", ID{})
	_, err := element.ResponseFromObject(value.MustParse(`{"id":null,"jsonrpc":"2.0","result":{}}`))
	assertKind(t, err, KindResponseNotFound)
}

func TestResponseFromObjectMissingBothResultAndError(t *testing.T) {
	_, err := newTestElement().ResponseFromObject(value.MustParse(`{"id":1,"jsonrpc":"2.0"}`))
	assertKind(t, err, KindMissingBothResultAndError)
}

func TestResponseFromArrayMissingBothResultAndError(t *testing.T) {
	response, _ := value.MustParse(`[{"id":1,"jsonrpc":"2.0"},{"id":2,"jsonrpc":"2.0","result":{}}]`).AsArray()
	_, err := newTestElement().ResponseFromArray(response)
	assertKind(t, err, KindMissingBothResultAndError)
}

func TestErrorWinsOverResult(t *testing.T) {
	_, err := newTestElement().ResponseFromObject(value.MustParse(`{"id":1,"jsonrpc":"2.0","result":{},"error":{"code":1,"message":"m"}}`))
	assertKind(t, err, KindResponseError)
}

func TestNullResultIsDelivered(t *testing.T) {
	element := NewElement(Raw("m", nil), "2.0", NumberID(1))
	got, err := element.ResponseFromObject(value.MustParse(`{"id":1,"jsonrpc":"2.0","result":null}`))
	if err != nil {
		t.Fatalf("expect success, got %v", err)
	}
	if !got.IsNull() {
		t.Errorf("expect null result, got %v", got)
	}
}

func TestDecodeIsIdempotent(t *testing.T) {
	element := newTestElement()
	inputs := []string{
		`{"id":1,"jsonrpc":"2.0","result":{"k":"v"}}`,
		`{"id":1,"jsonrpc":"2.0","error":{"code":1,"message":"m"}}`,
		`[{"id":2,"jsonrpc":"2.0","result":{}}]`,
	}
	for _, in := range inputs {
		v := value.MustParse(in)
		first, err1 := element.ResponseFrom(v)
		second, err2 := element.ResponseFrom(v)
		k1, _ := KindOf(err1)
		k2, _ := KindOf(err2)
		if k1 != k2 {
			t.Errorf("%s: kinds differ: %v vs %v", in, k1, k2)
		}
		if fmt.Sprint(first) != fmt.Sprint(second) {
			t.Errorf("%s: results differ: %v vs %v", in, first, second)
		}
	}
}

func assertKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	got, ok := KindOf(err)
	if !ok {
		t.Fatalf("expect %v, got unclassified error %v", want, err)
	}
	if got != want {
		t.Fatalf("expect %v, got %v (%v)", want, got, err)
	}
}
