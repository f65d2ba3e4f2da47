package codec

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/codec/json"
	"github.com/go-thor/rabbit/errors"
)

func TestRaw_Encode(t *testing.T) {
	r := NewRaw("")
	tests := []struct {
		name  string
		value any
	}{
		{"bytes", []byte("payload")},
		{"string", "payload"},
		{"reader", strings.NewReader("payload")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := rabbit.NewRequest("POST")
			if err := r.Encode(context.Background(), tt.value, nil, req); err != nil {
				t.Fatalf("Failed to encode: %v", err)
			}
			if string(req.Body) != "payload" {
				t.Errorf("Body mismatch: got %s", req.Body)
			}
			if got := req.Header.Get("Content-Type"); got != "application/octet-stream" {
				t.Errorf("Content-Type mismatch: got %s", got)
			}
		})
	}

	if err := r.Encode(context.Background(), 1, nil, rabbit.NewRequest("POST")); err == nil {
		t.Error("Expected error for int body")
	}
}

func TestRaw_Decode(t *testing.T) {
	r := NewRaw("text/plain")
	resp := &rabbit.Response{Body: []byte("hello")}

	v, err := r.Decode(context.Background(), resp, reflect.TypeOf(""))
	if err != nil || v != "hello" {
		t.Errorf("String decode mismatch: got %v, %v", v, err)
	}
	v, err = r.Decode(context.Background(), resp, reflect.TypeOf([]byte(nil)))
	if err != nil || string(v.([]byte)) != "hello" {
		t.Errorf("Bytes decode mismatch: got %v, %v", v, err)
	}
	v, err = r.Decode(context.Background(), resp, reflect.TypeOf((*any)(nil)).Elem())
	if err != nil || v != "hello" {
		t.Errorf("Interface decode mismatch: got %v, %v", v, err)
	}
	if _, err := r.Decode(context.Background(), resp, reflect.TypeOf(0)); err == nil {
		t.Error("Expected error decoding into int")
	}
}

func TestNegotiator_Decode(t *testing.T) {
	typ := reflect.TypeOf(map[string]any{})
	n := Negotiate(NewRaw("")).Register("application/json", json.New())

	tests := []struct {
		name        string
		contentType string
		body        string
		typ         reflect.Type
		want        any
	}{
		{"json", "application/json; charset=utf-8", `{"a":"b"}`, typ, map[string]any{"a": "b"}},
		{"suffix", "application/problem+json", `{"a":"b"}`, typ, map[string]any{"a": "b"}},
		{"fallback", "text/plain", "hi", reflect.TypeOf(""), "hi"},
		{"missing", "", "hi", reflect.TypeOf(""), "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &rabbit.Response{Header: http.Header{}, Body: []byte(tt.body)}
			if tt.contentType != "" {
				resp.Header.Set("Content-Type", tt.contentType)
			}
			v, err := n.Decode(context.Background(), resp, tt.typ)
			if err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if !reflect.DeepEqual(v, tt.want) {
				t.Errorf("Value mismatch: got %#v, want %#v", v, tt.want)
			}
		})
	}
}

func TestNegotiator_NoDecoder(t *testing.T) {
	n := Negotiate(nil).Register("application/json", json.New())
	resp := &rabbit.Response{Header: http.Header{"Content-Type": {"application/xml"}}}

	_, err := n.Decode(context.Background(), resp, reflect.TypeOf(""))
	if !errors.IsDecodeFailure(err) {
		t.Errorf("Expected decode failure, got %v", err)
	}
}
