package store

import (
	"testing"
)

func TestJSONSerializerWithStruct(t *testing.T) {
	type Workout struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	s := NewJSONSerializer()
	data, err := s.Marshal(Workout{ID: 42, Name: "legs"})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var out Workout
	if err := s.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if out.ID != 42 || out.Name != "legs" {
		t.Fatalf("Unexpected result: %+v", out)
	}
}

func TestGetSerializer(t *testing.T) {
	if _, err := GetSerializer("json"); err != nil {
		t.Fatalf("Failed to get JSON serializer: %v", err)
	}
	if _, err := GetSerializer(""); err != nil {
		t.Fatalf("Empty format should default to JSON: %v", err)
	}
	if _, err := GetSerializer("xml"); err == nil {
		t.Fatal("Expected error for unsupported format")
	}
}

func TestEncodeValue(t *testing.T) {
	s := NewJSONSerializer()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"bytes pass through", []byte("raw"), "raw"},
		{"string pass through", "plain", "plain"},
		{"map is serialized", map[string]int{"a": 1}, `{"a":1}`},
		{"number is serialized", 7, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeValue(s, tt.value)
			if err != nil {
				t.Fatalf("encodeValue failed: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEscapePattern(t *testing.T) {
	tests := map[string]string{
		"workouts":   "workouts",
		"a*b":        `a\*b`,
		"q?[x]":      `q\?\[x\]`,
		`back\slash`: `back\\slash`,
	}
	for in, want := range tests {
		if got := escapePattern(in); got != want {
			t.Errorf("escapePattern(%q) = %q, want %q", in, got, want)
		}
	}
}
