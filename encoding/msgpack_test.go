package encoding

import (
	"sync"
	"testing"
)

type cursorRecord struct {
	Value     string `msgpack:"v"`
	UpdatedAt int64  `msgpack:"ts"`
}

func TestMarshal_Basic(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"string", "636040929866477946"},
		{"int64", int64(9876543210)},
		{"map", map[string]interface{}{"cursor": "abc", "ts": 30}},
		{"struct", cursorRecord{Value: "abc", UpdatedAt: 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Marshal(tc.input)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if len(data) == 0 {
				t.Error("Expected non-empty result")
			}
		})
	}
}

func TestMarshal_Concurrent(t *testing.T) {
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				result, err := Marshal(cursorRecord{Value: "cursor", UpdatedAt: int64(id*1000 + j)})
				if err != nil {
					t.Errorf("Marshal failed: %v", err)
					return
				}
				if len(result) == 0 {
					t.Error("Expected non-empty result")
					return
				}
			}
		}(i)
	}

	wg.Wait()
}

func TestUnmarshal_StructRoundTrip(t *testing.T) {
	original := cursorRecord{Value: "636040929866477946", UpdatedAt: 1702345678901}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded cursorRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != original {
		t.Errorf("got %+v, want %+v", decoded, original)
	}
}

func TestUnmarshal_StringNotBytes(t *testing.T) {
	original := "cursor_000000013049"
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var result interface{}
	if err := Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	str, ok := result.(string)
	if !ok {
		t.Fatalf("Expected string type, got %T", result)
	}
	if str != original {
		t.Errorf("String mismatch: got %q, want %q", str, original)
	}
}

func TestUnmarshal_BytesBecomeString(t *testing.T) {
	data, err := Marshal([]byte("abc"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var result interface{}
	if err := Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if s, ok := result.(string); !ok || s != "abc" {
		t.Fatalf("Expected string 'abc' (loose decoding), got %T %v", result, result)
	}
}
