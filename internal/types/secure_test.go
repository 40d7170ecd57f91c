package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

const testSecret = "smtp-password-very-secret"

func TestSecretString_String(t *testing.T) {
	s := SecretString(testSecret)

	result := s.String()

	if result != redactedPlaceholder {
		t.Errorf("String() = %q, want %q", result, redactedPlaceholder)
	}
	if strings.Contains(result, testSecret) {
		t.Errorf("String() leaked the raw secret value")
	}
}

func TestSecretString_Sprintf(t *testing.T) {
	s := SecretString(testSecret)

	// %s and %v both go through the fmt.Stringer interface.
	for _, verb := range []string{"%s", "%v"} {
		result := fmt.Sprintf("key="+verb, s)
		if strings.Contains(result, testSecret) {
			t.Errorf("fmt.Sprintf(%s) leaked the raw secret: %s", verb, result)
		}
		if result != "key="+redactedPlaceholder {
			t.Errorf("fmt.Sprintf(%s) = %q, want redacted", verb, result)
		}
	}
}

func TestSecretString_MarshalJSON(t *testing.T) {
	s := SecretString(testSecret)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("MarshalJSON returned error: %v", err)
	}
	if strings.Contains(string(data), testSecret) {
		t.Errorf("MarshalJSON leaked the raw secret: %s", data)
	}
	if string(data) != string(redactedJSON) {
		t.Errorf("MarshalJSON = %s, want %s", data, redactedJSON)
	}
}

func TestSecretString_MarshalJSONInStruct(t *testing.T) {
	payload := struct {
		Host     string       `json:"host"`
		Password SecretString `json:"password"`
	}{
		Host:     "smtp.example.com",
		Password: SecretString(testSecret),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("MarshalJSON returned error: %v", err)
	}
	if strings.Contains(string(data), testSecret) {
		t.Errorf("struct marshal leaked the raw secret: %s", data)
	}
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)

	if s.Unmask() != testSecret {
		t.Errorf("Unmask() = %q, want the raw value", s.Unmask())
	}
}
