package randx

import (
	"strings"
	"testing"
)

func TestObjectKey(t *testing.T) {
	t.Run("scopes the key under the owner", func(t *testing.T) {
		key := ObjectKey("user-1", "photo.PNG")
		if !strings.HasPrefix(key, "u/user-1/") {
			t.Fatalf("key = %q, want u/user-1/ prefix", key)
		}
		if !strings.HasSuffix(key, ".png") {
			t.Fatalf("key = %q, want lowercased .png extension", key)
		}
	})

	t.Run("distinct keys for the same file name", func(t *testing.T) {
		if ObjectKey("user-1", "a.jpg") == ObjectKey("user-1", "a.jpg") {
			t.Fatal("object keys must be unique")
		}
	})
}

func TestIsValidUserID(t *testing.T) {
	if !IsValidUserID(UserID()) {
		t.Fatal("generated user ID should be valid")
	}
	if IsValidUserID("not-a-uuid") {
		t.Fatal("arbitrary string should be invalid")
	}
	if IsValidUserID("") {
		t.Fatal("empty string should be invalid")
	}
}
