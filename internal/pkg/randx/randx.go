/*
Package randx provides generators for unique identifiers and object storage keys.
*/
package randx

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MessageID generates a UUID v4 string used as the message primary key.
func MessageID() string {
	return uuid.New().String()
}

// UserID generates a UUID v4 string used as the user primary key.
func UserID() string {
	return uuid.New().String()
}

// ObjectKey builds an object storage key scoped under the owning user,
// preserving the (lowercased) extension of the original file name.
// Example: "u/<userID>/<uuid>.png".
func ObjectKey(userID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("u/%s/%s%s", userID, uuid.New().String(), ext)
}

// IsValidUserID reports whether id parses as a UUID.
func IsValidUserID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
