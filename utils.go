package stashbox

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const blobIDLength = 32

var validBucketRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,62}$`)

// IsValidBucket reports whether b is a usable bucket name: 2 to 63 characters
// of lowercase letters, digits, '.', '_' or '-', starting with a letter or digit.
func IsValidBucket(b string) bool {
	return validBucketRegex.MatchString(b)
}

// IsValidKey validates that a key string meets the requirements for an object key.
// It checks that the key:
//   - is not empty, ".", or "/"
//   - is relative (does not start with "/")
//   - does not end with "/"
//   - does not contain ".." (path traversal)
//   - does not contain "//" (empty segments)
//   - does not contain invalid characters: \ ? # ~
//   - is valid UTF-8
//   - does not contain "." segments (/., /./, or ending with /.)
//   - does not contain null bytes, control characters (< 0x20), DEL (0x7f), or whitespace
//   - is at most 1024 bytes long
//
// Returns true if the key is valid, false otherwise.
func IsValidKey(k string) bool {
	if k == "" || k == "/" || k == "." {
		return false
	}

	if len(k) > 1024 {
		return false
	}

	if k[0] == '/' {
		return false
	}

	if strings.HasSuffix(k, "/") {
		return false
	}

	if strings.Contains(k, "..") {
		return false
	}

	if strings.Contains(k, "//") {
		return false
	}

	if strings.ContainsAny(k, `\?#~`) {
		return false
	}

	if !utf8.ValidString(k) {
		return false
	}

	if k == "/." || strings.Contains(k, "/./") || strings.HasSuffix(k, "/.") {
		return false
	}

	for _, r := range k {
		if r == 0 || r < 0x20 || r == 0x7f || unicode.IsSpace(r) {
			return false
		}
	}

	return true
}

// IsValidBlobID reports whether id has the shape of a generated blob id:
// 32 lowercase hex characters.
func IsValidBlobID(id string) bool {
	if len(id) != blobIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
