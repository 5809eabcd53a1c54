package bandel

import (
	"fmt"
	"net/url"
)

// MaxCursorLength is the ceiling on pagination cursor length. Cursors are
// opaque tokens; only their shape is checked, never their contents.
const MaxCursorLength = 500

// cursorLogLimit caps how much of an oversized cursor ends up in diagnostics.
const cursorLogLimit = 50

// ValidateCursor checks the shape of a pagination cursor before it is
// forwarded as a query parameter. An empty cursor is always valid and denotes
// the first page. Otherwise the cursor must not exceed MaxCursorLength and
// must only contain characters from the base64url alphabet.
func ValidateCursor(cursor string) error {
	if cursor == "" {
		return nil
	}

	if len(cursor) > MaxCursorLength {
		return fmt.Errorf("%w: %d characters exceeds limit of %d (cursor %q...)",
			ErrCursorTooLong, len(cursor), MaxCursorLength, cursor[:cursorLogLimit])
	}

	for i := 0; i < len(cursor); i++ {
		if !isCursorChar(cursor[i]) {
			return fmt.Errorf("%w: %q", ErrCursorInvalidChars, truncateCursor(cursor))
		}
	}

	return nil
}

// IsValidCursor is the non-throwing variant of ValidateCursor. The two never
// disagree: this simply reports whether ValidateCursor accepts the cursor.
func IsValidCursor(cursor string) bool {
	return ValidateCursor(cursor) == nil
}

// AppendCursor validates the cursor and, when non-empty, adds it to rawURL as
// the "cursor" query parameter.
func AppendCursor(rawURL, cursor string) (string, error) {
	if err := ValidateCursor(cursor); err != nil {
		return "", err
	}
	if cursor == "" {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("cursor", cursor)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isCursorChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '=':
		return true
	}
	return false
}

func truncateCursor(cursor string) string {
	if len(cursor) <= cursorLogLimit {
		return cursor
	}
	return cursor[:cursorLogLimit]
}
