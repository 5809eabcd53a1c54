package bandel

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCursorAcceptsEmptyAndWellFormed(t *testing.T) {
	valid := []string{
		"",
		"eyJpZCI6MTIzfQ==",
		"abc-DEF_123",
		strings.Repeat("a", MaxCursorLength),
	}

	for _, cursor := range valid {
		if err := ValidateCursor(cursor); err != nil {
			t.Errorf("ValidateCursor(%q) = %v, want nil", cursor, err)
		}
		if !IsValidCursor(cursor) {
			t.Errorf("IsValidCursor(%q) = false, want true", cursor)
		}
	}
}

func TestValidateCursorTooLong(t *testing.T) {
	cursor := strings.Repeat("a", MaxCursorLength+1)

	err := ValidateCursor(cursor)
	if err == nil {
		t.Fatal("expected error for 501 character cursor")
	}
	if !errors.Is(err, ErrCursorTooLong) {
		t.Errorf("expected ErrCursorTooLong, got %v", err)
	}
	if IsValidCursor(cursor) {
		t.Error("IsValidCursor must agree with ValidateCursor")
	}
}

func TestValidateCursorInvalidCharacters(t *testing.T) {
	invalid := []string{
		"<script>",
		"with space",
		"semi;colon",
		"per%cent",
		"slash/",
	}

	for _, cursor := range invalid {
		err := ValidateCursor(cursor)
		if err == nil {
			t.Errorf("ValidateCursor(%q) = nil, want error", cursor)
			continue
		}
		if !errors.Is(err, ErrCursorInvalidChars) {
			t.Errorf("ValidateCursor(%q) = %v, want ErrCursorInvalidChars", cursor, err)
		}
		if IsValidCursor(cursor) {
			t.Errorf("IsValidCursor(%q) = true, want false", cursor)
		}
	}
}

func TestValidateCursorTruncatesDiagnostics(t *testing.T) {
	cursor := strings.Repeat("b", 200) + "!"

	err := ValidateCursor(cursor)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), cursor) {
		t.Error("diagnostic should not contain the full oversized cursor")
	}
	if !strings.Contains(err.Error(), strings.Repeat("b", cursorLogLimit)) {
		t.Error("diagnostic should contain the truncated cursor prefix")
	}
}

func TestValidateCursorOversizedDiagnosticIsTruncated(t *testing.T) {
	cursor := strings.Repeat("c", MaxCursorLength+100)

	err := ValidateCursor(cursor)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Error()) > 200 {
		t.Errorf("diagnostic too long (%d chars): %s", len(err.Error()), err.Error()[:80])
	}
}

func TestAppendCursor(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		cursor  string
		want    string
		wantErr bool
	}{
		{name: "empty cursor passes through", rawURL: "/items", cursor: "", want: "/items"},
		{name: "cursor added", rawURL: "/items", cursor: "abc123", want: "/items?cursor=abc123"},
		{name: "existing query preserved", rawURL: "/items?limit=10", cursor: "abc", want: "/items?cursor=abc&limit=10"},
		{name: "invalid cursor rejected", rawURL: "/items", cursor: "<script>", wantErr: true},
	}

	for _, test := range tests {
		got, err := AppendCursor(test.rawURL, test.cursor)
		if test.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", test.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", test.name, err)
			continue
		}
		if got != test.want {
			t.Errorf("%s: got %q, want %q", test.name, got, test.want)
		}
	}
}
