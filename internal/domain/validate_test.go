package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		url       string
		wantField string // empty = valid
		wantTitle string
		wantURL   string
	}{
		{
			name:      "valid https",
			title:     "GitHub",
			url:       "https://github.com",
			wantTitle: "GitHub",
			wantURL:   "https://github.com",
		},
		{
			name:      "trims whitespace",
			title:     "  Go  ",
			url:       " https://go.dev/doc ",
			wantTitle: "Go",
			wantURL:   "https://go.dev/doc",
		},
		{
			name:      "empty title",
			title:     "   ",
			url:       "https://github.com",
			wantField: "title",
		},
		{
			name:      "title too long",
			title:     strings.Repeat("a", MaxTitleLength+1),
			url:       "https://github.com",
			wantField: "title",
		},
		{
			name:      "empty url",
			title:     "GitHub",
			url:       "",
			wantField: "url",
		},
		{
			name:      "not a url",
			title:     "GitHub",
			url:       "not-a-url",
			wantField: "url",
		},
		{
			name:      "relative path",
			title:     "GitHub",
			url:       "/foo/bar",
			wantField: "url",
		},
		{
			name:      "unsupported scheme",
			title:     "Mail",
			url:       "mailto:someone@example.com",
			wantField: "url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, u, err := ValidateInput(tt.title, tt.url)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateInput() unexpected error: %v", err)
				}
				if title != tt.wantTitle || u != tt.wantURL {
					t.Errorf("ValidateInput() = (%q, %q), want (%q, %q)", title, u, tt.wantTitle, tt.wantURL)
				}
				return
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("ValidateInput() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestSortNewestFirst(t *testing.T) {
	now := time.Now()
	bookmarks := []Bookmark{
		{ID: "a", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "b", CreatedAt: now},
		{ID: "c", CreatedAt: now.Add(-time.Hour)},
		{ID: "d", CreatedAt: now},
	}

	SortNewestFirst(bookmarks)

	want := []string{"d", "b", "c", "a"}
	for i, id := range want {
		if bookmarks[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, bookmarks[i].ID, id)
		}
	}
}

func TestStorageErrorWrapping(t *testing.T) {
	err := NewStorageError("insert", ErrForbidden)

	if !IsStorageError(err) {
		t.Fatal("NewStorageError() should produce a StorageError")
	}
	if !errors.Is(err, ErrForbidden) {
		t.Error("StorageError should unwrap to the cause")
	}

	// Wrapping twice keeps the original op.
	again := NewStorageError("list", err)
	var se *StorageError
	if !errors.As(again, &se) || se.Op != "insert" {
		t.Errorf("double wrap changed op, got %v", again)
	}

	if NewStorageError("list", nil) != nil {
		t.Error("NewStorageError(nil) should be nil")
	}
}
