package domain

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength bounds the title in runes.
const MaxTitleLength = 200

// ValidateInput checks a bookmark form and returns the trimmed values.
// Any failure is a *ValidationError.
func ValidateInput(title, rawURL string) (string, string, error) {
	title = strings.TrimSpace(title)
	rawURL = strings.TrimSpace(rawURL)

	if title == "" {
		return "", "", &ValidationError{Field: "title", Msg: "title is required"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", "", &ValidationError{Field: "title", Msg: "title is too long"}
	}
	if rawURL == "" {
		return "", "", &ValidationError{Field: "url", Msg: "url is required"}
	}
	if !IsAbsoluteURL(rawURL) {
		return "", "", &ValidationError{Field: "url", Msg: "please enter a valid URL"}
	}
	return title, rawURL, nil
}

// IsAbsoluteURL reports whether s is a well-formed absolute http(s) URL.
func IsAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
