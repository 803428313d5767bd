// ABOUTME: Error values surfaced by the controller to the view and CLI
// ABOUTME: Sentinels for invalid selections and typed errors for per-feed reload failures

package app

import (
	"errors"
	"fmt"
)

var (
	// ErrNoURLs means the subscription list is empty.
	ErrNoURLs = errors.New("no feed urls configured")
	// ErrInvalidFeed means a feed position is out of range.
	ErrInvalidFeed = errors.New("invalid feed")
	// ErrInvalidItem means an item position is out of range.
	ErrInvalidItem = errors.New("invalid item")
	// ErrEmptyFeed means the selected feed has no items to show.
	ErrEmptyFeed = errors.New("feed has no items")
)

// FetchError is a network or HTTP failure while retrieving a feed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a feed document that could not be parsed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReloadError reports a failed reload of one feed. The feed keeps its
// cached items.
type ReloadError struct {
	URL string
	Err error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload %s: %v", e.URL, e.Err)
}

func (e *ReloadError) Unwrap() error { return e.Err }
