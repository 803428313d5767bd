// ABOUTME: Ordered, duplicate-free subscription list backed by a persister
// ABOUTME: Adds URLs by exact match and saves the whole list on Persist

package subscriptions

import (
	"fmt"
	"strings"
)

// Persister saves the full URL list, replacing what was stored before.
type Persister interface {
	SaveURLs(urls []string) error
}

// List is the ordered set of subscribed feed URLs.
type List struct {
	urls      []string
	index     map[string]bool
	persister Persister
}

// New builds a list from urls, dropping blanks and later duplicates.
func New(urls []string, persister Persister) *List {
	l := &List{
		urls:      make([]string, 0, len(urls)),
		index:     make(map[string]bool, len(urls)),
		persister: persister,
	}
	for _, url := range urls {
		l.Add(url)
	}
	return l
}

// URLs returns a copy of the list in order.
func (l *List) URLs() []string {
	out := make([]string, len(l.urls))
	copy(out, l.urls)
	return out
}

// Len returns the number of subscriptions.
func (l *List) Len() int {
	return len(l.urls)
}

// Contains reports whether url is subscribed. Matching is exact.
func (l *List) Contains(url string) bool {
	return l.index[strings.TrimSpace(url)]
}

// Add appends url unless it is blank or already present. It does not persist.
func (l *List) Add(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" || l.index[url] {
		return false
	}
	l.urls = append(l.urls, url)
	l.index[url] = true
	return true
}

// Remove drops urls from the list, keeping the order of the rest.
func (l *List) Remove(urls ...string) {
	drop := make(map[string]bool, len(urls))
	for _, url := range urls {
		url = strings.TrimSpace(url)
		if l.index[url] {
			drop[url] = true
			delete(l.index, url)
		}
	}
	if len(drop) == 0 {
		return
	}
	kept := l.urls[:0]
	for _, url := range l.urls {
		if !drop[url] {
			kept = append(kept, url)
		}
	}
	l.urls = kept
}

// Persist writes the list through the persister.
func (l *List) Persist() error {
	if l.persister == nil {
		return fmt.Errorf("persist subscriptions: no persister")
	}
	if err := l.persister.SaveURLs(l.URLs()); err != nil {
		return fmt.Errorf("persist subscriptions: %w", err)
	}
	return nil
}
