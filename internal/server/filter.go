// Package server consumes content filtering as a pure predicate so the chat
// core stays independent of any particular word list.
package server

import goaway "github.com/TwiN/go-away"

// Filter decides whether a text message may be broadcast. Implementations
// must be safe for concurrent use.
type Filter interface {
	IsDisallowed(text string) bool
}

// FilterFunc adapts a plain predicate to the Filter interface.
type FilterFunc func(text string) bool

// IsDisallowed calls f.
func (f FilterFunc) IsDisallowed(text string) bool {
	return f(text)
}

type profanityFilter struct {
	detector *goaway.ProfanityDetector
}

// NewProfanityFilter returns the default content filter, backed by the
// go-away profanity detector with its standard dictionaries.
func NewProfanityFilter() Filter {
	return &profanityFilter{detector: goaway.NewProfanityDetector()}
}

func (f *profanityFilter) IsDisallowed(text string) bool {
	return f.detector.IsProfane(text)
}
