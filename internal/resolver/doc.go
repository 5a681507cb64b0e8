// Package resolver maps participant identifiers to display names through an
// external lookup, fronted by an in-memory cache. Lookup failures fall back
// to a synthesized placeholder so a transcript is never dropped.
package resolver
