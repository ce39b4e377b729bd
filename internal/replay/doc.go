// Package replay keeps recent transcripts addressable by response id so
// providers without server-side conversation state can still honour a
// previous-response chaining token.
package replay
