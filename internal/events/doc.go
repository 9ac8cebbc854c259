// Package events carries progress from a running batch to whoever is watching it.
//
// A batch emits typed events (progress percent, status text, leveled log lines
// and a terminal result) into a Sink. Sinks never block the producer: the
// Channel sink drops events when its buffer is full, the Ring sink keeps the
// most recent log lines for later display, and Multi fans out to several sinks.
package events
