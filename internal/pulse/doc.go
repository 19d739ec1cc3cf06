// Package pulse is the only place that knows the audio server's command
// syntax and text formats.
//
// Client issues pactl commands through an injectable Executor, bounding each
// call with a hard timeout, and the parser turns the short and verbose
// listings into typed records. Parsing never fails a batch: a block missing a
// required field yields no record.
package pulse
