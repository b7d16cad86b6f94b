// Package textproc provides lightweight transcript cleanup.
//
// Speech recognition output arrives as a lowercase stream with erratic
// punctuation. When no formatting pass ran server-side, Cleanup applies a
// small set of deterministic rules (capitalization, sentence-final
// punctuation, spacing) so the inserted text reads naturally. The rules are
// intentionally conservative: they never reorder or drop words.
package textproc
