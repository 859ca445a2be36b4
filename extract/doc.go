// Package extract pulls structured artifacts out of free-form model text.
//
// It provides three mechanisms, each independent of the run loop that uses
// them:
//
//   - Tokenize splits a model turn into plain text, tagged code blocks
//     (<execute>...</execute>) and tagged command invocations
//     (<command>{"cmd": ..., "params": ...}</command>), as a flat list of
//     tagged-variant Segments.
//   - StreamFilter is an incremental state machine that hides structured
//     control JSON from a human-readable text stream while it is still
//     being delivered chunk by chunk.
//   - FirstJSONObject recovers the first complete JSON object from text
//     that may wrap it in markdown fences or prose.
package extract
