// Package progress reports per-username completion lines.
//
// Lines look like "3/10 → alice ✔" or "4/10 → ghost ❌ (HTTP Error: 429)".
// A Tracker numbers completions in the order results arrive and hands each
// line to a Reporter: the terminal, the logger, a status file, or several
// of them through Multi.
package progress
