// Package diffparse turns unified diff text, as produced by git diff, into
// per-file change records.
//
// [Parse] performs a single forward scan. Each "diff --git" header starts a
// new record; metadata lines set its status (added, deleted, renamed) and hunk
// lines are counted and kept, verbatim, in that record's own patch text.
// Malformed input is skipped rather than reported.
//
// The line helpers ([ReconstructLines], [ChangedLines], [ExtractCode],
// [TranslateLine]) work on a single record's patch and map lines back to
// 1-based line numbers in the new version of the file.
package diffparse
