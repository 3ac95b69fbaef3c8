// Package output formats review results for display or posting.
//
// Four formats are supported:
//   - markdown: the pull request comment body (also what is posted to GitHub)
//   - json: the full structured result, diagnostics included
//   - text: human-readable terminal output, coloured with aurora
//   - pretty: the markdown comment rendered for the terminal by glamour
//
// Use [GetWriter] to obtain a [Writer] for a given format string, or
// [WriteReport] to write straight to a file or stdout. [CommentBody] returns
// the markdown posted as the review comment.
package output
