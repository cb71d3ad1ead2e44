// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI runs one query at a time through four views:
//  1. [MenuView] : Pick a favorites listing or a search kind
//  2. [SearchView] : Enter the search text
//  3. [QueryView] : Watch the status line and progress bar of the running query
//  4. [ResultView] : Browse the collected songs, the summary and any errors
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel fed by a [tasks.ChannelListener], so the query never blocks on rendering.
// Leaving [QueryView] with esc cancels the running query.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, s, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
