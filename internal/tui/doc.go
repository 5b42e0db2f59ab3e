/*
Package tui renders load run progress in the terminal.

# Components

  - styles.go: adaptive colors and shared lipgloss styles
  - summary.go: RenderSummary, the static report printed after a run
  - dashboard.go: Dashboard, a Bubble Tea model polling a running Source

The dashboard follows the Model-Update-View pattern. It polls the
executor every 100ms with tea.Tick and quits once every session has
exited. Pressing q or ctrl+c asks the run to stop; the dashboard keeps
rendering until the sessions have drained.
*/
package tui
