package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// TUI components; all nil unless SetupTUI ran
var (
	App             *tview.Application
	MainFlex        *tview.Flex
	ProgressBar     *tview.TextView
	LogView         *tview.TextView
	StatusBar       *tview.TextView
	ConflictDetails *tview.TextView

	progressMu         sync.Mutex
	TotalConflicts     int
	ProcessedConflicts int
)

// SetupTUI initializes the terminal UI components
func SetupTUI() {
	App = tview.NewApplication()
	MainFlex = tview.NewFlex().SetDirection(tview.FlexRow)

	header := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("synthmerge").
		SetTextColor(tcell.ColorYellow)

	ProgressBar = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)

	LogView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true).
		SetChangedFunc(func() {
			App.QueueUpdateDraw(func() {
				LogView.ScrollToEnd()
			})
		})
	LogView.SetBorder(true)
	LogView.SetTitle("Log")
	LogView.SetTitleColor(tcell.ColorGreen)

	ConflictDetails = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	ConflictDetails.SetBorder(true)
	ConflictDetails.SetTitle("Current Conflict")
	ConflictDetails.SetTitleColor(tcell.ColorBlue)

	StatusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[yellow]Press Ctrl+C to exit[white]")

	MainFlex.AddItem(header, 1, 1, false).
		AddItem(ProgressBar, 1, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(LogView, 0, 3, false).
			AddItem(ConflictDetails, 0, 2, false),
			0, 10, false).
		AddItem(StatusBar, 1, 1, false)

	App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyPgUp:
			_, _, _, height := LogView.GetInnerRect()
			row, _ := LogView.GetScrollOffset()
			LogView.ScrollTo(row-height+1, 0)
			return nil
		case tcell.KeyPgDn:
			_, _, _, height := LogView.GetInnerRect()
			row, _ := LogView.GetScrollOffset()
			LogView.ScrollTo(row+height-1, 0)
			return nil
		case tcell.KeyEnd:
			LogView.ScrollToEnd()
			return nil
		case tcell.KeyHome:
			LogView.ScrollTo(0, 0)
			return nil
		}
		return event
	})
}

// StartTUI runs the application loop in the background. The returned
// channel yields the loop's exit error once it stops.
func StartTUI() <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- App.SetRoot(MainFlex, true).Run()
	}()
	return done
}

// StopTUI stops the application loop and releases the terminal
func StopTUI() {
	if App == nil {
		return
	}
	App.Stop()
	App, LogView, ConflictDetails, ProgressBar, StatusBar = nil, nil, nil, nil, nil
}

// ShowConfirmationDialog displays a Yes/No dialog and blocks until the user answers.
// Without a TUI the answer is always yes.
func ShowConfirmationDialog(message string) bool {
	if App == nil {
		return true
	}
	answer := make(chan bool, 1)
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"Yes", "No"}).
		SetFocus(1).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			answer <- buttonLabel == "Yes"
			App.SetRoot(MainFlex, true)
		}).
		SetBackgroundColor(tcell.ColorDefault).
		SetTextColor(tcell.ColorRed)

	App.QueueUpdateDraw(func() {
		App.SetRoot(modal, true)
	})
	return <-answer
}

// progressBarText renders processed/total as a colored bar of barWidth cells
func progressBarText(processed, total, barWidth int) string {
	if total == 0 {
		return "[yellow]No conflicts to resolve[white]"
	}
	percentage := float64(processed) / float64(total) * 100
	completedWidth := barWidth * processed / total
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		if i < completedWidth {
			bar.WriteString("[green]█[white]")
		} else {
			bar.WriteString("[gray]░[white]")
		}
	}
	return fmt.Sprintf("%s [green]%d/%d conflicts processed (%.1f%%)[white]",
		bar.String(), processed, total, percentage)
}

// SetTotalConflicts resets the progress bar for a new run
func SetTotalConflicts(total int) {
	progressMu.Lock()
	TotalConflicts, ProcessedConflicts = total, 0
	progressMu.Unlock()
	UpdateProgressBar()
}

// ConflictProcessed advances the progress bar by one conflict
func ConflictProcessed() {
	progressMu.Lock()
	ProcessedConflicts++
	progressMu.Unlock()
	UpdateProgressBar()
}

// UpdateProgressBar redraws the progress bar with the current counters
func UpdateProgressBar() {
	if App == nil {
		return
	}
	progressMu.Lock()
	text := progressBarText(ProcessedConflicts, TotalConflicts, 50)
	progressMu.Unlock()
	App.QueueUpdateDraw(func() {
		ProgressBar.SetText(text)
	})
}

// UpdateConflictDetails shows the conflict currently being resolved
func UpdateConflictDetails(file string, line int, endpoints []string) {
	if App == nil {
		return
	}
	App.QueueUpdateDraw(func() {
		ConflictDetails.Clear()
		fmt.Fprintf(ConflictDetails, "[yellow]File:[white] %s:%d\n\n", tview.Escape(file), line)
		fmt.Fprintf(ConflictDetails, "[yellow]Endpoints:[white]\n")
		for _, name := range endpoints {
			fmt.Fprintf(ConflictDetails, "  %s\n", tview.Escape(name))
		}
		fmt.Fprintf(ConflictDetails, "\n[yellow]Completed:[white]\n")
	})
}

// AddEndpointCompletion appends one finished endpoint to the conflict pane
func AddEndpointCompletion(text string) {
	if App == nil {
		return
	}
	App.QueueUpdateDraw(func() {
		fmt.Fprintf(ConflictDetails, "  %s\n", tview.Escape(text))
	})
}

// UpdateStatus updates the status bar text
func UpdateStatus(text string) {
	if App == nil {
		return
	}
	App.QueueUpdateDraw(func() {
		StatusBar.SetText(fmt.Sprintf("[yellow]%s[white]", tview.Escape(text)))
	})
}
