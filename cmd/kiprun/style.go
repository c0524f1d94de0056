package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("Error:")+" "+err.Error())
}

func printNotice(w io.Writer, line string) {
	fmt.Fprintln(w, noticeStyle.Render(line))
}
