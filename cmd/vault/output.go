package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/org/passvault/pkg/models"
)

var outputFormat string // "table", "json"

const timeLayout = "2006-01-02 15:04"

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v) //nolint:errcheck
}

// printSummaries outputs a credential list in the chosen format.
func printSummaries(w io.Writer, list []models.Summary) {
	if outputFormat == "json" {
		printJSON(w, list)
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(w, color.YellowString("!")+" No credentials found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSERVICE\tUSERNAME\tCREATED\tUPDATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Service, s.Username, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	}
	tw.Flush()
}

// printSummary outputs one credential in the chosen format.
func printSummary(w io.Writer, s *models.Summary) {
	if outputFormat == "json" {
		printJSON(w, s)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%d\n", s.ID)
	fmt.Fprintf(tw, "service\t%s\n", s.Service)
	fmt.Fprintf(tw, "username\t%s\n", s.Username)
	fmt.Fprintf(tw, "created_at\t%s\n", formatTime(s.CreatedAt))
	fmt.Fprintf(tw, "updated_at\t%s\n", formatTime(s.UpdatedAt))
	tw.Flush()
}

// printResult outputs a generic document in the chosen format.
func printResult(w io.Writer, data map[string]any) {
	if outputFormat == "json" {
		printJSON(w, data)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%v\n", k, data[k])
	}
	tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func printError(msg string) {
	fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+msg)
}

func printSuccess(msg string) {
	fmt.Fprintln(os.Stdout, color.GreenString("✓")+" "+msg)
}
