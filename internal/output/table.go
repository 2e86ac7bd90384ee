package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jbweber/anvil/internal/store"
)

// TableFormatter formats instances as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatInstance formats a single instance as a table row followed by its
// services and users, when loaded.
func (f *TableFormatter) FormatInstance(inst *store.Instance) (string, error) {
	out, err := f.FormatInstanceList([]store.Instance{*inst})
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString(out)

	if len(inst.Services) > 0 {
		names := make([]string, 0, len(inst.Services))
		for _, svc := range inst.Services {
			names = append(names, svc.ServiceName)
		}
		fmt.Fprintf(&buf, "\nServices: %s\n", strings.Join(names, ", "))
	}

	if len(inst.Users) > 0 {
		names := make([]string, 0, len(inst.Users))
		for _, u := range inst.Users {
			name := u.Username
			if u.HasSudo {
				name += " (sudo)"
			}
			names = append(names, name)
		}
		fmt.Fprintf(&buf, "Users: %s\n", strings.Join(names, ", "))
	}

	return buf.String(), nil
}

// FormatInstanceList formats a list of instances as a table.
func (f *TableFormatter) FormatInstanceList(instances []store.Instance) (string, error) {
	if len(instances) == 0 {
		return "No instances found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tOS\tCPUS\tRAM\tSTORAGE\tUUID\tAGE")
	}

	for _, inst := range instances {
		st := string(inst.Status)
		if st == "" {
			st = "-"
		}

		uuid := inst.ExternalUUID
		if uuid == "" {
			uuid = "-"
		}

		age := "-"
		if !inst.CreatedAt.IsZero() {
			age = formatAge(time.Since(inst.CreatedAt))
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d MB\t%d MB\t%s\t%s\n",
			inst.ID, inst.Name, st, inst.OSType, inst.CPUCores, inst.RAMSize, inst.StorageSize, uuid, age)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	if years := days / 365; years > 0 {
		return fmt.Sprintf("%dy", years)
	}

	return fmt.Sprintf("%dd", days)
}
