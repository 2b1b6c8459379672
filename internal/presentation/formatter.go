// Package presentation renders registry state for the CLI, either as
// indented JSON or as styled text.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	json   bool
}

// NewFormatter creates a new formatter. With asJSON set every method
// writes its DTO as JSON instead of text.
func NewFormatter(writer io.Writer, asJSON bool) *Formatter {
	return &Formatter{
		writer: writer,
		json:   asJSON,
	}
}

// JSON writes v as indented JSON.
func (f *Formatter) JSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Deployments lists stored deployments.
func (f *Formatter) Deployments(deployments []DeploymentDTO) error {
	if f.json {
		return f.JSON(deployments)
	}
	if len(deployments) == 0 {
		return f.line(mutedStyle.Render("no deployments"))
	}

	width := len("SCOPE")
	for _, d := range deployments {
		width = max(width, len(d.Scope))
	}
	col := lipgloss.NewStyle().Width(width + 2)

	var b strings.Builder
	b.WriteString(headerStyle.Render(col.Render("SCOPE") + fmt.Sprintf("%-11s%-14s%s", "ARTIFACTS", "ETAG", "DEPLOYED")))
	b.WriteByte('\n')
	for _, d := range deployments {
		b.WriteString(scopeStyle.Render(col.Render(d.Scope)))
		fmt.Fprintf(&b, "%-11d", d.Artifacts)
		b.WriteString(idStyle.Render(fmt.Sprintf("%-14s", shortETag(d.ETag))))
		b.WriteString(mutedStyle.Render(d.DeployedAt.Format(time.RFC3339)))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// DeployResult reports a deploy or undeploy.
func (f *Formatter) DeployResult(res DeployResultDTO) error {
	if f.json {
		return f.JSON(res)
	}
	if !res.Changed {
		return f.line(mutedStyle.Render("unchanged ") + scopeStyle.Render(res.Scope))
	}
	msg := successStyle.Render("deployed ") + scopeStyle.Render(res.Scope) +
		mutedStyle.Render(" (refresh: "+res.Mode+")")
	if res.Namespace != "" {
		msg += idStyle.Render(fmt.Sprintf(" namespace %s gen %d", res.Namespace, res.Generation))
	}
	return f.line(msg)
}

// Resolution reports where a name resolved. Callers print the content
// itself separately.
func (f *Formatter) Resolution(res ResolutionDTO) error {
	if f.json {
		return f.JSON(res)
	}
	if !res.Found {
		return f.line(errorStyle.Render("not found ") + res.Kind + " " + scopeStyle.Render(res.Name) +
			mutedStyle.Render(" in "+res.Scope))
	}
	msg := successStyle.Render("found ") + res.Kind + " " + scopeStyle.Render(res.Name) +
		mutedStyle.Render(fmt.Sprintf(" (%d bytes)", res.Size))
	if res.Owner != "" {
		msg += mutedStyle.Render(" from ") + res.Owner + mutedStyle.Render("/"+res.Artifact) +
			idStyle.Render(fmt.Sprintf(" gen %d", res.Generation))
	}
	return f.line(msg)
}

// Namespace describes a namespace snapshot.
func (f *Formatter) Namespace(ns NamespaceDTO) error {
	if f.json {
		return f.JSON(ns)
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(ns.Scope))
	b.WriteString(idStyle.Render(fmt.Sprintf("  %s gen %d etag %s", ns.Namespace, ns.Generation, shortETag(ns.ETag))))
	b.WriteByte('\n')
	if ns.Parent != "" {
		b.WriteString(mutedStyle.Render("  parent: ") + ns.Parent + "\n")
	}
	writeNames(&b, "modules", ns.Modules)
	writeNames(&b, "resources", ns.Resources)
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// Event prints one lifecycle event per line.
func (f *Formatter) Event(ev EventDTO) error {
	if f.json {
		encoder := json.NewEncoder(f.writer)
		return encoder.Encode(ev)
	}
	msg := mutedStyle.Render(ev.Time.Format("15:04:05")) + " " +
		eventStyle(ev.Type).Render(fmt.Sprintf("%-9s", ev.Type)) + " " +
		scopeStyle.Render(ev.Scope)
	if ev.Namespace != "" {
		msg += idStyle.Render(fmt.Sprintf(" %s gen %d", ev.Namespace, ev.Generation))
	}
	return f.line(msg)
}

func (f *Formatter) line(s string) error {
	_, err := io.WriteString(f.writer, s+"\n")
	return err
}

func writeNames(b *strings.Builder, label string, names []string) {
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s (%d)", label, len(names))))
	b.WriteByte('\n')
	for _, name := range names {
		b.WriteString("    " + name + "\n")
	}
}

func shortETag(etag string) string {
	if len(etag) > 12 {
		return etag[:12]
	}
	return etag
}
