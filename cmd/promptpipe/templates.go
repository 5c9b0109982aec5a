package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpipe/pkg/compose"
	"github.com/jingkaihe/promptpipe/pkg/presenter"
	"github.com/jingkaihe/promptpipe/pkg/templates"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect available prompt templates",
}

// TemplateOutputFormat selects list rendering
type TemplateOutputFormat int

const (
	// TemplateTableFormat renders a tabwriter table
	TemplateTableFormat TemplateOutputFormat = iota
	// TemplateJSONFormat renders indented JSON
	TemplateJSONFormat
)

// TemplateOutput is one row of the templates list
type TemplateOutput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path,omitempty"`
}

// TemplateListOutput renders the templates list in the selected format
type TemplateListOutput struct {
	Templates []TemplateOutput
	Format    TemplateOutputFormat
}

// NewTemplateListOutput builds list output rows from loaded templates
func NewTemplateListOutput(all []*templates.Template, format TemplateOutputFormat, showPath bool) *TemplateListOutput {
	output := &TemplateListOutput{
		Templates: make([]TemplateOutput, 0, len(all)),
		Format:    format,
	}

	for _, tmpl := range all {
		name := tmpl.Metadata.Name
		if name == "" {
			name = tmpl.ID
		}

		row := TemplateOutput{
			ID:          tmpl.ID,
			Name:        name,
			Description: tmpl.Metadata.Description,
		}
		if showPath || format == TemplateJSONFormat {
			row.Path = tmpl.Path
		}

		output.Templates = append(output.Templates, row)
	}

	return output
}

// Render writes the list in the configured format
func (o *TemplateListOutput) Render(w io.Writer) error {
	if o.Format == TemplateJSONFormat {
		return o.renderJSON(w)
	}
	return o.renderTable(w)
}

func (o *TemplateListOutput) renderJSON(w io.Writer) error {
	type jsonOutput struct {
		Templates []TemplateOutput `json:"templates"`
	}

	jsonData, err := json.MarshalIndent(jsonOutput{Templates: o.Templates}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error generating JSON output")
	}

	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}

func (o *TemplateListOutput) hasPath() bool {
	for _, row := range o.Templates {
		if row.Path != "" {
			return true
		}
	}
	return false
}

func (o *TemplateListOutput) renderTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if o.hasPath() {
		fmt.Fprintln(tw, "ID\tName\tDescription\tPath")
		fmt.Fprintln(tw, "----\t----\t-----------\t----")
		for _, row := range o.Templates {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.ID, row.Name, row.Description, row.Path)
		}
	} else {
		fmt.Fprintln(tw, "ID\tName\tDescription")
		fmt.Fprintln(tw, "----\t----\t-----------")
		for _, row := range o.Templates {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", row.ID, row.Name, row.Description)
		}
	}

	return tw.Flush()
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discoverable templates",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		store, err := newTemplateStore(cmd)
		if err != nil {
			presenter.Error(err, "Failed to create template store")
			os.Exit(1)
		}

		all, err := store.List(ctx)
		if err != nil {
			presenter.Error(err, "Failed to list templates")
			os.Exit(1)
		}

		showPath, _ := cmd.Flags().GetBool("path")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		format := TemplateTableFormat
		if jsonOutput {
			format = TemplateJSONFormat
		}

		if err := NewTemplateListOutput(all, format, showPath).Render(cmd.OutOrStdout()); err != nil {
			presenter.Error(err, "Failed to render template list")
			os.Exit(1)
		}
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show [template]",
	Short: "Show a template's resolved text and insertion points",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		store, err := newTemplateStore(cmd)
		if err != nil {
			presenter.Error(err, "Failed to create template store")
			os.Exit(1)
		}

		raw, _ := cmd.Flags().GetBool("raw")

		var text string
		if raw {
			tmpl, err := store.Load(ctx, args[0])
			if err != nil {
				presenter.Error(err, fmt.Sprintf("Failed to load template %q", args[0]))
				os.Exit(1)
			}
			text = tmpl.Raw
		} else {
			text, err = store.Resolve(ctx, args[0])
			if err != nil {
				presenter.Error(err, fmt.Sprintf("Failed to resolve template %q", args[0]))
				os.Exit(1)
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), text)

		points, err := compose.InsertionPoints(text)
		if err == nil && len(points) > 0 {
			presenter.Separator()
			presenter.Info(fmt.Sprintf("Insertion points: %s", strings.Join(points, ", ")))
		}
	},
}

var templatesDiffCmd = &cobra.Command{
	Use:   "diff [template] [template]",
	Short: "Diff the resolved text of two templates",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		store, err := newTemplateStore(cmd)
		if err != nil {
			presenter.Error(err, "Failed to create template store")
			os.Exit(1)
		}

		left, err := store.Resolve(ctx, args[0])
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to resolve template %q", args[0]))
			os.Exit(1)
		}
		right, err := store.Resolve(ctx, args[1])
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to resolve template %q", args[1]))
			os.Exit(1)
		}

		diff := udiff.Unified(args[0], args[1], left, right)
		if diff == "" {
			presenter.Info("Templates resolve to identical text")
			return
		}
		fmt.Fprint(cmd.OutOrStdout(), diff)
	},
}

func init() {
	templatesListCmd.Flags().Bool("path", false, "Show template file paths")
	templatesListCmd.Flags().Bool("json", false, "Output in JSON format")
	templatesShowCmd.Flags().Bool("raw", false, "Show the raw body without expanding includes")

	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesShowCmd)
	templatesCmd.AddCommand(templatesDiffCmd)
}
