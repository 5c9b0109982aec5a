package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpipe/pkg/checklist"
	"github.com/jingkaihe/promptpipe/pkg/presenter"
)

var checklistsCmd = &cobra.Command{
	Use:   "checklists",
	Short: "Inspect available review checklists",
}

// ChecklistOutput is one row of the checklists list
type ChecklistOutput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Items       int    `json:"items"`
	Path        string `json:"path,omitempty"`
}

// ChecklistListOutput renders the checklists list as a table or JSON
type ChecklistListOutput struct {
	Checklists []ChecklistOutput
	JSON       bool
}

// NewChecklistListOutput builds list output rows from loaded checklists
func NewChecklistListOutput(all []*checklist.Checklist, jsonFormat bool) *ChecklistListOutput {
	output := &ChecklistListOutput{
		Checklists: make([]ChecklistOutput, 0, len(all)),
		JSON:       jsonFormat,
	}

	for _, c := range all {
		name := c.Name
		if name == "" {
			name = c.ID
		}

		row := ChecklistOutput{
			ID:          c.ID,
			Name:        name,
			Description: c.Description,
			Items:       c.Len(),
		}
		if jsonFormat {
			row.Path = c.Path
		}

		output.Checklists = append(output.Checklists, row)
	}

	return output
}

// Render writes the list in the configured format
func (o *ChecklistListOutput) Render(w io.Writer) error {
	if o.JSON {
		type jsonOutput struct {
			Checklists []ChecklistOutput `json:"checklists"`
		}

		jsonData, err := json.MarshalIndent(jsonOutput{Checklists: o.Checklists}, "", "  ")
		if err != nil {
			return errors.Wrap(err, "error generating JSON output")
		}

		_, err = fmt.Fprintln(w, string(jsonData))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tName\tItems\tDescription")
	fmt.Fprintln(tw, "----\t----\t-----\t-----------")
	for _, row := range o.Checklists {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", row.ID, row.Name, row.Items, row.Description)
	}
	return tw.Flush()
}

var checklistsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discoverable checklists",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		store, err := newChecklistStore(cmd)
		if err != nil {
			presenter.Error(err, "Failed to create checklist store")
			os.Exit(1)
		}

		all, err := store.List(ctx)
		if err != nil {
			presenter.Error(err, "Failed to list checklists")
			os.Exit(1)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")

		if err := NewChecklistListOutput(all, jsonOutput).Render(cmd.OutOrStdout()); err != nil {
			presenter.Error(err, "Failed to render checklist list")
			os.Exit(1)
		}
	},
}

var checklistsShowCmd = &cobra.Command{
	Use:   "show [checklist]",
	Short: "Show a checklist's items",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		store, err := newChecklistStore(cmd)
		if err != nil {
			presenter.Error(err, "Failed to create checklist store")
			os.Exit(1)
		}

		c, err := store.Load(ctx, args[0])
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to load checklist %q", args[0]))
			os.Exit(1)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			type itemOutput struct {
				ID           string `json:"id"`
				Description  string `json:"description"`
				Severity     string `json:"severity"`
				MustMatch    string `json:"must_match,omitempty"`
				MustNotMatch string `json:"must_not_match,omitempty"`
				AppliesTo    string `json:"applies_to,omitempty"`
			}
			type checklistDetail struct {
				ID          string       `json:"id"`
				Name        string       `json:"name"`
				Description string       `json:"description"`
				Path        string       `json:"path,omitempty"`
				Items       []itemOutput `json:"items"`
			}

			detail := checklistDetail{
				ID:          c.ID,
				Name:        c.Name,
				Description: c.Description,
				Path:        c.Path,
				Items:       make([]itemOutput, 0, c.Len()),
			}
			for _, item := range c.Items() {
				detail.Items = append(detail.Items, itemOutput{
					ID:           item.ID,
					Description:  item.Description,
					Severity:     string(item.Severity),
					MustMatch:    item.MustMatch,
					MustNotMatch: item.MustNotMatch,
					AppliesTo:    item.AppliesTo,
				})
			}

			jsonData, err := json.MarshalIndent(detail, "", "  ")
			if err != nil {
				presenter.Error(err, "Failed to render checklist")
				os.Exit(1)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
			return
		}

		presenter.Section(c.Name)
		if c.Description != "" {
			presenter.Info(c.Description)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSeverity\tDescription")
		fmt.Fprintln(tw, "----\t--------\t-----------")
		for _, item := range c.Items() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", item.ID, item.Severity, item.Description)
		}
		if err := tw.Flush(); err != nil {
			presenter.Error(err, "Failed to render checklist")
			os.Exit(1)
		}
	},
}

func init() {
	checklistsListCmd.Flags().Bool("json", false, "Output in JSON format")
	checklistsShowCmd.Flags().Bool("json", false, "Output in JSON format")

	checklistsCmd.AddCommand(checklistsListCmd)
	checklistsCmd.AddCommand(checklistsShowCmd)
}
