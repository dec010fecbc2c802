package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/izposoja/internal/allocate"
)

// assignInput is the YAML document read by the assign command.
type assignInput struct {
	Members  []string           `yaml:"members"`
	Sections []allocate.Section `yaml:"sections"`
}

func newAssignCommand(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <file.yaml>",
		Short: "Spread members over sections with bounded capacity",
		Long: `Assign members round-robin to sections, least occupied first, skipping
full sections.

The input file lists members and sections:

  members: [ana, bor, cene]
  sections:
    - id: a
      capacity: 2
      current_count: 1
    - id: b`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readAssignInput(args[0])
			if err != nil {
				return err
			}
			res := allocate.Assign(in.Members, in.Sections)
			return printAssignment(cmd.OutOrStdout(), res)
		},
	}
}

func readAssignInput(path string) (assignInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return assignInput{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var in assignInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return assignInput{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	seen := make(map[string]bool, len(in.Sections))
	for _, s := range in.Sections {
		if s.ID == "" || seen[s.ID] {
			return assignInput{}, fmt.Errorf("%s: section ids must be unique and non-empty", path)
		}
		if s.CurrentCount < 0 || (s.Capacity != nil && *s.Capacity < 0) {
			return assignInput{}, fmt.Errorf("%s: section %s has a negative count", path, s.ID)
		}
		seen[s.ID] = true
	}
	return in, nil
}

func printAssignment(w io.Writer, res allocate.Result[string]) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MEMBER\tSECTION")
	for _, a := range res.Assignments {
		fmt.Fprintf(tw, "%s\t%s\n", a.Member, a.SectionID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if res.UnassignedCount > 0 {
		fmt.Fprintf(w, "\n%d member(s) left unassigned, all sections are full\n", res.UnassignedCount)
	}
	return nil
}
