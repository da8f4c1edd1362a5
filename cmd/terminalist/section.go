package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/store"
)

var (
	sectionBackend string
	sectionFormat  string
)

var sectionCmd = &cobra.Command{
	Use:     "section",
	GroupID: "tasks",
	Short:   "Work with project sections",
	Long: `Add, list and remove the sections of a project.

Changes go to the local cache and are pushed on the next sync. A removed
section keeps its tasks; they move to the top of the project.`,
}

var sectionAddCmd = &cobra.Command{
	Use:     "add <project> <name>",
	Short:   "Create a section in a project",
	Example: `  terminalist section add Work "Waiting for"`,
	Args:    cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, nil)
		defer a.Close()

		b, err := a.findBackend(ctx, sectionBackend)
		if err != nil {
			fatalf("%v", err)
		}
		p, err := findProject(ctx, a.db, b.ID, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		created, err := a.engine.CreateSection(ctx, &model.Section{
			BackendID: b.ID,
			ProjectID: p.ID,
			Name:      strings.Join(args[1:], " "),
		})
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Created %s %s in %s\n", created.ID[:shortID], created.Name, p.Name)
	},
}

var sectionListCmd = &cobra.Command{
	Use:   "list [project]",
	Short: "List sections, of one project or all",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		checkFormat(sectionFormat)
		ctx := context.Background()
		a := openApp(ctx, nil)
		defer a.Close()

		b, err := a.findBackend(ctx, sectionBackend)
		if err != nil {
			fatalf("%v", err)
		}
		var projectID string
		if len(args) == 1 {
			p, err := findProject(ctx, a.db, b.ID, args[0])
			if err != nil {
				fatalf("%v", err)
			}
			projectID = p.ID
		}
		sections, err := a.db.ListSections(ctx, b.ID, projectID)
		if err != nil {
			fatalf("%v", err)
		}
		if printStructured(sectionFormat, sections) {
			return
		}
		if len(sections) == 0 {
			fmt.Println("No sections.")
			return
		}

		projects, err := a.db.ListProjects(ctx, b.ID, store.ProjectFilter{})
		if err != nil {
			fatalf("%v", err)
		}
		names := make(map[string]string, len(projects))
		for _, p := range projects {
			names[p.ID] = p.Name
		}
		for _, s := range sections {
			fmt.Println(sectionLine(s, names[s.ProjectID]))
		}
	},
}

var sectionRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a section; its tasks stay in the project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, nil)
		defer a.Close()

		b, err := a.findBackend(ctx, sectionBackend)
		if err != nil {
			fatalf("%v", err)
		}
		s, err := findSection(ctx, a.db, b.ID, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if err := a.engine.DeleteSection(ctx, s.ID); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Deleted %s\n", s.Name)
	},
}

func sectionLine(s *model.Section, project string) string {
	line := fmt.Sprintf("%s %s", s.ID[:min(shortID, len(s.ID))], s.Name)
	if project != "" {
		line += " #" + project
	}
	if s.Pending != model.PendingNone {
		line += " *"
	}
	return line
}

// findSection resolves a full id, a unique id prefix or a unique name.
func findSection(ctx context.Context, db *store.DB, backendID, ref string) (*model.Section, error) {
	sections, err := db.ListSections(ctx, backendID, "")
	if err != nil {
		return nil, err
	}
	var matches []*model.Section
	for _, s := range sections {
		if s.ID == ref {
			return s, nil
		}
		if strings.HasPrefix(s.ID, ref) || strings.EqualFold(s.Name, ref) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("section %q not found", ref)
	case 1:
		return matches[0], nil
	}
	return nil, fmt.Errorf("section %q is ambiguous", ref)
}

func init() {
	sectionCmd.PersistentFlags().StringVarP(&sectionBackend, "backend", "b", "", "Backend name or id (default: first enabled)")
	sectionListCmd.Flags().StringVarP(&sectionFormat, "format", "f", formatText, "Output format: text, json or yaml")

	sectionCmd.AddCommand(sectionAddCmd, sectionListCmd, sectionRmCmd)
	rootCmd.AddCommand(sectionCmd)
}
