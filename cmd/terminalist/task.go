package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/terminalist/terminalist/internal/dates"
	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/ui"
)

// shortID is how many characters of a task id "task list" prints. Any
// unique prefix is accepted back.
const shortID = 8

var taskBackend string

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "tasks",
	Short:   "Work with tasks from the command line",
	Long: `Work with tasks without starting the interface.

Changes go to the local cache and are pushed on the next sync, exactly as
in the interface. Tasks are named by id; any unique prefix works.`,
}

var (
	taskProject  string
	taskDue      string
	taskPriority int
	taskLabels   []string
)

var taskAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Create a task",
	Example: `  terminalist task add Water the plants --due tomorrow
  terminalist task add "Call mom" --due "friday 6pm" --priority 3 --label family`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, nil)
		defer a.Close()

		b, err := a.findBackend(ctx, taskBackend)
		if err != nil {
			fatalf("%v", err)
		}
		t := &model.Task{
			BackendID: b.ID,
			Content:   strings.Join(args, " "),
			Priority:  taskPriority,
			Labels:    taskLabels,
		}
		if taskProject != "" {
			p, err := findProject(ctx, a.db, b.ID, taskProject)
			if err != nil {
				fatalf("%v", err)
			}
			t.ProjectID = p.ID
		}
		if taskDue != "" {
			due, err := dates.Parse(taskDue, time.Now())
			if err != nil {
				fatalf("%v", err)
			}
			t.DueDate, t.DueDatetime = due.Date, due.Datetime
		}

		created, err := a.engine.CreateTask(ctx, t)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Created %s %s\n", created.ID[:shortID], created.Content)
	},
}

var (
	taskView      string
	taskSearch    string
	taskCompleted bool
	taskFormat    string
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks of a view: inbox, today (with overdue), tomorrow, upcoming,
or all. --project and --search replace the view.`,
	Run: func(cmd *cobra.Command, args []string) {
		checkFormat(taskFormat)
		ctx := context.Background()
		a := openApp(ctx, nil)
		defer a.Close()

		b, err := a.findBackend(ctx, taskBackend)
		if err != nil {
			fatalf("%v", err)
		}
		projects, err := a.db.ListProjects(ctx, b.ID, store.ProjectFilter{})
		if err != nil {
			fatalf("%v", err)
		}

		view := ui.ParseView(taskView)
		switch {
		case taskSearch != "":
			view = ui.View{Kind: ui.ViewSearch, Query: taskSearch}
		case taskProject != "":
			p, err := findProject(ctx, a.db, b.ID, taskProject)
			if err != nil {
				fatalf("%v", err)
			}
			view = ui.View{Kind: ui.ViewProject, ID: p.ID}
		}

		now := time.Now()
		filter, ok := store.TaskFilter{}, true
		if taskView != "all" || taskSearch != "" || taskProject != "" {
			filter, ok = ui.FilterFor(view, projects, now)
		}
		filter.IncludeCompleted = filter.IncludeCompleted || taskCompleted

		var tasks []*model.Task
		if ok {
			if tasks, err = a.db.ListTasks(ctx, b.ID, filter); err != nil {
				fatalf("%v", err)
			}
		}
		if printStructured(taskFormat, tasks) {
			return
		}
		if len(tasks) == 0 {
			fmt.Println("Nothing here.")
			return
		}

		names := make(map[string]string, len(projects))
		for _, p := range projects {
			names[p.ID] = p.Name
		}
		for _, t := range tasks {
			fmt.Println(taskLine(t, names[t.ProjectID], now))
		}
	},
}

func taskLine(t *model.Task, project string, now time.Time) string {
	box := "[ ]"
	if t.IsCompleted {
		box = "[x]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", t.ID[:min(shortID, len(t.ID))], box, t.Content)
	if t.Priority > model.PriorityNormal {
		fmt.Fprintf(&b, " p%d", model.PriorityUrgent+1-t.Priority)
	}
	if due := dates.HumanizeTask(t, now); due != "" {
		fmt.Fprintf(&b, " (%s)", due)
	}
	for _, l := range t.Labels {
		fmt.Fprintf(&b, " @%s", l)
	}
	if project != "" {
		fmt.Fprintf(&b, " #%s", project)
	}
	if t.Pending != model.PendingNone {
		b.WriteString(" *")
	}
	return b.String()
}

// taskAction builds a command that resolves one task and changes it.
func taskAction(use, short, done string, fn func(ctx context.Context, a *app, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			a := openApp(ctx, nil)
			defer a.Close()

			b, err := a.findBackend(ctx, taskBackend)
			if err != nil {
				fatalf("%v", err)
			}
			t, err := findTask(ctx, a.db, b.ID, args[0])
			if err != nil {
				fatalf("%v", err)
			}
			if err := fn(ctx, a, t.ID); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("%s %s\n", done, t.Content)
		},
	}
}

func findProject(ctx context.Context, db *store.DB, backendID, ref string) (*model.Project, error) {
	projects, err := db.ListProjects(ctx, backendID, store.ProjectFilter{})
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.ID == ref || strings.EqualFold(p.Name, ref) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("project %q not found", ref)
}

// findTask resolves a full id or a unique id prefix.
func findTask(ctx context.Context, db *store.DB, backendID, ref string) (*model.Task, error) {
	tasks, err := db.ListTasks(ctx, backendID, store.TaskFilter{IncludeCompleted: true, IncludeDeleted: true})
	if err != nil {
		return nil, err
	}
	var match *model.Task
	for _, t := range tasks {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("task id %q is ambiguous", ref)
			}
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("task %q not found", ref)
	}
	return match, nil
}

func init() {
	taskCmd.PersistentFlags().StringVarP(&taskBackend, "backend", "b", "", "Backend name or id (default: first enabled)")

	taskAddCmd.Flags().StringVarP(&taskProject, "project", "p", "", "Project name or id (default: inbox)")
	taskAddCmd.Flags().StringVarP(&taskDue, "due", "d", "", `Due date: "today", "next week", "friday 6pm", 2025-01-31 ...`)
	taskAddCmd.Flags().IntVar(&taskPriority, "priority", model.PriorityNormal, "Priority from 1 (normal) to 4 (urgent)")
	taskAddCmd.Flags().StringSliceVarP(&taskLabels, "label", "l", nil, "Label name, created if missing (repeatable)")

	taskListCmd.Flags().StringVar(&taskView, "view", "today", "View: inbox, today, tomorrow, upcoming or all")
	taskListCmd.Flags().StringVarP(&taskProject, "project", "p", "", "Only tasks of this project")
	taskListCmd.Flags().StringVarP(&taskSearch, "search", "s", "", "Search content and description")
	taskListCmd.Flags().BoolVar(&taskCompleted, "completed", false, "Include completed tasks")
	taskListCmd.Flags().StringVarP(&taskFormat, "format", "f", formatText, "Output format: text, json or yaml")

	taskCmd.AddCommand(
		taskAddCmd,
		taskListCmd,
		taskAction("done", "Complete a task", "Completed", func(ctx context.Context, a *app, id string) error {
			_, err := a.engine.CompleteTask(ctx, id)
			return err
		}),
		taskAction("reopen", "Reopen a completed task", "Reopened", func(ctx context.Context, a *app, id string) error {
			_, err := a.engine.ReopenTask(ctx, id)
			return err
		}),
		taskAction("rm", "Delete a task and its subtasks", "Deleted", func(ctx context.Context, a *app, id string) error {
			return a.engine.DeleteTask(ctx, id)
		}),
		taskAction("restore", "Undo a delete that has not been pushed yet", "Restored", func(ctx context.Context, a *app, id string) error {
			_, err := a.engine.RestoreTask(ctx, id)
			return err
		}),
	)
	rootCmd.AddCommand(taskCmd)
}
