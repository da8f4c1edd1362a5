package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/remote"
)

var backendCmd = &cobra.Command{
	Use:     "backend",
	GroupID: "setup",
	Short:   "Manage remote accounts",
	Long: `Manage the remote accounts terminalist syncs with.

Each backend has a type (see 'backend add --help'), a name and opaque
credentials understood only by that type. Disabled backends keep their
cached data but are skipped by sync and hidden from the interface.`,
}

var (
	addType        string
	addName        string
	addToken       string
	addCredentials string
	addSettings    string
)

var backendAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a backend",
	Long: `Add a backend and enable it.

Credentials per type:
  todoist      an API token (--token)
  googletasks  a JSON file with "oauth_client" and "token" (--credentials)
  memory       any account name (--token); data lives in this process only

Run without flags in a terminal to fill in a form instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		if addType == "" && term.IsTerminal(int(os.Stdin.Fd())) {
			if err := backendForm(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return
				}
				fatalf("%v", err)
			}
		}
		if !remote.IsRegistered(addType) {
			fatalf("unknown backend type %q (known: %s)", addType, strings.Join(remote.RegisteredTypes(), ", "))
		}
		if addName == "" {
			addName = addType
		}

		creds := []byte(addToken)
		if addCredentials != "" {
			data, err := os.ReadFile(addCredentials)
			if err != nil {
				fatalf("failed to read credentials: %v", err)
			}
			creds = data
		}
		var settings []byte
		if addSettings != "" {
			if !json.Valid([]byte(addSettings)) {
				fatalf("--settings must be a JSON object")
			}
			settings = []byte(addSettings)
		}

		ctx := context.Background()
		b := &model.Backend{Type: addType, Name: addName, Enabled: true, Credentials: creds, Settings: settings}
		// Building the client checks the credentials before anything is stored.
		if _, err := remote.New(ctx, b); err != nil {
			fatalf("%v", err)
		}

		a := openApp(ctx, nil)
		defer a.Close()
		created, err := a.db.CreateBackend(ctx, b)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Added %s backend %q (%s)\n", created.Type, created.Name, created.ID)
		fmt.Println("Run 'terminalist sync' to fetch its data.")
	},
}

// backendForm asks for the fields of "backend add".
func backendForm() error {
	types := remote.RegisteredTypes()
	if len(types) > 0 {
		addType = types[0]
	}
	if i := slices.Index(types, "todoist"); i >= 0 {
		addType = types[i]
	}

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Backend type").
				Options(huh.NewOptions(types...)...).
				Value(&addType),
			huh.NewInput().
				Title("Name").
				Placeholder("Personal").
				Value(&addName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	if addType == "googletasks" {
		return huh.NewInput().
			Title("Credentials file").
			Description(`JSON with "oauth_client" and "token"`).
			Value(&addCredentials).
			Run()
	}
	return huh.NewInput().
		Title("API token").
		EchoMode(huh.EchoModePassword).
		Value(&addToken).
		Run()
}

var backendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backends",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, nil)
		defer a.Close()

		backends, err := a.db.ListBackends(ctx, false)
		if err != nil {
			fatalf("%v", err)
		}
		if len(backends) == 0 {
			fmt.Println("No backends. Add one with 'terminalist backend add'.")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tSTATE\tID")
		for _, b := range backends {
			state := "enabled"
			if !b.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Name, b.Type, state, b.ID)
		}
		w.Flush()
	},
}

var backendRemoveCmd = &cobra.Command{
	Use:   "remove <name|id>",
	Short: "Remove a backend and its cached data",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, nil)
		defer a.Close()

		b, err := a.findBackend(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if err := a.db.DeleteBackend(ctx, b.ID); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Removed backend %q\n", b.Name)
	},
}

func setEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name|id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			a := openApp(ctx, nil)
			defer a.Close()

			b, err := a.findBackend(ctx, args[0])
			if err != nil {
				fatalf("%v", err)
			}
			if err := a.db.SetBackendEnabled(ctx, b.ID, enabled); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("Backend %q %sd\n", b.Name, use)
		},
	}
}

func init() {
	backendAddCmd.Flags().StringVarP(&addType, "type", "t", "", "Backend type: "+strings.Join(remote.RegisteredTypes(), ", "))
	backendAddCmd.Flags().StringVarP(&addName, "name", "n", "", "Display name (default: the type)")
	backendAddCmd.Flags().StringVar(&addToken, "token", "", "API token or account name")
	backendAddCmd.Flags().StringVar(&addCredentials, "credentials", "", "Read credentials from a file")
	backendAddCmd.Flags().StringVar(&addSettings, "settings", "", `Type-specific JSON settings, e.g. {"base_url": "..."}`)

	backendCmd.AddCommand(
		backendAddCmd,
		backendListCmd,
		backendRemoveCmd,
		setEnabledCmd("enable", "Enable a backend", true),
		setEnabledCmd("disable", "Disable a backend", false),
	)
	rootCmd.AddCommand(backendCmd)
}
