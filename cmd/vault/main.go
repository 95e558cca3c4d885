package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/atotto/clipboard"
	"github.com/org/passvault/internal/crypto"
	"github.com/org/passvault/pkg/models"
	"github.com/spf13/cobra"
)

var rootCmd = newRootCmd()

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vault",
		Short:         "passvault CLI",
		Long:          "A CLI for storing and retrieving encrypted credentials in a passvault server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(settings, configPath(), cmd.Flags())
		},
	}

	root.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
	root.PersistentFlags().String("address", defaultAddress, "Server address (env PASSVAULT_ADDRESS)")
	root.PersistentFlags().String("token", "", "API token (env PASSVAULT_TOKEN)")

	root.AddCommand(
		addCmd(),
		listCmd(),
		searchCmd(),
		showCmd(),
		revealCmd(),
		copyCmd(),
		updateCmd(),
		rmCmd(),
		statusCmd(),
		keygenCmd(),
		loginCmd(),
	)
	return root
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid credential id: %q", s)
	}
	return id, nil
}

// --- credentials ---

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <service> <username>",
		Short: "Store a new credential",
		Long:  "Store a new credential. The password is prompted without echo unless --password is given.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				var err error
				if password, err = readNewPassword(); err != nil {
					return err
				}
			}
			id, err := newClient().Add(args[0], args[1], password)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				printJSON(cmd.OutOrStdout(), map[string]any{"id": id})
				return nil
			}
			printSuccess(fmt.Sprintf("Stored credential %d for %s", id, args[0]))
			return nil
		},
	}
	cmd.Flags().String("password", "", "Password (insecure: visible in shell history)")
	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List credentials, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, _ := cmd.Flags().GetString("search")
			list, err := newClient().List(query)
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringP("search", "s", "", "Only show services containing this text")
	return cmd
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find credentials by service name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newClient().List(args[0])
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), list)
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a credential without its password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := newClient().Get(id)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func revealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reveal <id>",
		Short: "Print the decrypted password of a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pw, err := newClient().Reveal(id)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				printJSON(cmd.OutOrStdout(), map[string]any{"password": pw})
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), pw)
			return nil
		},
	}
}

func copyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id>",
		Short: "Copy the decrypted password of a credential to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pw, err := newClient().Reveal(id)
			if err != nil {
				return err
			}
			if err := clipboard.WriteAll(pw); err != nil {
				return fmt.Errorf("copying to clipboard: %w", err)
			}
			printSuccess(fmt.Sprintf("Password for credential %d copied to clipboard", id))
			return nil
		},
	}
}

func updateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the service, username or password of a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var patch models.Patch
			if cmd.Flags().Changed("service") {
				v, _ := cmd.Flags().GetString("service")
				patch.Service = &v
			}
			if cmd.Flags().Changed("username") {
				v, _ := cmd.Flags().GetString("username")
				patch.Username = &v
			}
			if cmd.Flags().Changed("password") {
				v, _ := cmd.Flags().GetString("password")
				patch.Password = &v
			} else if prompt, _ := cmd.Flags().GetBool("new-password"); prompt {
				v, err := readNewPassword()
				if err != nil {
					return err
				}
				patch.Password = &v
			}
			if patch.IsEmpty() {
				return fmt.Errorf("nothing to update: pass --service, --username, --password or --new-password")
			}

			s, err := newClient().Update(id, patch)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().String("service", "", "New service name")
	cmd.Flags().String("username", "", "New username")
	cmd.Flags().String("password", "", "New password (insecure: visible in shell history)")
	cmd.Flags().Bool("new-password", false, "Prompt for a new password")
	return cmd
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Permanently delete a credential",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := newClient().Remove(id); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Deleted credential %d", id))
			return nil
		},
	}
}

// --- server / local ---

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().Health()
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random master key for the server",
		Long:  "Print a random base64 master key suitable for PASSVAULT_MASTER_KEY or master_key_file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.EncodeKey(key))
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save the server address and API token to the CLI config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			address := settings.GetString("address")
			token := settings.GetString("token")
			if !cmd.Flags().Changed("token") && os.Getenv("PASSVAULT_TOKEN") == "" {
				var err error
				if token, err = readSecret("API token (empty for none): "); err != nil {
					return err
				}
			}

			client := NewClient(address, token, settings.GetString("tls_ca_cert"))
			if _, err := client.List(""); err != nil {
				return fmt.Errorf("checking credentials against %s: %w", address, err)
			}
			if err := saveConfig(settings, configPath(), address, token); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			printSuccess("Logged in to " + address)
			return nil
		},
	}
}
