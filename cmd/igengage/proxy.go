package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igengage/pkg/auth"
	"igengage/pkg/config"
	"igengage/pkg/progress"
	"igengage/pkg/proxy"
)

// proxyCmd represents the proxy command
var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manage the residential proxy password",
	Long: `Manage the password of the residential proxy.

The password is looked up, in order, in:
  - proxy.password in the configuration file
  - the system keychain
  - an encrypted file under the user config directory
  - the IGENGAGE_PROXY_PASSWORD environment variable`,
}

var setPasswordCmd = &cobra.Command{
	Use:   "set-password [credential-name]",
	Short: "Store the proxy password securely",
	Long: `Store the proxy password in the system keychain, or in an encrypted
file when no keychain is available. The credential name defaults to
proxy.credential_name from the configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSetPassword,
}

var deletePasswordCmd = &cobra.Command{
	Use:   "delete-password [credential-name]",
	Short: "Remove the stored proxy password",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDeletePassword,
}

var showProxyCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the proxy settings and where the password comes from",
	RunE:  runShowProxy,
}

func init() {
	rootCmd.AddCommand(proxyCmd)
	proxyCmd.AddCommand(setPasswordCmd)
	proxyCmd.AddCommand(deletePasswordCmd)
	proxyCmd.AddCommand(showProxyCmd)
}

func credentialName(args []string) (string, *config.Config, error) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return "", nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), cfg, nil
	}
	return cfg.Proxy.CredentialName, cfg, nil
}

func runSetPassword(cmd *cobra.Command, args []string) error {
	name, _, err := credentialName(args)
	if err != nil {
		return err
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Proxy password for %s: ", progress.Cyan(name))
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	backend, err := manager.Store(&auth.Credential{Name: name, Password: password})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), progress.Green(fmt.Sprintf("Password for %q stored in %s", name, backend)))
	return nil
}

func runDeletePassword(cmd *cobra.Command, args []string) error {
	name, _, err := credentialName(args)
	if err != nil {
		return err
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(name); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), progress.Green(fmt.Sprintf("Password for %q removed", name)))
	return nil
}

func runShowProxy(cmd *cobra.Command, args []string) error {
	name, cfg, err := credentialName(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s: %s\n", progress.Cyan("Mode"), progress.Yellow(cfg.Proxy.Mode))
	switch cfg.Proxy.Mode {
	case config.ProxyModeDirect:
		return nil
	case config.ProxyModeStatic:
		source, err := proxy.NewStatic(cfg.Proxy.StaticURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", progress.Cyan("URL"), proxy.Redact(source.URL))
		return nil
	}

	fmt.Fprintf(out, "%s: %s:%d\n", progress.Cyan("Address"), cfg.Proxy.Hostname, cfg.Proxy.Port)
	fmt.Fprintf(out, "%s: %s\n", progress.Cyan("Groups"), strings.Join(cfg.Proxy.Groups, "+"))
	if cfg.Proxy.Country != "" {
		fmt.Fprintf(out, "%s: %s\n", progress.Cyan("Country"), strings.ToUpper(cfg.Proxy.Country))
	}
	fmt.Fprintf(out, "%s: %s\n", progress.Cyan("Credential"), name)

	password, from := cfg.Proxy.Password, "configuration"
	if password == "" {
		manager, err := auth.NewManager()
		if err != nil {
			return fmt.Errorf("failed to initialize credential manager: %w", err)
		}
		cred, backend, err := manager.Retrieve(name)
		if err != nil {
			fmt.Fprintln(out, progress.Red("Password: not set (run 'igengage proxy set-password')"))
			return nil
		}
		password, from = cred.Password, backend
	}
	fmt.Fprintf(out, "%s: %s (from %s)\n", progress.Cyan("Password"), auth.Mask(password), from)

	source, err := proxy.NewResidential(cfg.Proxy, password)
	if err != nil {
		return err
	}
	example, err := source.NewSessionURL(cmd.Context(), proxy.SessionID("example", 0))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", progress.Cyan("Example session"), proxy.Redact(example))
	return nil
}

// readPassword reads a password without echo when stdin is a terminal
func readPassword(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(password)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
