package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/iot-launcher/pkg/log"
	"github.com/cuemby/iot-launcher/pkg/manifest"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

// backend is the package lookup collaborator iotpm would consult for
// owner/files queries. No RPM (or other) implementation ships here; see
// manifest.Backend.
var backend manifest.Backend = manifest.NoBackend{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "iotpm",
	Short:   "Inspect application-launcher package manifests",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("iotpm version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	cobra.OnInitialize(func() {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		log.Init(log.Config{Level: log.Level(level)})
	})

	rootCmd.AddCommand(validateCmd, inspectCmd, listCmd, ownerCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate <manifest-file>",
	Short: "Validate a .manifest file and print its status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		base := filepath.Base(path)
		declaredPkg := strings.TrimSuffix(base, filepath.Ext(base))
		status, apps, err := manifest.Validate(raw, declaredPkg)
		if err != nil {
			return err
		}
		fmt.Printf("status: %s\n", status)
		for _, a := range apps {
			fmt.Printf("  application %s\n", a.Name)
			fmt.Printf("    execute:    %v\n", a.Execute)
			fmt.Printf("    privileges: %v\n", a.Privileges)
			if a.Desktop != "" {
				fmt.Printf("    desktop:    %s\n", a.Desktop)
			}
		}
		if status != 0 {
			os.Exit(1)
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <package>",
	Short: "Load a package's manifest through the store and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := storeFromFlags(cmd)
		uid, _ := cmd.Flags().GetInt("uid")

		m, err := store.Get(uid, args[0])
		if err != nil {
			return err
		}
		defer m.Unref()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Package string                `json:"package"`
			Status  string                `json:"status"`
			Apps    []manifest.Application `json:"apps"`
		}{Package: args[0], Status: m.Status.String(), Apps: m.Apps})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every package manifest visible to a uid",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := storeFromFlags(cmd)
		uid, _ := cmd.Flags().GetInt("uid")

		pkgs, err := store.Installed(uid)
		if err != nil {
			return err
		}
		for _, p := range pkgs {
			fmt.Printf("%-24s %s\n", p.Package, p.Status)
			for _, a := range p.Apps {
				fmt.Printf("  %s\n", a.Name)
			}
		}
		return nil
	},
}

var ownerCmd = &cobra.Command{
	Use:   "owner <path>",
	Short: "Look up which package installed a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg, err := backend.Owner(args[0])
		if err != nil {
			return err
		}
		fmt.Println(pkg)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{inspectCmd, listCmd} {
		cmd.Flags().String("common-manifest-dir", "/etc/iot-launcher/manifests", "Common manifest directory")
		cmd.Flags().String("user-manifest-dir", "/etc/iot-launcher/manifests.d", "Per-user manifest root directory")
		cmd.Flags().Int("uid", os.Getuid(), "uid to resolve per-user manifests for")
	}
}

func storeFromFlags(cmd *cobra.Command) *manifest.Store {
	commonDir, _ := cmd.Flags().GetString("common-manifest-dir")
	userDir, _ := cmd.Flags().GetString("user-manifest-dir")
	return manifest.NewStore(manifest.Config{
		CommonDir:   commonDir,
		UserRootDir: userDir,
	})
}
