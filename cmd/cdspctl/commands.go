package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/infra"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/policy"
)

var (
	mappingForce bool
	addVariant   string
	addForce     bool
	checkBinary  string
	journalLimit int
	journalJSON  bool
)

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage the media on/off profile mapping",
}

var mappingInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default mapping file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := policy.NewMappingService(infra.DetectPaths().MappingFile)
		if err := svc.Init(mappingForce); err != nil {
			return reportMappingError(err)
		}
		fmt.Printf("Wrote %s\n", svc.Path())
		return nil
	},
}

var mappingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the mapping file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := policy.NewMappingService(infra.DetectPaths().MappingFile).Show()
		if err != nil {
			return reportMappingError(err)
		}
		fmt.Print(content)
		return nil
	},
}

var mappingValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the mapping file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := policy.NewMappingService(infra.DetectPaths().MappingFile)
		if err := svc.Validate(); err != nil {
			return reportMappingError(err)
		}
		fmt.Printf("%s: OK\n", svc.Path())
		return nil
	},
}

var mappingTestCmd = &cobra.Command{
	Use:       "test <on|off>",
	Short:     "Show the profile selected for a media state",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := policy.NewMappingService(infra.DetectPaths().MappingFile).Test(args[0] == "on")
		if err != nil {
			return reportMappingError(err)
		}
		fmt.Printf("media %s -> %s\n", args[0], sel)
		return nil
	},
}

var profileAddCmd = &cobra.Command{
	Use:   "profile-add <name> <file>",
	Short: "Validate a CamillaDSP config and register it as a profile",
	Long: `Validates <file> with "camilladsp --check" and copies it into the
profiles directory as <name>.yml, or <name>.<variant>.yml with --variant.`,
	Args: cobra.ExactArgs(2),
	RunE: runProfileAdd,
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the systemd unit that runs the daemon",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the systemd unit",
	Args:  cobra.NoArgs,
	RunE:  runServiceInstall,
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the systemd unit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := infra.NewSystemdManager(infra.DetectPaths())
		if err := svc.Uninstall(); err != nil {
			return permissionHint(err)
		}
		fmt.Printf("Removed %s\n", svc.UnitPath())
		return nil
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print events recorded by the daemon",
	Args:  cobra.NoArgs,
	RunE:  runJournal,
}

func init() {
	mappingInitCmd.Flags().BoolVar(&mappingForce, "force", false, "Overwrite an existing mapping")
	mappingCmd.AddCommand(mappingInitCmd, mappingShowCmd, mappingValidateCmd, mappingTestCmd)

	profileAddCmd.Flags().StringVar(&addVariant, "variant", "", "Variant name (normal when empty)")
	profileAddCmd.Flags().BoolVar(&addForce, "force", false, "Replace an existing profile file")
	profileAddCmd.Flags().StringVar(&checkBinary, "camilladsp", infra.DefaultCamillaBinary, "CamillaDSP binary used for --check")

	serviceCmd.AddCommand(serviceInstallCmd, serviceUninstallCmd)

	journalCmd.Flags().IntVar(&journalLimit, "limit", 50, "Show only the last N events (0 for all)")
	journalCmd.Flags().BoolVar(&journalJSON, "json", false, "Output one JSON object per event")

	rootCmd.AddCommand(mappingCmd)
	rootCmd.AddCommand(profileAddCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(journalCmd)
}

func runProfileAdd(cmd *cobra.Command, args []string) error {
	paths := infra.DetectPaths()
	registry := infra.NewProfileRegistry(paths.ProfilesDir, infra.NewBinaryValidator(checkBinary), cliLogger())

	target, err := registry.Add(cmd.Context(), args[0], addVariant, infra.ExpandHome(args[1]), addForce)
	if err != nil {
		return permissionHint(err)
	}
	fmt.Printf("Registered %s\n", target)
	return nil
}

func runServiceInstall(cmd *cobra.Command, args []string) error {
	paths := infra.DetectPaths()
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}

	svc := infra.NewSystemdManager(paths)
	if svc.IsInstalled() && !svc.NeedsUpdate(execPath) {
		fmt.Printf("Already installed: %s\n", svc.UnitPath())
		return nil
	}
	if err := svc.Install(execPath); err != nil {
		return permissionHint(err)
	}

	fmt.Println("\n=== cdsp-autoswitch Installed ===")
	fmt.Printf("Mode: %s\n", paths.Mode)
	fmt.Printf("Binary: %s\n", execPath)
	fmt.Printf("Unit: %s\n", svc.UnitPath())
	fmt.Println("=================================")
	return nil
}

func runJournal(cmd *cobra.Command, args []string) error {
	paths := infra.DetectPaths()
	logger := cliLogger()

	var key []byte
	keys := infra.NewFileKeyProvider(paths.StateDir)
	if keys.KeyExists() {
		k, err := keys.GetKey()
		if err != nil {
			return err
		}
		key = k
	}

	journal, err := infra.OpenJournal(paths.JournalPath, key, logger)
	if err != nil {
		return permissionHint(err)
	}
	defer journal.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	entries, err := journal.Entries(ctx)
	if err != nil {
		return err
	}
	if journalLimit > 0 && len(entries) > journalLimit {
		entries = entries[len(entries)-journalLimit:]
	}

	for _, e := range entries {
		if journalJSON {
			out, err := json.Marshal(struct {
				Seq        int64        `json:"seq"`
				ID         string       `json:"id"`
				Kind       string       `json:"kind"`
				Event      domain.Event `json:"event"`
				RecordedAt string       `json:"recorded_at"`
			}{e.Seq, e.ID, string(e.Event.Kind()), e.Event, e.RecordedAt.Format(time.RFC3339)})
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			continue
		}
		fmt.Printf("%6d  %s  %-22s %+v\n", e.Seq, e.RecordedAt.Format("2006-01-02 15:04:05"), e.Event.Kind(), e.Event)
	}
	return nil
}

// reportMappingError prints a mapping problem and swallows it, so
// mapping commands exit 0. Other errors pass through.
func reportMappingError(err error) error {
	var mappingErr *policy.MappingError
	if errors.As(err, &mappingErr) {
		fmt.Println(mappingErr.Error())
		return nil
	}
	return err
}

// permissionHint points at sudo when a write was refused.
func permissionHint(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w (system mode needs root, try sudo)", err)
	}
	return err
}
