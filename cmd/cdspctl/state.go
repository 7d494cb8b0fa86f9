package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/daemon"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/infra"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/policy"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/usecase"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mode, selected profile and service state",
	RunE:  runStatus,
}

var autoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Let media activity choose the profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateState(map[string]string{"mode": string(domain.ModeAuto)})
	},
}

var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Keep the profile selected with 'profile' and 'variant'",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateState(map[string]string{"mode": string(domain.ModeManual)})
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile <name>",
	Short: "Select the manual-mode profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateState(map[string]string{"profile": args[0]})
	},
}

var variantCmd = &cobra.Command{
	Use:   "variant <name>",
	Short: "Select the manual-mode variant (normal, night, ...)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateState(map[string]string{"variant": args[0]})
	},
}

var experimentalCmd = &cobra.Command{
	Use:   "experimental",
	Short: "Override every profile with one YAML file while testing",
}

var experimentalOnCmd = &cobra.Command{
	Use:   "on <file>",
	Short: "Apply <file> instead of the selected profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(infra.ExpandHome(args[0]))
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("experimental file: %w", err)
		}
		return updateState(map[string]string{"experimental_yml": path})
	},
}

var experimentalOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Return to the selected profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateState(map[string]string{"experimental_yml": ""})
	},
}

func init() {
	experimentalCmd.AddCommand(experimentalOnCmd, experimentalOffCmd)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(autoCmd)
	rootCmd.AddCommand(manualCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(variantCmd)
	rootCmd.AddCommand(experimentalCmd)
}

func updateState(fields map[string]string) error {
	paths := infra.DetectPaths()
	store := infra.NewFileStateStore(paths.StateFile, cliLogger())

	state, err := store.Update(fields)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("cannot write %s (try sudo): %w", paths.StateFile, err)
		}
		return err
	}
	printState(state)
	return nil
}

func printState(state domain.RuntimeState) {
	fmt.Printf("Mode:     %s\n", state.Mode)
	fmt.Printf("Profile:  %s\n", state.Profile)
	fmt.Printf("Variant:  %s\n", state.Variant)
	if state.ExperimentalYML != "" {
		fmt.Printf("Experimental: %s\n", state.ExperimentalYML)
	}
	fmt.Printf("Status:   %s\n", state.Status)
}

func runStatus(cmd *cobra.Command, args []string) error {
	paths := infra.DetectPaths()
	logger := cliLogger()
	store := infra.NewFileStateStore(paths.StateFile, logger)
	state := store.Load()

	fmt.Println("\n=== cdsp-autoswitch Status ===")
	printState(state)

	mapping := policy.LoadMappingWithFallback(paths.MappingFile, logger)
	fmt.Printf("\nMapping:  %s\n", mapping)

	resolver := infra.NewYAMLResolver(paths.ProfilesDir, store)
	var decision domain.PolicyDecision
	if state.Mode == domain.ModeManual {
		decision = policy.ManualDecision(state)
	} else {
		cfg, err := daemon.ConfigFromEnv(daemon.DefaultConfig())
		if err != nil {
			return err
		}
		probe := infra.NewProcessProbe(infra.NewProcessManager(), cfg.MediaProcesses)
		decision = policy.Decide(mapping, probe.MediaActive())
	}
	target := resolver.Resolve(usecase.BuildIntent(decision))
	fmt.Printf("Target:   %s (%s)\n", target, decision.Reason)
	if r := infra.NewYAMLValidator().Validate(target); !r.Valid {
		fmt.Printf("          INVALID: %s\n", r.Reason)
	}

	fmt.Printf("\nExecution mode: %s\n", paths.Mode)
	fmt.Printf("Config dir: %s\n", paths.ConfigDir)
	fmt.Printf("State file: %s\n", paths.StateFile)

	svc := infra.NewSystemdManager(paths)
	if svc.IsInstalled() {
		fmt.Printf("Service: installed (%s)\n", svc.UnitPath())
	} else {
		fmt.Println("Service: not installed")
	}
	fmt.Println("==============================")
	return nil
}
