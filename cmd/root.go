package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is an explicit config file replacing the layered lookup.
	configPath string
	// debug forces debug logging.
	debug bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kernelctl",
	Short: "Resolve and start capability-addressed services",
	Long: `kernelctl runs a capability kernel: subsystems declare the capabilities
their resources provide and require in YAML manifests, and the kernel resolves
every requirement against the capability registry, orders the services by
dependency and starts them, stopping dependents first when a provider goes away.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. unresolved capabilities, invalid manifests)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "kernelctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCapabilityCmd())
	rootCmd.AddCommand(newPlanCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is layered ~/.config/kernelctl and .kernelctl)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
