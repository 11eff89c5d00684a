package main

import (
	"errors"
	"os"
	"strings"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"PhotoTransfer/internal/config"
)

var (
	// set with -ldflags at release time
	appVersion   = "dev"
	appBuildTime = "unknown"

	cfgFile    string
	verbose    bool
	jsonOutput bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "phototransfer",
	Short: "Copy photos and videos off attached phones",
	Long: `phototransfer finds Android and iOS phones attached to this computer,
lists their photos and videos and copies them to a local folder.`,
	Version:       appVersion + " (" + appBuildTime + ")",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

func init() {
	log.SetHandler(clihandler.Default)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <user config dir>/photo_transfer/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output machine-readable JSON (one event per line)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colorized output")

	rootCmd.PersistentFlags().String("dest", "", "destination folder")
	rootCmd.PersistentFlags().String("device-type", "", "restrict discovery to 'android' or 'ios'")
	rootCmd.PersistentFlags().StringSlice("backend", nil, "discovery backends to enable (gvfs, mtp, adb, ios, wpd, usb, demo)")
	rootCmd.PersistentFlags().Bool("demo", false, "add a simulated device")
	rootCmd.PersistentFlags().Bool("verify", false, "hash every copy against its source")
	viper.BindPFlag("destination", rootCmd.PersistentFlags().Lookup("dest"))
	viper.BindPFlag("device_type", rootCmd.PersistentFlags().Lookup("device-type"))
	viper.BindPFlag("backends", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("demo", rootCmd.PersistentFlags().Lookup("demo"))
	viper.BindPFlag("verify_copies", rootCmd.PersistentFlags().Lookup("verify"))

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(mediaCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(prereqsCmd)
	rootCmd.AddCommand(destinationCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

func initConfig() {
	viper.SetEnvPrefix("phototransfer")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func setupLogging() {
	if jsonOutput {
		log.SetHandler(jsonhandler.New(os.Stderr))
	} else {
		log.SetHandler(clihandler.New(os.Stderr))
	}
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	if noColor || jsonOutput {
		color.NoColor = true
	}
}

// loadConfig reads the config file and layers environment variables and
// flags on top of it
func loadConfig() (*config.Manager, *config.Config, error) {
	path := cfgFile
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}
	mgr := config.NewManager(path, log.Log)
	cfg := mgr.Get()
	applyOverrides(&cfg, viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return mgr, &cfg, nil
}

// applyOverrides copies every key set by a flag or PHOTOTRANSFER_* variable
// over cfg
func applyOverrides(cfg *config.Config, v *viper.Viper) {
	if v.IsSet("destination") {
		cfg.Destination = v.GetString("destination")
	}
	if v.IsSet("device_type") {
		cfg.DeviceType = v.GetString("device_type")
	}
	if v.IsSet("backends") {
		var names []string
		for _, s := range v.GetStringSlice("backends") {
			for _, name := range strings.Split(s, ",") {
				if name = strings.TrimSpace(name); name != "" {
					names = append(names, name)
				}
			}
		}
		cfg.Backends = names
	}
	if v.IsSet("demo") {
		cfg.Demo = v.GetBool("demo")
	}
	if v.IsSet("verify_copies") {
		cfg.VerifyCopies = v.GetBool("verify_copies")
	}
	if v.IsSet("organize_by_date") {
		cfg.OrganizeByDate = v.GetBool("organize_by_date")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		switch {
		case errors.Is(err, errSilent):
		case jsonOutput:
			emitJSONError(err.Error())
		default:
			log.Error(err.Error())
		}
		os.Exit(1)
	}
}

// emitJSONError outputs an error in JSON format
func emitJSONError(message string) {
	NewJSONReporter(os.Stderr).emit("error", JSONErrorData{Message: message})
}
