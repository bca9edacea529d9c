package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ahk4918/microlink/cmd/microlink/app/options"
	"github.com/ahk4918/microlink/internal/controller"
	"github.com/ahk4918/microlink/pkg/log"
)

const (
	commandName = "microlink"
	commandDesc = `Microlink connects a host to a BBC micro:bit over USB serial or
Bluetooth LE, keeps the interpreter firmware on the device up to date,
and bridges an interactive command prompt to the device's line protocol.

On startup it checks the published firmware version against the one on
the device, flashes a newer image onto the device's mass-storage volume
when needed, and then connects over the first transport that answers:
USB serial first, Bluetooth as the fallback.`
)

// NewApp assembles the microlink root command.
func NewApp() *cobra.Command {
	opts := options.NewOptions()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           commandName,
		Short:         "Connect to and manage a micro:bit device",
		Long:          commandDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cfgFile)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "Path to a configuration file.")
	opts.AddFlags(cmd.Flags())

	return cmd
}

func run(parent context.Context, opts *options.Options, cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
		if err := viper.Unmarshal(opts); err != nil {
			return fmt.Errorf("applying config file: %w", err)
		}
	}

	if err := opts.Validate(); err != nil {
		return err
	}

	log.Init(opts.Log)

	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return controller.New(cfg, os.Stdin, os.Stdout).Run(ctx)
}
