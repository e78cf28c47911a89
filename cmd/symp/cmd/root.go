/*
Copyright © 2018-2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/blacktop/symp/internal/colors"
	"github.com/blacktop/symp/internal/commands/symp"
	"github.com/blacktop/symp/internal/config"
	"github.com/blacktop/symp/internal/patches"
	"github.com/caarlos0/ctrlc"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	arches  archFlag
	// Verbose boolean flag for verbose logging
	Verbose bool
	// Color boolean flag for colorized output
	Color bool
	// AppVersion stores the plugin's version
	AppVersion string
	// AppBuildTime stores the plugin's build time
	AppBuildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "symp [options] -- <symbol> <file>",
	Short: "Find (and patch) symbols in Mach-O files",
	Long: heredoc.Doc(`
		Find the file offset of a symbol in every architecture of a Mach-O file,
		and optionally patch it.

		<symbol> is one of:
		  - a symbol name as it appears in the binary      '_main'
		  - a vm address in hex                            '0x100003f20'
		  - an Objective-C method                          '-[NSString length]'`),
	Example: heredoc.Doc(`
		# Print the file offset of _main in every slice
		❯ symp -- _main /usr/bin/yes
		0x3f20
		0x8f20
		2 matches found

		# Make an Objective-C class method return 1 in the arm64 slice only
		❯ symp -a arm64 -p ret1 -- '+[Foo isEnabled]' ./Foo

		# Write raw bytes at a vm address and show the result
		❯ symp -x 1f2003d5 --dump -- 0x100003f20 ./Foo`),
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	PreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		} else if viper.GetBool("symp.quiet") {
			log.SetLevel(log.ErrorLevel)
		}
		if cmd.Flags().Changed("color") || viper.IsSet("color") {
			color := viper.GetBool("color")
			colors.Init(&color)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.LoadConfig(args)
		if err != nil {
			return err
		}
		if err := ctrlc.Default.Run(cmd.Context(), func() error {
			return symp.Run(conf, cmd.OutOrStdout())
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("Exiting...")
			}
			return err
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if AppVersion != "" {
		rootCmd.Version = fmt.Sprintf("%s, BuildTime: %s", AppVersion, AppBuildTime)
	}
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, symp.ErrNoMatches) {
			log.Error(err.Error())
		}
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihander.Default)

	cobra.OnInitialize(initConfig)

	// Flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/symp/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&Color, "color", false, "colorize output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
	viper.BindEnv("color", "CLICOLOR")

	rootCmd.Flags().VarP(&arches, "arch", "a", "Only search `ARCH` (x86_64, arm64), can be repeated")
	rootCmd.Flags().StringP("patch", "p", "", fmt.Sprintf("Patch the symbol with a builtin patch (%s)", strings.Join(patches.Names(), ", ")))
	rootCmd.Flags().StringP("binary", "b", "", "Patch the symbol with the contents of a file")
	rootCmd.Flags().StringP("hex", "x", "", "Patch the symbol with hex bytes (e.g. 'c0035fd6')")
	rootCmd.Flags().BoolP("quiet", "q", false, "Only print matches and errors")
	rootCmd.Flags().BoolP("interactive", "i", false, "Confirm each patch")
	rootCmd.Flags().Bool("dump", false, "Hexdump the bytes at each match")
	rootCmd.Flags().IntP("disass", "d", 0, "Disassemble N instructions at each match")
	rootCmd.MarkFlagsMutuallyExclusive("patch", "binary", "hex")
	rootCmd.MarkFlagFilename("binary")
	rootCmd.RegisterFlagCompletionFunc("arch", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"x86_64", "arm64"}, cobra.ShellCompDirectiveNoFileComp
	})
	rootCmd.RegisterFlagCompletionFunc("patch", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return patches.Names(), cobra.ShellCompDirectiveNoFileComp
	})
	viper.BindPFlag("symp.arch", rootCmd.Flags().Lookup("arch"))
	viper.BindPFlag("symp.patch", rootCmd.Flags().Lookup("patch"))
	viper.BindPFlag("symp.binary", rootCmd.Flags().Lookup("binary"))
	viper.BindPFlag("symp.hex", rootCmd.Flags().Lookup("hex"))
	viper.BindPFlag("symp.quiet", rootCmd.Flags().Lookup("quiet"))
	viper.BindPFlag("symp.interactive", rootCmd.Flags().Lookup("interactive"))
	viper.BindPFlag("symp.dump", rootCmd.Flags().Lookup("dump"))
	viper.BindPFlag("symp.disass", rootCmd.Flags().Lookup("disass"))
	// Settings
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(filepath.Join(home, ".config", "symp"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("symp")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}
