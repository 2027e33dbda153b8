package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gradectl",
	Short: "Gradectl is a command line tool for operating the gradeplane dispatcher",
	Long: `gradectl is the command-line interface for the gradeplane grading dispatcher.

The dispatcher coordinates grading containers for student submissions and
gates deliverable access on accumulated grades. gradectl talks to its HTTP
API.

Common workflows:

  Provision d0 for a student:
    gradectl provision d0 alice

  Form a d1 pair:
    gradectl provision d1 bob carol

  Check a student's progression:
    gradectl status alice

  Inspect the priority tiers:
    gradectl queue

Configuration:
  Set the API endpoint via a flag, environment variable or config file:
    GRADEPLANE_URL    API endpoint (default: http://localhost:6161)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".gradectl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".gradectl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "GRADEPLANE_VARNAME"
	viper.SetEnvPrefix("GRADEPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gradectl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "Gradeplane dispatcher URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("secret", "s", "", "Webhook secret for privileged calls")
	viper.BindPFlag("secret", rootCmd.PersistentFlags().Lookup("secret"))
}
