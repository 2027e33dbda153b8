package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status <person>",
	Short: "Show a student's progression status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(viper.GetString("url"))
		payload, err := client.Status(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		if payload.Failure != nil {
			cmd.Printf("Rejected: %s\n", payload.Failure.Message)
			return
		}

		cmd.Printf("%s: %s\n", payload.Success.PersonID, payload.Success.Status)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
