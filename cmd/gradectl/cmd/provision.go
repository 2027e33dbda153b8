package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var provisionCmd = &cobra.Command{
	Use:   "provision <deliverable> <person> [person]",
	Short: "Provision a deliverable for one or two students",
	Long: `Provision a deliverable: create the team, the repository and the grade
placeholders, gated by the students' progression.

Examples:
  gradectl provision d0 alice
  gradectl provision d1 alice
  gradectl provision d1 bob carol`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		delivID := args[0]
		personIDs := args[1:]

		client := NewClient(viper.GetString("url"))
		payload, err := client.Provision(delivID, personIDs)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		if payload.Failure != nil {
			cmd.Printf("Rejected: %s\n", payload.Failure.Message)
			return
		}

		cmd.Printf("Provisioned %s for %s\n", delivID, personIDs[0])
		cmd.Printf("  Status: %s\n", payload.Success.Status)
		if payload.Success.D0Repo != "" {
			cmd.Printf("  D0 repo: %s\n", payload.Success.D0Repo)
		}
		if payload.Success.D1Repo != "" {
			cmd.Printf("  D1 repo: %s\n", payload.Success.D1Repo)
		}
		if payload.Success.TeamURL != "" {
			cmd.Printf("  Team: %s\n", payload.Success.TeamURL)
		}
	},
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}
