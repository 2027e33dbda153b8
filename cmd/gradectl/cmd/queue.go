package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the priority tier depths",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(viper.GetString("url"))
		resp, err := client.Queue()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		for _, tier := range resp.Tiers {
			cmd.Printf("%-12s waiting=%d running=%d/%d\n",
				tier.Name, tier.Waiting, tier.Running, tier.Capacity)
		}
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
}
