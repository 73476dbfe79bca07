package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/wingterm/internal/transport"
)

func testCmd() *cobra.Command {
	var hostFlag, userFlag string
	var portFlag int

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check that the backend is reachable and accepts your credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = hostFlag
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = portFlag
			}
			if cmd.Flags().Changed("user") {
				cfg.Server.Username = userFlag
			}

			targets, err := cfg.Connection().Targets()
			if err != nil {
				return err
			}
			res, err := transport.NewClient(targets).Test(cmd.Context())
			if err != nil {
				return err
			}
			if !res.OK {
				return fmt.Errorf("backend at %s refused: %s", targets.RequestURL, res.Message)
			}
			fmt.Printf("ok  %s", targets.RequestURL)
			if res.Message != "" {
				fmt.Printf("  %s", res.Message)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&hostFlag, "host", "", "backend host")
	cmd.Flags().IntVar(&portFlag, "port", 0, "backend port")
	cmd.Flags().StringVar(&userFlag, "user", "", "username")
	return cmd
}
