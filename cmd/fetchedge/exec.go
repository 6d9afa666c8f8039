package main

import (
	"fmt"
	"net/http/httptest"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fetchedge/fetchedge"
	"github.com/fetchedge/fetchedge/internal/core"
)

func execCmd() *cobra.Command {
	var scriptMode string
	var fsRoot string

	cmd := &cobra.Command{
		Use:   "exec <js_path>",
		Short: "Run a worker script once against a synthetic GET / request and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading script %s: %w", args[0], err)
			}

			mode := core.ModeScript
			if scriptMode == "module" {
				mode = core.ModeModule
			}

			dispatcher, err := fetchedge.NewDispatcher(
				fetchedge.UserCode{Source: string(source), Mode: mode},
				fetchedge.DispatcherConfig{
					MaxWorkers: 1,
					Host:       core.HostConfig{FSRoot: fsRoot},
				},
				nil,
			)
			if err != nil {
				return err
			}
			defer dispatcher.Shutdown(5 * time.Second)

			req := httptest.NewRequest("GET", "/", nil)
			resp, err := dispatcher.Handle(req.RemoteAddr, core.RequestHead{
				Method: req.Method,
				URL:    req.URL.String(),
				Header: map[string][]string(req.Header),
			}, nil)
			if err != nil {
				fmt.Fprintln(os.Stdout, err)
				os.Exit(1)
			}

			fmt.Printf("HTTP %d\n", resp.Status)
			for name, values := range resp.Header {
				for _, v := range values {
					fmt.Printf("%s: %s\n", name, v)
				}
			}
			fmt.Println()
			os.Stdout.Write(resp.Body)
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&scriptMode, "script", "script", "source mode: \"script\" or \"module\"")
	cmd.Flags().StringVar(&fsRoot, "fs-root", "", "sandbox root directory for the fs standard module")

	return cmd
}
