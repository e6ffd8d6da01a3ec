package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/levertask/internal/hardware"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports that could host a lever or pump",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listPorts(cmd, hardware.NewDevicePortScanner())
		},
	}
}

func listPorts(cmd *cobra.Command, scanner hardware.PortScanner) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	ports, err := scanner.EnumeratePorts()
	if err != nil {
		return fmt.Errorf("port scan failed: %w", err)
	}

	if jsonOut {
		if ports == nil {
			ports = []hardware.PortDescriptor{}
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(ports)
	}

	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found.")
		return nil
	}
	for _, p := range ports {
		if p.Description != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", p.Port, p.Description)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), p.Port)
		}
	}
	return nil
}
