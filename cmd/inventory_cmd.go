package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect registered UPS devices",
	}
	var jsonOutput bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered devices",
		Run: func(cmd *cobra.Command, args []string) {
			stores := mustOpenStores(mustLoadConfig())
			defer stores.Close()

			devices, err := stores.Devices.ListDevices(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			printDevices(devices, jsonOutput)
		},
	}
	list.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.AddCommand(list)
	return cmd
}

func groupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Inspect subscribed Telegram groups",
	}
	var jsonOutput bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List groups and their subscriptions",
		Run: func(cmd *cobra.Command, args []string) {
			stores := mustOpenStores(mustLoadConfig())
			defer stores.Close()

			groups, err := stores.Groups.ListGroups(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			printGroups(groups, jsonOutput)
		},
	}
	list.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.AddCommand(list)
	return cmd
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the notification log",
	}
	var (
		jsonOutput bool
		limit      int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent events",
		Run: func(cmd *cobra.Command, args []string) {
			stores := mustOpenStores(mustLoadConfig())
			defer stores.Close()

			recs, err := stores.Events.LastEvents(context.Background(), limit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			printEvents(recs, jsonOutput)
		},
	}
	list.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	cmd.AddCommand(list)
	return cmd
}

func printDevices(devices []store.Device, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(devices, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(devices) == 0 {
		fmt.Println("No devices registered.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tLOCATION\tADDED\n")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Location, d.CreatedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func printGroups(groups []store.Group, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(groups, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(groups) == 0 {
		fmt.Println("No groups subscribed.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CHAT ID\tDEVICES\tSINCE\n")
	for _, g := range groups {
		devices := strings.Join(g.DeviceIDs, ",")
		if devices == "" {
			devices = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", g.ChatID, devices, g.CreatedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func printEvents(recs []store.EventRecord, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(recs, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(recs) == 0 {
		fmt.Println("No events recorded.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TIME\tDEVICE\tSEVERITY\tMESSAGE\n")
	for _, r := range recs {
		msg := []rune(strings.ReplaceAll(r.Message, "\n", " | "))
		if len(msg) > 80 {
			msg = append(msg[:77], []rune("...")...)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.OccurredAt.Local().Format(time.DateTime), r.DeviceID, r.Severity, string(msg))
	}
	tw.Flush()
}
