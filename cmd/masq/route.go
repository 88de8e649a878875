package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/getmasq/masq/internal/api"
	"github.com/getmasq/masq/internal/models"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Manage proxy routes",
	Long:  `List, create, and delete the routes the reverse proxy consults per connection.`,
}

var routeListFlags struct {
	clientConfig
}

var routeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List routes in match order",
	RunE:  runRouteList,
}

var routeAddFlags struct {
	clientConfig
	id        string
	direction string
	endpoint  string
	rulesJSON string
}

var routeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a route",
	Long: `Create a route. New routes rank after existing ones, so the first
route created is the first match.`,
	RunE: runRouteAdd,
}

var routeDeleteFlags struct {
	clientConfig
}

var routeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a route",
	Args:  cobra.ExactArgs(1),
	RunE:  runRouteDelete,
}

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.AddCommand(routeListCmd)
	routeCmd.AddCommand(routeAddCmd)
	routeCmd.AddCommand(routeDeleteCmd)

	addClientFlags(routeListCmd, &routeListFlags.clientConfig)

	addClientFlags(routeAddCmd, &routeAddFlags.clientConfig)
	routeAddCmd.Flags().StringVar(&routeAddFlags.id, "id", "", "route id (generated when empty)")
	routeAddCmd.Flags().StringVar(&routeAddFlags.direction, "direction", "", "traffic direction (INBOUND|OUTBOUND, default INBOUND)")
	routeAddCmd.Flags().StringVar(&routeAddFlags.endpoint, "endpoint", "", "destination override endpoint (host:port)")
	routeAddCmd.Flags().StringVar(&routeAddFlags.rulesJSON, "rules", "", "rewrite rules as a JSON array")

	addClientFlags(routeDeleteCmd, &routeDeleteFlags.clientConfig)
}

func runRouteList(cmd *cobra.Command, args []string) error {
	c, err := routeListFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.ListRoutes()
	if err != nil {
		return err
	}

	if len(resp.Routes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No routes found.")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%-36s  %-8s  %-22s  %-5s  %-5s  %s\n",
		"ID", "DIR", "OVERRIDE", "RANK", "RULES", "CREATED")
	for _, r := range resp.Routes {
		override := "-"
		if r.DestinationOverrideEndpoint != nil {
			override = *r.DestinationOverrideEndpoint
		}
		createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
		fmt.Fprintf(cmd.OutOrStdout(), "%-36s  %-8s  %-22s  %-5d  %-5d  %s\n",
			r.ID, r.Direction, override, r.Rank, len(r.Rules),
			createdAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runRouteAdd(cmd *cobra.Command, args []string) error {
	c, err := routeAddFlags.newClient()
	if err != nil {
		return err
	}

	spec := api.RouteSpec{
		ID:                          routeAddFlags.id,
		Direction:                   routeAddFlags.direction,
		DestinationOverrideEndpoint: routeAddFlags.endpoint,
	}
	if routeAddFlags.rulesJSON != "" {
		var rules []models.RewriteRule
		if err := json.Unmarshal([]byte(routeAddFlags.rulesJSON), &rules); err != nil {
			return errors.Wrap(err, "parse --rules")
		}
		spec.Rules = rules
	}

	resp, err := c.CreateRoute(spec)
	if err != nil {
		return err
	}
	return printJSON(cmd, resp)
}

func runRouteDelete(cmd *cobra.Command, args []string) error {
	c, err := routeDeleteFlags.newClient()
	if err != nil {
		return err
	}

	id := args[0]
	if _, err := c.DeleteRoute(id); err != nil {
		return err
	}

	result := struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}{
		ID:      id,
		Deleted: true,
	}
	return printJSON(cmd, result)
}
