package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ngmaloney/dive-relay/internal/alerts"
)

var (
	checkLat, checkLon float64

	testRegion    string
	testPlaceType string
	testAccidents int
	testSend      bool
)

var checkCmd = &cobra.Command{
	Use:   "check <job>",
	Short: "Run one alert check now and print the report",
	Long: `Runs a scheduled check once, the way the worker would. Without --lat/--lon
the check uses the default location only where the job allows it.

Jobs: weather, tide, typhoon, slope, accident`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.locate(checkLat, checkLon, cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon")); err != nil {
			return err
		}

		rep, err := a.scheduler.RunOnce(cmd.Context(), args[0])
		if printErr := printJSON(cmd.OutOrStdout(), rep); printErr != nil {
			return printErr
		}
		return err
	},
}

var testAlertCmd = &cobra.Command{
	Use:   "test-alert <kind>",
	Short: "Send a fixed test payload for one alert kind",
	Long: `Sends the test payload of an alert kind to the connected watches.
Only watches connected to this process receive it; use the HTTP API
(POST /api/v1/alerts/{kind}/test) to reach watches of a running server.

Accident tests are dry runs unless --send is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := strings.ToLower(args[0])

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		checker, ok := a.registry[kind]
		if !ok {
			return fmt.Errorf("unknown alert kind %q (want one of %s)", kind, strings.Join(a.registry.Kinds(), ", "))
		}

		var res alerts.Result
		if kind == alerts.KindAccident {
			dryRun := !testSend
			res, err = a.accident.SendTestWith(cmd.Context(), alerts.AccidentTestOptions{
				Region:    testRegion,
				PlaceType: testPlaceType,
				Accidents: testAccidents,
				DryRun:    &dryRun,
			})
		} else {
			res, err = checker.SendTest(cmd.Context())
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	checkCmd.Flags().Float64Var(&checkLat, "lat", 0, "Latitude to check at")
	checkCmd.Flags().Float64Var(&checkLon, "lon", 0, "Longitude to check at")

	testAlertCmd.Flags().StringVar(&testRegion, "region", "", "Accident test region")
	testAlertCmd.Flags().StringVar(&testPlaceType, "place-type", "", "Accident test place type")
	testAlertCmd.Flags().IntVar(&testAccidents, "accidents", 0, "Accident test count")
	testAlertCmd.Flags().BoolVar(&testSend, "send", false, "Actually send the accident test instead of a dry run")
}
