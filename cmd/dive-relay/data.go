package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngmaloney/dive-relay/internal/coastal"
	"github.com/ngmaloney/dive-relay/internal/database"
	"github.com/ngmaloney/dive-relay/internal/heartrate"
)

var (
	accidentRegion    string
	accidentPlaceType string
	accidentTop       int

	slopeRegion      string
	slopeMinGradient float64

	heartRateLimit  int
	heartRateFollow bool
)

var accidentsCmd = &cobra.Command{
	Use:   "accidents",
	Short: "Query the coastal accident statistics",
	Example: `  dive-relay accidents --region 삼척시
  dive-relay accidents --region 삼척시 --top 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := coastal.NewAccidentRepo(cfg.AccidentCSV, logger)
		if err := repo.EnsureLoaded(); err != nil {
			return err
		}
		if cmd.Flags().Changed("top") {
			return printJSON(cmd.OutOrStdout(), repo.TopByType(accidentRegion, accidentTop))
		}
		return printJSON(cmd.OutOrStdout(), repo.QueryByRegion(accidentRegion, accidentPlaceType))
	},
}

var slopesCmd = &cobra.Command{
	Use:   "slopes",
	Short: "Query the coastal slope survey",
	Example: `  dive-relay slopes --region 삼척시
  dive-relay slopes --min-gradient 40`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := coastal.NewSlopeRepo(cfg.SlopeCSV, logger)
		if err := repo.EnsureLoaded(); err != nil {
			return err
		}
		if cmd.Flags().Changed("min-gradient") {
			return printJSON(cmd.OutOrStdout(), repo.QueryByGradient(slopeMinGradient))
		}
		return printJSON(cmd.OutOrStdout(), repo.QueryByRegion(slopeRegion))
	},
}

var heartRateCmd = &cobra.Command{
	Use:   "heart-rate",
	Short: "Show stored heart-rate readings or follow live ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		if heartRateFollow {
			return followHeartRate(cmd)
		}

		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		readings, err := heartrate.NewSQLiteRecorder(db).Recent(cmd.Context(), heartRateLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), readings)
	},
}

// followHeartRate prints readings published by a running relay until interrupted
func followHeartRate(cmd *cobra.Command) error {
	if cfg.RedisAddr == "" {
		return errors.New("--follow needs REDIS_ADDR")
	}
	client, err := database.OpenRedis(cmd.Context(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	for r := range heartrate.Subscribe(cmd.Context(), client) {
		fmt.Fprintf(out, "%s  %-12s %3d bpm\n", r.At.Local().Format(time.DateTime), r.NodeID, r.BPM)
	}
	return nil
}

func init() {
	accidentsCmd.Flags().StringVar(&accidentRegion, "region", "", "Substring of the place name")
	accidentsCmd.Flags().StringVar(&accidentPlaceType, "type", "", "Exact place type, e.g. 갯바위")
	accidentsCmd.Flags().IntVar(&accidentTop, "top", coastal.DefaultTopLimit, "Show the place types with the most accidents")

	slopesCmd.Flags().StringVar(&slopeRegion, "region", "", "Substring of the district name")
	slopesCmd.Flags().Float64Var(&slopeMinGradient, "min-gradient", 0, "Only spots at least this steep (degrees)")

	heartRateCmd.Flags().IntVar(&heartRateLimit, "limit", 20, "Number of stored readings to show")
	heartRateCmd.Flags().BoolVar(&heartRateFollow, "follow", false, "Follow live readings over Redis")
}
