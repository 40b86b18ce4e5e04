package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"kaloriq-go/internal/kq"

	"github.com/spf13/cobra"
)

// parseTimeFlag reads an RFC 3339 or YYYY-MM-DD flag. Unset flags return nil.
func parseTimeFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: want RFC 3339 or YYYY-MM-DD", name, v)
	}
	return &t, nil
}

// health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Read and write health data",
}

var healthCallCmd = &cobra.Command{
	Use:   "call METHOD [PARAMS_JSON]",
	Short: "Invoke a bridge method with JSON parameters",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params kq.Params
		if len(args) == 2 {
			p, err := kq.DecodeParams([]byte(args[1]))
			if err != nil {
				return err
			}
			params = p
		}

		a, err := newApp(cmd.Context(), "HealthCall")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Call(cmd.Context(), args[0], params)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var healthWriteCmd = &cobra.Command{
	Use:   "write METRIC VALUE",
	Short: "Write one health sample",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		unit, _ := cmd.Flags().GetString("unit")
		metric, err := kq.ParseMetric(args[0])
		if err != nil {
			return err
		}
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}
		date, err := parseTimeFlag(cmd, "date")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "HealthWrite")
		if err != nil {
			return err
		}
		defer a.Close()

		req := kq.WriteRequest{Metric: metric, Value: value, Unit: kq.Unit(unit), Date: date}
		if err := a.Write(cmd.Context(), req); err != nil {
			return err
		}
		fmt.Printf("Wrote %s %v\n", metric, value)
		return nil
	},
}

var healthReadCmd = &cobra.Command{
	Use:   "read METRIC",
	Short: "List samples of one metric",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		metric, err := kq.ParseMetric(args[0])
		if err != nil {
			return err
		}
		start, err := parseTimeFlag(cmd, "start")
		if err != nil {
			return err
		}
		end, err := parseTimeFlag(cmd, "end")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "HealthRead")
		if err != nil {
			return err
		}
		defer a.Close()

		values, err := a.Read(cmd.Context(), kq.ReadRequest{Metric: metric, Days: days, Start: start, End: end})
		if err != nil {
			return err
		}
		if len(values) == 0 {
			fmt.Println("No samples.")
			return nil
		}
		for _, v := range values {
			fmt.Printf("%s  %10.2f %-5s  %s\n", v.Date.Local().Format("2006-01-02 15:04"), v.Value, metric.CanonicalUnit(), v.Source)
		}
		return nil
	},
}

var healthExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an encrypted archive of health samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		days, _ := cmd.Flags().GetInt("days")
		start, err := parseTimeFlag(cmd, "start")
		if err != nil {
			return err
		}
		end, err := parseTimeFlag(cmd, "end")
		if err != nil {
			return err
		}
		if end == nil {
			now := time.Now()
			end = &now
		}
		if start == nil {
			s := end.AddDate(0, 0, -days)
			start = &s
		}

		a, err := newApp(cmd.Context(), "HealthExport")
		if err != nil {
			return err
		}
		defer a.Close()

		w := io.Writer(os.Stdout)
		if out != "" && out != "-" {
			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
			if err != nil {
				return fmt.Errorf("creating export file: %w", err)
			}
			defer f.Close()
			w = f
		}

		n, err := a.ExportHealth(cmd.Context(), w, *start, *end)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d sample(s)\n", n)
		return nil
	},
}

var healthImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import an encrypted archive of health samples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer f.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "HealthImport")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.ImportHealth(cmd.Context(), f, passphrase)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d sample(s)\n", n)
		return nil
	},
}

var healthBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Copy the health database to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "HealthBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupHealth(args[0]); err != nil {
			return err
		}
		fmt.Printf("Health database copied to %s\n", args[0])
		return nil
	},
}

func init() {
	healthWriteCmd.Flags().String("unit", "", "Unit of VALUE (default: the metric's canonical unit)")
	healthWriteCmd.Flags().String("date", "", "Sample time (default now)")
	healthReadCmd.Flags().Int("days", 0, "Days to look back (default depends on the metric)")
	healthReadCmd.Flags().String("start", "", "Range start")
	healthReadCmd.Flags().String("end", "", "Range end")
	healthExportCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	healthExportCmd.Flags().Int("days", 30, "Days to export when --start is not set")
	healthExportCmd.Flags().String("start", "", "Range start")
	healthExportCmd.Flags().String("end", "", "Range end (default now)")

	healthCmd.AddCommand(healthCallCmd)
	healthCmd.AddCommand(healthWriteCmd)
	healthCmd.AddCommand(healthReadCmd)
	healthCmd.AddCommand(healthExportCmd)
	healthCmd.AddCommand(healthImportCmd)
	healthCmd.AddCommand(healthBackupCmd)
}
