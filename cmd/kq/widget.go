package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"kaloriq-go/internal/app"
	"kaloriq-go/internal/kq"
	"kaloriq-go/internal/render"

	"github.com/spf13/cobra"
)

// timelineJSON is the --json form of a timeline.
type timelineJSON struct {
	Family      kq.WidgetFamily `json:"family"`
	ReloadAfter time.Time       `json:"reloadAfter"`
	Entries     []entryJSON     `json:"entries"`
}

type entryJSON struct {
	Date        time.Time    `json:"date"`
	Placeholder bool         `json:"placeholder"`
	Snapshot    *kq.Snapshot `json:"snapshot"`
}

func printTimeline(w io.Writer, family kq.WidgetFamily, tl kq.Timeline, asJSON bool) error {
	if asJSON {
		out := timelineJSON{Family: family, ReloadAfter: tl.ReloadAfter}
		for _, e := range tl.Entries {
			out.Entries = append(out.Entries, entryJSON{Date: e.Date, Placeholder: e.IsPlaceholder, Snapshot: e.Snapshot})
		}
		return json.NewEncoder(w).Encode(out)
	}

	for _, e := range tl.Entries {
		if err := render.Render(w, family, e, time.Local); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "next refresh %s\n", tl.ReloadAfter.Local().Format("15:04:05"))
	return nil
}

func familyFlag(cmd *cobra.Command) (kq.WidgetFamily, error) {
	name, _ := cmd.Flags().GetString("family")
	return kq.ParseWidgetFamily(name)
}

// widget command
var widgetCmd = &cobra.Command{
	Use:   "widget",
	Short: "Render widget timelines",
}

var widgetTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print the current timeline for a widget family",
	RunE: func(cmd *cobra.Command, args []string) error {
		preview, _ := cmd.Flags().GetBool("preview")
		asJSON, _ := cmd.Flags().GetBool("json")
		family, err := familyFlag(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "WidgetTimeline")
		if err != nil {
			return err
		}
		defer a.Close()

		return printTimeline(os.Stdout, family, a.Timeline(cmd.Context(), family, preview), asJSON)
	},
}

var widgetWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print a widget timeline whenever it refreshes",
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, _ := cmd.Flags().GetBool("sync")
		asJSON, _ := cmd.Flags().GetBool("json")
		family, err := familyFlag(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "WidgetWatch")
		if err != nil {
			return err
		}
		defer a.Close()

		var printErr error
		err = a.WatchTimelines(cmd.Context(), app.WatchOptions{Family: family, Sync: sync}, func(tl kq.Timeline) {
			if err := printTimeline(os.Stdout, family, tl, asJSON); err != nil && printErr == nil {
				printErr = err
			}
		})
		if err != nil {
			return err
		}
		return printErr
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Read, publish and sync the shared nutrition snapshot",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the shared snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd.Context(), "SnapshotShow")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.LoadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			data, err := kq.EncodeSnapshot(s)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		return render.Render(os.Stdout, kq.FamilyLarge, kq.Entry{Date: time.Now(), Snapshot: s}, time.Local)
	},
}

var snapshotPublishCmd = &cobra.Command{
	Use:   "publish FILE",
	Short: "Publish a snapshot document (- reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "SnapshotPublish")
		if err != nil {
			return err
		}
		defer a.Close()

		r := io.Reader(os.Stdin)
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening snapshot: %w", err)
			}
			defer f.Close()
			r = f
		}

		s, err := a.PublishSnapshot(cmd.Context(), r)
		if err != nil {
			return err
		}
		fmt.Printf("Published snapshot: %d of %d kcal, streak %d\n", s.Calories.Current, s.Calories.Target, s.Streak)
		return nil
	},
}

var snapshotBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a snapshot from logged health data",
	RunE: func(cmd *cobra.Command, args []string) error {
		dateStr, _ := cmd.Flags().GetString("date")
		foodsPath, _ := cmd.Flags().GetString("foods")
		publish, _ := cmd.Flags().GetBool("publish")

		day := time.Now()
		if dateStr != "" {
			d, err := time.ParseInLocation(time.DateOnly, dateStr, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			day = d
		}

		var foods []kq.FoodItem
		if foodsPath != "" {
			data, err := os.ReadFile(foodsPath)
			if err != nil {
				return fmt.Errorf("reading foods: %w", err)
			}
			if err := json.Unmarshal(data, &foods); err != nil {
				return fmt.Errorf("decoding foods: %w", err)
			}
		}

		a, err := newApp(cmd.Context(), "SnapshotBuild")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.BuildSnapshot(cmd.Context(), day, foods, publish)
		if err != nil {
			return err
		}
		data, err := kq.EncodeSnapshot(s)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var snapshotSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the app's snapshot into the shared store",
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")

		a, err := newApp(cmd.Context(), "SnapshotSync")
		if err != nil {
			return err
		}
		defer a.Close()

		if !once {
			return a.RunSync(cmd.Context())
		}

		changed, err := a.SyncOnce(cmd.Context())
		if err != nil {
			return err
		}
		if changed {
			fmt.Println("Shared snapshot updated.")
		} else {
			fmt.Println("Shared snapshot already current.")
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{widgetTimelineCmd, widgetWatchCmd} {
		c.Flags().StringP("family", "f", string(kq.FamilyMedium), "Widget family: small, medium or large")
		c.Flags().Bool("json", false, "Print timelines as JSON")
	}
	widgetTimelineCmd.Flags().Bool("preview", false, "Render the preview placeholder")
	widgetWatchCmd.Flags().Bool("sync", false, "Also copy the app snapshot into the shared store")
	widgetCmd.AddCommand(widgetTimelineCmd)
	widgetCmd.AddCommand(widgetWatchCmd)

	snapshotShowCmd.Flags().Bool("json", false, "Print the raw document")
	snapshotBuildCmd.Flags().String("date", "", "Day to summarize (YYYY-MM-DD, default today)")
	snapshotBuildCmd.Flags().String("foods", "", "JSON file listing today's foods")
	snapshotBuildCmd.Flags().Bool("publish", false, "Publish the built snapshot")
	snapshotSyncCmd.Flags().Bool("once", false, "Sync once and exit")
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotPublishCmd)
	snapshotCmd.AddCommand(snapshotBuildCmd)
	snapshotCmd.AddCommand(snapshotSyncCmd)
}
