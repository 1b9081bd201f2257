package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"estudent-scraper/googlecalendar"
	"estudent-scraper/ical"
	"estudent-scraper/scraper"
	"estudent-scraper/uploader"
)

// weekFlags selects which weeks of the timetable to scrape.
type weekFlags struct {
	date  string
	weeks int
}

func (w *weekFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.date, "date", "", "first week to fetch, as D-Mon-YYYY (default: current study period)")
	cmd.Flags().IntVar(&w.weeks, "weeks", 1, "number of consecutive weeks to fetch")
}

// fetch logs in and scrapes the requested weeks. It also returns the Monday of the
// first week fetched.
func (a *app) fetch(w weekFlags) (scraper.Timetable, time.Time, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, time.Time{}, err
	}
	if w.weeks < 1 {
		return nil, time.Time{}, fmt.Errorf("--weeks must be at least 1")
	}
	var from time.Time
	if w.date != "" {
		d, err := scraper.ToDatetime(w.date)
		if err != nil {
			return nil, time.Time{}, err
		}
		from = d
	}

	session, err := scraper.NewSession(scraper.WithLogger(a.logger))
	if err != nil {
		return nil, time.Time{}, err
	}
	if err := session.Login(a.cfg.Username, a.cfg.Password); err != nil {
		return nil, time.Time{}, err
	}
	tt, err := session.TimetableWeeks(from, w.weeks)
	if err != nil {
		return nil, time.Time{}, err
	}
	first := session.MondayDate().AddDate(0, 0, -7*(w.weeks-1))
	return tt, first, nil
}

func newTimetableCmd(a *app) *cobra.Command {
	var w weekFlags
	cmd := &cobra.Command{
		Use:   "timetable",
		Short: "Print the timetable",
		RunE: func(cmd *cobra.Command, args []string) error {
			tt, _, err := a.fetch(w)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTimetable(tt))
			return nil
		},
	}
	w.register(cmd)
	return cmd
}

// renderTimetable lays the classes out one per row, grouped by unit.
func renderTimetable(tt scraper.Timetable) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("UNIT", "DATE", "START", "END", "TYPE", "LOCATION")
	for _, code := range tt.Codes() {
		for _, c := range tt[code].Classes {
			t.Row(c.UnitCode, c.Date, c.Start, c.End, c.Type, c.Location)
		}
	}
	return t.Render()
}

func newSyncCmd(a *app) *cobra.Command {
	var (
		w          weekFlags
		clearAll   bool
		calendarID string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push the timetable to Google Calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateGoogle(); err != nil {
				return err
			}
			id, err := a.cfg.SyncCalendar(calendarID)
			if err != nil {
				return err
			}
			tt, monday, err := a.fetch(w)
			if err != nil {
				return err
			}
			client, err := a.calendarClient(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}
			window := googlecalendar.WeekWindow(monday, w.weeks, loc)
			result, err := client.SyncTimetable(id, tt, loc, window, clearAll)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d units: %d inserted, %d updated, %d deleted\n",
				len(tt), result.Inserted, result.Updated, result.Deleted)
			return nil
		},
	}
	w.register(cmd)
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete the events this tool created in the synced weeks before syncing")
	cmd.Flags().StringVar(&calendarID, "calendar", "", "calendar id (default: google_calendar_id from config)")
	return cmd
}

func newICSCmd(a *app) *cobra.Command {
	var (
		w      weekFlags
		out    string
		name   string
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "ics",
		Short: "Write the timetable as an iCalendar file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if upload {
				if err := a.cfg.ValidateGithub(); err != nil {
					return err
				}
			}
			tt, _, err := a.fetch(w)
			if err != nil {
				return err
			}
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}
			if out == "" {
				out = a.cfg.ICSPath
			}

			cal, err := ical.BuildCalendar(tt, loc, name, time.Now())
			if err != nil {
				return err
			}
			if err := ical.WriteFile(cal, out); err != nil {
				return err
			}
			a.logger.Info("ICS file written", zap.String("path", out), zap.Int("events", len(cal.Events())))

			if upload {
				u := uploader.NewGitHubUploader(a.cfg.GithubToken, a.cfg.GithubRepo, a.logger)
				if err := u.UploadFile(a.cfg.GithubPath, out, "Update "+a.cfg.GithubPath); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d events to %s\n", len(cal.Events()), out)
			return nil
		},
	}
	w.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "output file (default: ics_path from config)")
	cmd.Flags().StringVar(&name, "name", "Timetable", "calendar name shown by subscribing apps")
	cmd.Flags().BoolVar(&upload, "upload", false, "publish the file to the configured GitHub repository")
	return cmd
}

func newCalendarCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new-calendar NAME",
		Short: "Create a Google calendar to hold the timetable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateGoogle(); err != nil {
				return err
			}
			client, err := a.calendarClient(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			id, err := client.NewCalendar(args[0], a.cfg.TimeZone)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func (a *app) calendarClient(ctx context.Context, in io.Reader, out io.Writer) (*googlecalendar.Client, error) {
	service, err := googlecalendar.GetCalendarService(ctx, a.cfg, googlecalendar.Prompt{In: in, Out: out}, a.logger)
	if err != nil {
		return nil, err
	}
	return googlecalendar.NewClient(service, a.logger), nil
}
