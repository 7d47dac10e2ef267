package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func physicianCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "physician",
		Short: "Register physicians and inspect their agendas",
	}

	cmd.AddCommand(physicianRegisterCmd())
	cmd.AddCommand(physicianListCmd())
	cmd.AddCommand(physicianScheduleCmd())
	cmd.AddCommand(physicianFreeSlotsCmd())
	return cmd
}

func physicianRegisterCmd() *cobra.Command {
	var (
		in        appointment.NewPhysician
		rulesFile string
		rules     []string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new physician",
		Long: `Register a new physician.

Working hours come from a YAML file keyed by weekday:

  monday: ["08:00-12:00", "14:00-18:00"]
  wednesday: ["13:00-19:00"]

or from repeated --rule flags such as --rule monday=08:00-12:00,14:00-18:00.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := loadRules(rulesFile, rules)
			if err != nil {
				return err
			}
			in.Availability, err = appointment.NewRuleSet(raw)
			if err != nil {
				return err
			}

			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				p, err := svc.RegisterPhysician(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s\nid: %s\n", p.Identify(), p.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&in.NationalID, "national-id", "", "National identification number")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "Contact phone")
	cmd.Flags().StringVar(&in.License, "license", "", "Medical license number")
	cmd.Flags().StringVar(&in.Specialty, "specialty", "", "Specialty")
	cmd.Flags().StringVar(&rulesFile, "rules-file", "", "YAML file with the weekly working hours")
	cmd.Flags().StringArrayVar(&rules, "rule", nil, "weekday=HH:MM-HH:MM[,HH:MM-HH:MM] (repeatable)")
	return cmd
}

// loadRules merges the YAML file and the --rule flags into one raw rule map.
func loadRules(path string, flags []string) (map[string][]string, error) {
	raw := make(map[string][]string)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules file: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse rules file %s: %w", path, err)
		}
	}

	for _, f := range flags {
		day, windows, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(day) == "" {
			return nil, fmt.Errorf("rule %q: expected weekday=HH:MM-HH:MM", f)
		}
		for _, w := range strings.Split(windows, ",") {
			if w = strings.TrimSpace(w); w != "" {
				raw[day] = append(raw[day], w)
			}
		}
	}

	return raw, nil
}

func physicianListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered physicians",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				physicians, err := svc.ListPhysicians(ctx)
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout(), "ID", "NAME", "LICENSE", "SPECIALTY", "HOURS")
				for _, p := range physicians {
					t.row(p.ID, p.Name, p.License, p.Specialty, describeRules(p.Availability))
				}
				return t.flush()
			})
		},
	}
}

func physicianScheduleCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "schedule <physician-id>",
		Short: "Show a physician's appointments on one date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("physician id", args[0])
			if err != nil {
				return err
			}
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				appts, err := svc.ListAppointmentsByPhysicianOnDate(ctx, id, day)
				if err != nil {
					return err
				}
				return printAppointments(cmd.OutOrStdout(), appts)
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func physicianFreeSlotsCmd() *cobra.Command {
	var (
		date     string
		duration int
	)

	cmd := &cobra.Command{
		Use:   "free-slots <physician-id>",
		Short: "List start times a booking could take on one date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("physician id", args[0])
			if err != nil {
				return err
			}
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				slots, err := svc.FreeSlots(ctx, id, day, duration)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(slots) == 0 {
					fmt.Fprintln(out, "no free slots")
					return nil
				}
				for _, s := range slots {
					fmt.Fprintln(out, s.Format(api.WallClockLayout))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date as YYYY-MM-DD")
	cmd.Flags().IntVar(&duration, "duration", 30, "Appointment length in minutes")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func parseDate(raw string) (time.Time, error) {
	day, err := time.Parse(api.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return day, nil
}

func describeRules(rs appointment.RuleSet) string {
	var parts []string
	for _, day := range appointment.Weekdays {
		if !rs.WorksOn(day) {
			continue
		}
		var windows []string
		for _, iv := range rs.Intervals(day) {
			windows = append(windows, iv.String())
		}
		parts = append(parts, string(day)[:3]+" "+strings.Join(windows, ","))
	}
	if blocked := rs[appointment.BlockedDates]; len(blocked) > 0 {
		parts = append(parts, "blocked "+strings.Join(blocked, ","))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "; ")
}
