package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func bookCmd() *cobra.Command {
	var (
		patient, physician, start string
		duration                  int
	)

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := parseID("patient id", patient)
			if err != nil {
				return err
			}
			physicianID, err := parseID("physician id", physician)
			if err != nil {
				return err
			}
			at, ok := api.ParseWallClock(start)
			if !ok {
				return fmt.Errorf("start must look like 2006-01-02T15:04, got %q", start)
			}

			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				appt, err := svc.Book(ctx, patientID, physicianID, at, duration)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "booked %s from %s to %s\n",
					appt.ID, appt.Start.Format(api.WallClockLayout), appt.End().Format(api.WallClockLayout))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&patient, "patient", "", "Patient id")
	cmd.Flags().StringVar(&physician, "physician", "", "Physician id")
	cmd.Flags().StringVar(&start, "start", "", "Start as YYYY-MM-DDTHH:MM (clinic wall clock)")
	cmd.Flags().IntVar(&duration, "duration", 30, "Length in minutes")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("physician")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

type statusChange func(svc *appointment.Service, ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)

func statusCmd(use, short string, apply statusChange) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <appointment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("appointment id", args[0])
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				appt, err := apply(svc, ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "appointment %s is %s\n", appt.ID, appt.Status)
				return nil
			})
		},
	}
}

func membersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List every patient and physician",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				members, err := svc.ListMembers(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, m := range members {
					fmt.Fprintln(out, m.Identify())
				}
				return nil
			})
		},
	}
}

func printAppointments(w io.Writer, appts []appointment.Appointment) error {
	t := newTable(w, "ID", "START", "END", "PATIENT", "PHYSICIAN", "STATUS")
	for _, a := range appts {
		t.row(a.ID, a.Start.Format(api.WallClockLayout), a.End().Format(api.WallClockLayout),
			a.PatientID, a.PhysicianID, a.Status)
	}
	return t.flush()
}

type table struct {
	tw *tabwriter.Writer
}

func newTable(w io.Writer, headers ...any) *table {
	t := &table{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
	t.row(headers...)
	return t
}

func (t *table) row(cols ...any) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(t.tw, "\t")
		}
		fmt.Fprint(t.tw, c)
	}
	fmt.Fprintln(t.tw)
}

func (t *table) flush() error {
	return t.tw.Flush()
}
