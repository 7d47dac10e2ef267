package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Register and inspect patients",
	}

	cmd.AddCommand(patientRegisterCmd())
	cmd.AddCommand(patientListCmd())
	cmd.AddCommand(patientUpdateContactCmd())
	cmd.AddCommand(patientAppointmentsCmd())
	return cmd
}

func patientRegisterCmd() *cobra.Command {
	var in appointment.NewPatient

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				p, err := svc.RegisterPatient(ctx, in)
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
	cmd.Flags().StringVar(&in.InsurancePlan, "plan", "", "Insurance plan")
	return cmd
}

func patientListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered patients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				patients, err := svc.ListPatients(ctx)
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout(), "ID", "NAME", "NATIONAL ID", "PHONE", "PLAN")
				for _, p := range patients {
					t.row(p.ID, p.Name, p.NationalID, p.Phone, p.InsurancePlan)
				}
				return t.flush()
			})
		},
	}
}

func patientUpdateContactCmd() *cobra.Command {
	var phone, plan string

	cmd := &cobra.Command{
		Use:   "update-contact <patient-id>",
		Short: "Replace a patient's phone and insurance plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("patient id", args[0])
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				p, err := svc.UpdatePatientContact(ctx, id, phone, plan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", p.Identify())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "New contact phone")
	cmd.Flags().StringVar(&plan, "plan", "", "New insurance plan")
	return cmd
}

func patientAppointmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "appointments <patient-id>",
		Short: "List every appointment of a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("patient id", args[0])
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *appointment.Service) error {
				appts, err := svc.ListAppointmentsByPatient(ctx, id)
				if err != nil {
					return err
				}
				return printAppointments(cmd.OutOrStdout(), appts)
			})
		},
	}
}

func parseID(what, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s must be a valid UUID: %w", what, err)
	}
	return id, nil
}
