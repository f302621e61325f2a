package cmd

import (
	"fmt"
	"log/slog"

	"github.com/psds-microservice/field-service/internal/database"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/psds-microservice/field-service/internal/service"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo tickets T001-T003 into an empty database",
	RunE:  runSeed,
}

var demoTickets = []model.Ticket{
	{
		ID:          "T001",
		ElevatorID:  "E1",
		Location:    "Building A, Floor 1",
		Description: "Elevator door does not close completely, keeps reopening",
		Priority:    model.TicketPriorityHigh,
	},
	{
		ID:          "T002",
		ElevatorID:  "E2",
		Location:    "Building B, Floor 5",
		Description: "Strange grinding noise while the car is moving up",
		Priority:    model.TicketPriorityMedium,
	},
	{
		ID:          "T003",
		ElevatorID:  "E3",
		Location:    "Building C, Basement",
		Description: "Car stops between floors, fault code E-201 on the controller",
		Priority:    model.TicketPriorityHigh,
	},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := database.MigrateUp(ctx, cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer database.Close(db)

	svc := service.NewTicketService(db)
	_, total, err := svc.List(ctx, service.ListFilter{Limit: 1})
	if err != nil {
		return fmt.Errorf("count tickets: %w", err)
	}
	if total > 0 {
		slog.Info("seed: tickets table is not empty, skipping", "total", total)
		return nil
	}
	for _, t := range demoTickets {
		t.Status = model.TicketStatusPending
		t.Images = []string{}
		if _, err := svc.Create(ctx, &t); err != nil {
			return fmt.Errorf("seed %s: %w", t.ID, err)
		}
	}
	slog.Info("seed: demo tickets created", "count", len(demoTickets))
	return nil
}
