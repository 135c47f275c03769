package main

import (
	"context"

	"github.com/dukex/runwatch/pkg/schedule"
	cli "github.com/urfave/cli/v3"
)

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:    "schedule",
		Aliases: []string{"s"},
		Usage:   "Fire the configured canvas schedules until interrupted",
		Flags:   remoteFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			s, err := openSession(ctx, command, "schedule")
			if err != nil {
				return err
			}
			defer s.Close()

			schedules, err := s.canvases.Schedules()
			if err != nil {
				return err
			}

			scheduler := schedule.New(s.coordinator, s.logger)

			for _, sched := range schedules {
				err := scheduler.Add(sched)
				if err != nil {
					return err
				}
			}

			for _, entry := range scheduler.Entries() {
				s.logger.InfoContext(ctx, "Next run", "schedule_id", entry.ScheduleID, "canvas_id", entry.CanvasID, "at", entry.Next)
			}

			scheduler.Start()

			<-ctx.Done()

			s.logger.InfoContext(ctx, "Stopping scheduler")

			return scheduler.Stop(context.WithoutCancel(ctx))
		},
	}
}
