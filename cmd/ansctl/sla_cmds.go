package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/sla"
)

func prioritiesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "priorities",
		Short: "Show the SLA allowance per priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			allowances := sla.Allowances()
			if c.json {
				return c.printJSON(allowances)
			}
			tw := c.table(table.Row{"Priority", "Business hours"})
			for _, a := range allowances {
				tw.AppendRow(table.Row{a.Priority, a.Hours})
			}
			tw.Render()
			return nil
		},
	}
}

func holidaysCmd(c *cli) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "List the holidays of the active calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			cal := c.engine.Calendar()
			years := cal.Years()
			if cmd.Flags().Changed("year") {
				if !cal.Covers(year) {
					return fmt.Errorf("calendar %s does not cover %d (covers %v)", cal.Version(), year, years)
				}
				years = []int{year}
			}
			var days []string
			for _, y := range years {
				for _, d := range cal.Holidays(y) {
					days = append(days, d.Format("2006-01-02"))
				}
			}
			if c.json {
				return c.printJSON(map[string]any{"version": cal.Version(), "timezone": cal.Location().String(), "holidays": days})
			}
			tw := c.table(table.Row{"Date", "Weekday"})
			for _, y := range years {
				for _, d := range cal.Holidays(y) {
					tw.AppendRow(table.Row{d.Format("2006-01-02"), d.Weekday()})
				}
			}
			tw.SetCaption("calendar %s (%s)", cal.Version(), cal.Location())
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "only this year")
	return cmd
}

type deadlineResult struct {
	Priority        domain.TicketPriority `json:"priority"`
	AllowanceHours  int                   `json:"allowance_hours"`
	CreatedAt       time.Time             `json:"created_at"`
	Deadline        time.Time             `json:"deadline"`
	Risk            sla.RiskState         `json:"risk"`
	Label           string                `json:"label"`
	PercentConsumed float64               `json:"percent_consumed"`
}

func deadlineCmd(c *cli) *cobra.Command {
	var priorityRaw, createdRaw, nowRaw string
	cmd := &cobra.Command{
		Use:   "deadline",
		Short: "Compute the SLA deadline and risk of a hypothetical ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, ok := domain.ParsePriority(priorityRaw)
			if !ok {
				return fmt.Errorf("unknown priority %q", priorityRaw)
			}
			cal := c.engine.Calendar()
			created, err := cal.ParseTimestamp(createdRaw)
			if err != nil {
				return err
			}
			now := time.Now().In(cal.Location())
			if nowRaw != "" {
				if now, err = cal.ParseTimestamp(nowRaw); err != nil {
					return err
				}
			}
			ev, err := c.engine.Evaluate(&domain.Ticket{
				ExternalKey: "ansctl",
				Status:      domain.TicketStatusOpen,
				Priority:    priority,
				CreatedAt:   created,
			}, now)
			if err != nil {
				return err
			}
			res := deadlineResult{
				Priority:        priority,
				AllowanceHours:  ev.AllowanceHours,
				CreatedAt:       created,
				Deadline:        ev.Deadline,
				Risk:            ev.Risk,
				Label:           ev.Label,
				PercentConsumed: ev.PercentConsumed,
			}
			if c.json {
				return c.printJSON(res)
			}
			tw := c.table(table.Row{"Priority", "Hours", "Created", "Deadline", "Risk", "Label", "Consumed"})
			tw.AppendRow(table.Row{
				res.Priority, res.AllowanceHours,
				res.CreatedAt.Format("2006-01-02 15:04"), res.Deadline.Format("2006-01-02 15:04"),
				res.Risk, res.Label, fmt.Sprintf("%.1f%%", res.PercentConsumed),
			})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&priorityRaw, "priority", "", "ticket priority, e.g. CRITICAL or ALTA")
	cmd.Flags().StringVar(&createdRaw, "created", "", "creation time, e.g. \"2025-03-10 09:00\"")
	cmd.Flags().StringVar(&nowRaw, "now", "", "evaluation time (default: current time)")
	_ = cmd.MarkFlagRequired("priority")
	_ = cmd.MarkFlagRequired("created")
	return cmd
}
