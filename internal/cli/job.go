package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Fresco/internal/domain"
)

// NewJobCmd создаёт группу команд для управления jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage planning jobs",
	}

	cmd.AddCommand(
		newJobSubmitCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobCancelCmd(clientFn, outputFn),
		newJobListCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var start, goal, region string
	var minVersion int64
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "submit WALL_ID",
		Short: "Submit a planning job",
		Long: `Submit a planning job for a wall.

Exactly one of --goal or --region must be given: --goal X,Y plans a
route to a single cell, --region MINX,MINY,MAXX,MAXY plans coverage
of every traversable cell in the rectangle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wallID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid wall id %q: %w", args[0], err)
			}

			req := domain.PlanRequest{
				WallID:         wallID,
				MinVersion:     minVersion,
				IdempotencyKey: idempotencyKey,
			}
			if req.IdempotencyKey == "" {
				req.IdempotencyKey = uuid.New().String()
			}

			if req.Start, err = parseCell(start); err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			if goal != "" {
				c, err := parseCell(goal)
				if err != nil {
					return fmt.Errorf("--goal: %w", err)
				}
				req.Goal = &c
			}
			if region != "" {
				r, err := parseRect(region)
				if err != nil {
					return fmt.Errorf("--region: %w", err)
				}
				req.Region = &r
			}

			client := clientFn()
			out := outputFn()

			job, dup, err := client.SubmitJob(req)
			if err != nil {
				return err
			}

			if dup {
				out.Success(fmt.Sprintf("Duplicate submission, existing job: %s", job.ID))
			} else {
				out.Success(fmt.Sprintf("Job submitted: %s", job.ID))
			}
			out.Print(jobHeaders, [][]string{jobRow(job)}, job)
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "0,0", "Start cell as X,Y")
	cmd.Flags().StringVar(&goal, "goal", "", "Goal cell as X,Y (route planning)")
	cmd.Flags().StringVar(&region, "region", "", "Coverage region as MINX,MINY,MAXX,MAXY")
	cmd.Flags().Int64Var(&minVersion, "min-version", 0, "Minimum acceptable obstacle map version")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key (random if not given)")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(id)
			if err != nil {
				return err
			}

			out.Print(jobHeaders, [][]string{jobRow(job)}, job)
			return nil
		},
	}

	return cmd
}

func newJobCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a job (before instruction dispatch)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			client := clientFn()
			out := outputFn()

			job, err := client.CancelJob(id)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job cancelled: %s", job.ID))
			out.Print(jobHeaders, [][]string{jobRow(job)}, job)
			return nil
		},
	}

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(status, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(jobs))
			for i := range jobs {
				rows[i] = jobRow(&jobs[i])
			}

			out.Print(jobHeaders, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (CREATED..CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")

	return cmd
}

// jobHeaders — колонки таблицы jobs.
var jobHeaders = []string{"ID", "WALL_ID", "STATUS", "PROGRESS", "REASON", "CREATED"}

// jobRow форматирует job в строку таблицы.
func jobRow(j *domain.Job) []string {
	progress := "-"
	if j.FinalSeq > 0 {
		progress = fmt.Sprintf("%d/%d", j.AckWatermark, j.FinalSeq)
	}
	reason := string(j.Reason)
	if reason == "" {
		reason = "-"
	}
	return []string{
		j.ID.String(),
		j.WallID.String(),
		string(j.Status),
		progress,
		reason,
		j.CreatedAt.Format(time.RFC3339),
	}
}

// parseCell парсит "X,Y" в ячейку.
func parseCell(s string) (domain.Cell, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return domain.Cell{}, fmt.Errorf("invalid cell %q, expected X,Y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return domain.Cell{}, fmt.Errorf("invalid cell %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return domain.Cell{}, fmt.Errorf("invalid cell %q: %w", s, err)
	}
	return domain.Cell{X: x, Y: y}, nil
}

// parseRect парсит "MINX,MINY,MAXX,MAXY" в область.
func parseRect(s string) (domain.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Rect{}, fmt.Errorf("invalid region %q, expected MINX,MINY,MAXX,MAXY", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return domain.Rect{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
		vals[i] = v
	}
	return domain.Rect{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}, nil
}
