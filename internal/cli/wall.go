package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Fresco/internal/domain"
)

// NewWallCmd создаёт группу команд для управления стенами.
func NewWallCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wall",
		Short: "Manage wall surfaces",
	}

	cmd.AddCommand(
		newWallCreateCmd(clientFn, outputFn),
		newWallShowCmd(clientFn, outputFn),
		newWallIngestCmd(clientFn, outputFn),
	)

	return cmd
}

func newWallCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var width, height, resolution float64

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a wall surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wall, err := client.CreateWall(width, height, resolution)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Wall created: %s", wall.ID))
			out.Print(
				[]string{"ID", "WIDTH", "HEIGHT", "RESOLUTION", "GRID"},
				[][]string{wallRow(wall)},
				wall,
			)
			return nil
		},
	}

	cmd.Flags().Float64Var(&width, "width", 0, "Wall width in meters (required)")
	cmd.Flags().Float64Var(&height, "height", 0, "Wall height in meters (required)")
	cmd.Flags().Float64Var(&resolution, "resolution", 0.1, "Grid cell size in meters")
	cmd.MarkFlagRequired("width")
	cmd.MarkFlagRequired("height")

	return cmd
}

func newWallShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show WALL_ID",
		Short: "Show a wall surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid wall id %q: %w", args[0], err)
			}

			client := clientFn()
			out := outputFn()

			wall, err := client.GetWall(id)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "WIDTH", "HEIGHT", "RESOLUTION", "GRID"},
				[][]string{wallRow(wall)},
				wall,
			)
			return nil
		},
	}

	return cmd
}

func newWallIngestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var cells []string
	var file string

	cmd := &cobra.Command{
		Use:   "ingest WALL_ID",
		Short: "Ingest a new obstacle map version",
		Long: `Ingest a new obstacle map version for a wall.

Blocked cells are given as repeated --cell X,Y flags or as a JSON file
with [{"x":..,"y":..}, ...] via --file. An empty set is valid and
records a version with no obstacles.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid wall id %q: %w", args[0], err)
			}

			blocked, err := parseBlocked(cells, file)
			if err != nil {
				return err
			}

			client := clientFn()
			out := outputFn()

			m, err := client.IngestObstacles(id, blocked)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Obstacle map ingested: version %d", m.Version))
			out.Print(
				[]string{"WALL_ID", "VERSION", "BLOCKED_CELLS"},
				[][]string{{m.WallID.String(), strconv.FormatInt(m.Version, 10), strconv.Itoa(len(m.Blocked))}},
				m,
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&cells, "cell", nil, "Blocked cell as X,Y (repeatable)")
	cmd.Flags().StringVar(&file, "file", "", "JSON file with blocked cells")

	return cmd
}

// parseBlocked собирает ячейки из флагов --cell и файла --file.
func parseBlocked(cells []string, file string) ([]domain.Cell, error) {
	var blocked []domain.Cell

	for _, s := range cells {
		parts := strings.SplitN(s, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cell %q, expected X,Y", s)
		}
		x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid cell %q: %w", s, err)
		}
		y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid cell %q: %w", s, err)
		}
		blocked = append(blocked, domain.Cell{X: x, Y: y})
	}

	if file != "" {
		fromFile, err := readCellsFile(file)
		if err != nil {
			return nil, err
		}
		blocked = append(blocked, fromFile...)
	}

	return blocked, nil
}

// readCellsFile читает ячейки из JSON-файла.
func readCellsFile(path string) ([]domain.Cell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var cells []domain.Cell
	if err := json.Unmarshal(data, &cells); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cells, nil
}

// wallRow форматирует стену в строку таблицы.
func wallRow(w *domain.WallSurface) []string {
	return []string{
		w.ID.String(),
		strconv.FormatFloat(w.Width, 'g', -1, 64),
		strconv.FormatFloat(w.Height, 'g', -1, 64),
		strconv.FormatFloat(w.Resolution, 'g', -1, 64),
		fmt.Sprintf("%dx%d", w.Cols(), w.Rows()),
	}
}
