package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/iotlinker/automation/pkg/cmd"
	"github.com/iotlinker/automation/pkg/condition"
	"github.com/iotlinker/automation/pkg/config"
	"github.com/iotlinker/automation/pkg/graph"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence/memory"
	"github.com/urfave/cli/v3"
)

// ErrInvalidWorkflow is returned by validate when violations were found.
var ErrInvalidWorkflow = errors.New("workflow has violations")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate a workflow JSON or YAML file against the publish rules",
		ArgsUsage: "<workflow.json|workflow.yaml>",
		Action: func(ctx context.Context, command *cli.Command) error {
			workflow, err := readWorkflow(command.Args().First())
			if err != nil {
				return err
			}

			return validateWorkflow(ctx, os.Stdout, workflow)
		},
	}
}

func NewDotCommand() *cli.Command {
	return &cli.Command{
		Name:      "dot",
		Usage:     "Print a workflow JSON or YAML file as a Graphviz digraph",
		ArgsUsage: "<workflow.json|workflow.yaml>",
		Action: func(_ context.Context, command *cli.Command) error {
			workflow, err := readWorkflow(command.Args().First())
			if err != nil {
				return err
			}

			dot, err := graph.ToDOT(workflow)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(os.Stdout, dot)

			return err
		},
	}
}

func readWorkflow(path string) (*models.Workflow, error) {
	return config.LoadWorkflow(path)
}

// validateWorkflow checks workflow with the native adapter schemas and prints the
// result to out.
func validateWorkflow(ctx context.Context, out io.Writer, workflow *models.Workflow) error {
	logger := slog.New(slog.DiscardHandler)

	registry, err := cmd.NewRegistry(ctx, logger, memory.NewConnectionRepository(), cmd.RegistryConfig{})
	if err != nil {
		return err
	}

	violations := graph.Validate(workflow, registry.ValidateConfig, condition.Check)

	if len(violations) == 0 {
		_, _ = fmt.Fprintf(out, "Workflow %s is valid\n", workflow.ID)

		return nil
	}

	_, _ = fmt.Fprintf(out, "Workflow %s has %d violation(s):\n", workflow.ID, len(violations))

	for _, violation := range violations {
		_, _ = fmt.Fprintf(out, "  - %s\n", violation.String())
	}

	return ErrInvalidWorkflow
}
