package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/benvon/flowstate/internal/models"
	"github.com/benvon/flowstate/internal/tracker"
	"github.com/benvon/flowstate/internal/validation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Payload formats accepted by the snapshot commands
const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatAuto = "auto"
)

// NewSnapshotCmd creates the snapshot command for offline export, import and removal of tracker state.
// A running server keeps loaded users in memory, so imports and deletes are seen after its next restart.
func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage persisted tracker state",
		Long:  "Export, import or delete a user's persisted tracker state directly in the database.",
	}
	cmd.AddCommand(newSnapshotExportCmd())
	cmd.AddCommand(newSnapshotImportCmd())
	cmd.AddCommand(newSnapshotDeleteCmd())
	return cmd
}

func newSnapshotExportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <user-id>",
		Short: "Write a user's tracker state as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			if err := validation.ValidateUserID(userID); err != nil {
				return err
			}
			if format != formatJSON && format != formatYAML {
				return fmt.Errorf("--format must be %s or %s", formatJSON, formatYAML)
			}
			ctx := cmd.Context()
			_, db, closeDB, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			snapshots, _ := stateRepositories(db)
			snapshot, err := snapshots.GetByUserID(ctx, userID)
			if err != nil {
				return fmt.Errorf("load snapshot for %s: %w", userID, err)
			}

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer func() { _ = f.Close() }()
				out = f
			}
			return encodePayload(out, &snapshot.Payload, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", formatJSON, "Output format (json or yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newSnapshotImportCmd() *cobra.Command {
	var format, input string
	cmd := &cobra.Command{
		Use:   "import <user-id>",
		Short: "Replace a user's tracker state from a JSON or YAML export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			if err := validation.ValidateUserID(userID); err != nil {
				return err
			}
			if input == "" {
				return fmt.Errorf("--file is required (use - for stdin)")
			}

			var data []byte
			var err error
			if input == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(input)
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}

			payload, err := decodePayload(data, format)
			if err != nil {
				return err
			}

			// Round-trip through a store so the saved snapshot is validated and normalized
			store := tracker.NewStore()
			if err := store.Import(*payload); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}
			normalized := store.Export(userID, time.Now().UTC())

			ctx := cmd.Context()
			_, db, closeDB, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			snapshots, tagStats := stateRepositories(db)
			if err := snapshots.Save(ctx, &normalized); err != nil {
				return err
			}
			if _, err := tagStats.MarkTainted(ctx, userID); err != nil {
				return err
			}

			integrity := normalized.DataIntegrity
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries (%d active) for %s\n",
				integrity.TotalEntries, integrity.ActiveSessions, userID)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", formatAuto, "Input format (json, yaml or auto)")
	cmd.Flags().StringVarP(&input, "file", "f", "", "Payload file, or - for stdin (required)")
	return cmd
}

func newSnapshotDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user's tracker state and tag statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			ctx := cmd.Context()
			_, db, closeDB, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			snapshots, tagStats := stateRepositories(db)
			if err := snapshots.Delete(ctx, userID); err != nil {
				return err
			}
			if err := tagStats.Delete(ctx, userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted tracker state for %s\n", userID)
			return nil
		},
	}
}

func encodePayload(w io.Writer, payload *models.ExportPayload, format string) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(payload); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

// decodePayload parses an export document. In auto mode a leading '{' selects JSON.
func decodePayload(data []byte, format string) (*models.ExportPayload, error) {
	if format == formatAuto {
		format = formatYAML
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			format = formatJSON
		}
	}

	var payload models.ExportPayload
	switch strings.ToLower(format) {
	case formatJSON:
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case formatYAML:
		if err := yaml.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return &payload, nil
}
