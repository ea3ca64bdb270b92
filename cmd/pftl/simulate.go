// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pftl/pftl/internal/catalog"
	"github.com/pftl/pftl/internal/combat"
	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/pkg/errutil"
)

// CodeInvalidFleet marks a malformed --ship value or fleet file.
const CodeInvalidFleet = "INVALID_FLEET"

type simulateConfig struct {
	seed      int64
	ships     []string
	fleetFile string
	catalog   string
	maxTicks  int
	output    string
	quiet     bool
}

// fleetEntry is one ship in a fleet file.
type fleetEntry struct {
	ID              string `yaml:"id"`
	catalog.Loadout `yaml:",inline"`
}

// simulationReport is the summary printed after a simulated battle.
type simulationReport struct {
	Seed       int64                `json:"seed"`
	Ticks      int                  `json:"ticks"`
	Events     int                  `json:"events"`
	Digest     string               `json:"digest"`
	Outcome    combat.Outcome       `json:"outcome"`
	Winner     combat.ParticipantID `json:"winner,omitempty"`
	FinalShips []combat.Ship        `json:"final_ships"`
}

// NewSimulateCmd creates the simulate subcommand.
func NewSimulateCmd() *cobra.Command {
	cfg := &simulateConfig{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a battle offline and print its event log",
		Long: `Run a complete battle without a server. Ships act on the default policy
(fire at the weakest enemy). The same seed and fleet always produce the same
events and digest.`,
		Example: `  pftl simulate --seed 42 --ship "alpha=Battleship+Reinforced Hull" --ship "beta=Destroyer"
  pftl simulate --fleet fleet.yaml --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("seed") {
				seed, err := core.NewSeed()
				if err != nil {
					return err
				}
				cfg.seed = seed
			}
			return runSimulate(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Int64Var(&cfg.seed, "seed", 0, "battle seed (default: random)")
	cmd.Flags().StringArrayVar(&cfg.ships, "ship", nil, `ship as "id=Archetype[+Upgrade...]" (repeatable)`)
	cmd.Flags().StringVar(&cfg.fleetFile, "fleet", "", "YAML file listing ships (id, archetype, upgrades, crew, name)")
	cmd.Flags().StringVar(&cfg.catalog, "catalog", "", "ship catalog file (default: built-in catalog)")
	cmd.Flags().IntVar(&cfg.maxTicks, "max-ticks", combat.DefaultMaxTicks, "tick limit before the battle ends in a draw")
	cmd.Flags().StringVar(&cfg.output, "output", "text", "output format (text or json)")
	cmd.Flags().BoolVar(&cfg.quiet, "quiet", false, "print only the summary")

	return cmd
}

func runSimulate(ctx context.Context, cfg *simulateConfig, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.output != "text" && cfg.output != "json" {
		return oops.Code("INVALID_OUTPUT").With("output", cfg.output).Errorf("output must be 'text' or 'json', got %q", cfg.output)
	}

	cat, err := loadCatalog(cfg.catalog)
	if err != nil {
		return err
	}
	fleet, err := buildFleet(cat, cfg)
	if err != nil {
		return err
	}

	report, events, err := simulate(ctx, fleet, cfg.seed, cfg.maxTicks)
	if err != nil {
		return err
	}

	if cfg.output == "json" {
		return writeJSONReport(out, report, events, cfg.quiet)
	}
	writeTextReport(out, report, events, cfg.quiet)
	return nil
}

// buildFleet collects participants from the fleet file then the --ship
// flags, in that order.
func buildFleet(cat *catalog.Catalog, cfg *simulateConfig) ([]core.Participant, error) {
	var entries []fleetEntry
	if cfg.fleetFile != "" {
		data, err := os.ReadFile(cfg.fleetFile) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, oops.Code(CodeInvalidFleet).With("path", cfg.fleetFile).Wrapf(err, "read fleet file")
		}
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, oops.Code(CodeInvalidFleet).With("path", cfg.fleetFile).Wrapf(err, "decode fleet file")
		}
	}
	for _, raw := range cfg.ships {
		entry, err := parseShip(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if n := len(entries); n < core.MinParticipants || n > core.MaxParticipants {
		return nil, oops.Code(core.CodeInvalidParticipantCount).
			With("participants", n).
			Errorf("need %d to %d ships, have %d", core.MinParticipants, core.MaxParticipants, n)
	}

	fleet := make([]core.Participant, 0, len(entries))
	for _, e := range entries {
		p, err := cat.Participant(combat.ParticipantID(e.ID), e.Loadout, true)
		if err != nil {
			return nil, oops.With("ship", e.ID).Wrap(err)
		}
		fleet = append(fleet, p)
	}
	return fleet, nil
}

// parseShip reads "id=Archetype[+Upgrade...]".
func parseShip(raw string) (fleetEntry, error) {
	id, spec, ok := strings.Cut(raw, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" || strings.TrimSpace(spec) == "" {
		return fleetEntry{}, oops.Code(CodeInvalidFleet).
			With("ship", raw).
			Errorf("ship must look like id=Archetype[+Upgrade...], got %q", raw)
	}

	parts := strings.Split(spec, "+")
	entry := fleetEntry{ID: id, Loadout: catalog.Loadout{Archetype: strings.TrimSpace(parts[0])}}
	for _, u := range parts[1:] {
		u = strings.TrimSpace(u)
		if u == "" {
			return fleetEntry{}, oops.Code(CodeInvalidFleet).With("ship", raw).Errorf("empty upgrade in %q", raw)
		}
		entry.Upgrades = append(entry.Upgrades, u)
	}
	return entry, nil
}

// simulate runs the fleet through a manually stepped session so the offline
// log is exactly what a server session with the same seed would emit.
func simulate(ctx context.Context, fleet []core.Participant, seed int64, maxTicks int) (simulationReport, []combat.Event, error) {
	cfg := core.DefaultManagerConfig()
	cfg.TickInterval = 0
	cfg.Rules.MaxTicks = maxTicks
	manager := core.NewManager(cfg, nil)
	defer func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			slog.Debug("error stopping simulation manager", "error", err)
		}
	}()

	session, err := manager.CreateSession("", fleet, seed)
	if err != nil {
		return simulationReport{}, nil, err
	}
	if err := manager.StartGame(session.Code()); err != nil {
		return simulationReport{}, nil, err
	}
	for session.Status() == core.StatusActive {
		if err := manager.Step(ctx, session.Code()); err != nil {
			if errutil.HasCode(err, core.CodeInvalidState) {
				break
			}
			return simulationReport{}, nil, err
		}
	}
	if err := session.Wait(ctx); err != nil {
		return simulationReport{}, nil, err
	}

	result, err := session.Result()
	if err != nil {
		return simulationReport{}, nil, err
	}
	return simulationReport{
		Seed:       result.Seed,
		Ticks:      result.TotalTicks,
		Events:     result.EventCount,
		Digest:     result.LogDigest,
		Outcome:    result.Outcome,
		Winner:     result.Winner,
		FinalShips: result.FinalSnapshot,
	}, session.Events(), nil
}

func writeJSONReport(out io.Writer, report simulationReport, events []combat.Event, quiet bool) error {
	enc := json.NewEncoder(out)
	if !quiet {
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return oops.Wrapf(err, "write event")
			}
		}
	}
	if err := enc.Encode(report); err != nil {
		return oops.Wrapf(err, "write report")
	}
	return nil
}

func writeTextReport(out io.Writer, report simulationReport, events []combat.Event, quiet bool) {
	if !quiet {
		for _, e := range events {
			line := fmt.Sprintf("%4d.%-3d %-18s", e.Tick, e.Seq, e.Type)
			if e.Actor != "" {
				line += " actor=" + string(e.Actor)
			}
			if e.Target != "" {
				line += " target=" + string(e.Target)
			}
			if len(e.Payload) > 0 {
				line += " " + string(e.Payload)
			}
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "seed:    %d\n", report.Seed)
	fmt.Fprintf(out, "ticks:   %d\n", report.Ticks)
	fmt.Fprintf(out, "events:  %d\n", report.Events)
	fmt.Fprintf(out, "digest:  %s\n", report.Digest)
	switch {
	case report.Outcome.Aborted:
		fmt.Fprintf(out, "outcome: aborted (%s)\n", report.Outcome.Reason)
	case report.Outcome.Draw:
		fmt.Fprintf(out, "outcome: draw (%s)\n", report.Outcome.Reason)
	default:
		fmt.Fprintf(out, "outcome: %s wins (%s)\n", report.Winner, report.Outcome.Reason)
	}
	for _, s := range report.FinalShips {
		fmt.Fprintf(out, "  %-12s %-10s hull %d/%d\n", s.ID, s.Status, s.Health, s.MaxHealth)
	}
}
