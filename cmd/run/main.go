// Command run composes the Hamiltonians of a composite step stored in sqlite and diagonalizes them.
//
// Results are written to <out>/<alpha>x<beta>/eig.csv, one directory per sector.
// Sectors whose directory already holds done.txt are skipped.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fumin/dmrg"
	"github.com/fumin/dmrg/eigen"
	"github.com/fumin/dmrg/integrals"
	"github.com/fumin/dmrg/sector"
	"github.com/fumin/dmrg/store"
)

const (
	fnameEigen = "eig.csv"
	fnameDone  = "done.txt"
)

const (
	solverDense   = "dense"
	solverArnoldi = "arnoldi"
)

type Config struct {
	// Store is the sqlite database holding the step.
	Store     string              `yaml:"store"`
	Integrals string              `yaml:"integrals"`
	Left      string              `yaml:"left"`
	Right     string              `yaml:"right"`
	Step      string              `yaml:"step"`
	Partition integrals.Partition `yaml:"partition"`
	// Sectors to diagonalize, every sector if empty.
	Sectors []sector.Key `yaml:"sectors"`
	Workers int          `yaml:"workers"`
	Solver  string       `yaml:"solver"`
	// Roots is the number of eigenpairs written by the dense solver, all if zero.
	Roots int    `yaml:"roots"`
	Out   string `yaml:"out"`
}

func readConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	cfg := Config{Workers: 1, Solver: solverDense, Out: filepath.Join("runs", "dmrg")}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	switch cfg.Solver {
	case solverDense, solverArnoldi:
	default:
		return Config{}, errors.Errorf("unknown solver %q", cfg.Solver)
	}
	if cfg.Store == "" || cfg.Left == "" || cfg.Right == "" || cfg.Integrals == "" {
		return Config{}, errors.Errorf("%#v", cfg)
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return logger, nil
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool
	cmd := &cobra.Command{
		Use:           "run",
		Short:         "Compose and diagonalize the sector Hamiltonians of a composite step",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(configPath)
			if err != nil {
				return errors.Wrap(err, "")
			}
			logger, err := newLogger(verbose)
			if err != nil {
				return errors.Wrap(err, "")
			}
			defer logger.Sync()
			return mainWithErr(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "run.yaml", "run configuration")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		stop()
		os.Exit(1)
	}
}

func mainWithErr(ctx context.Context, cfg Config, logger *zap.Logger) error {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer st.Close()

	left, err := st.LoadBlock(ctx, cfg.Left)
	if err != nil {
		return errors.Wrap(err, "")
	}
	right, err := st.LoadBlock(ctx, cfg.Right)
	if err != nil {
		return errors.Wrap(err, "")
	}
	ints, err := st.LoadIntegrals(ctx, cfg.Integrals)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if p := cfg.Partition; p.Norb() != ints.Norb() || p.Left != left.Norb() || p.Right != right.Norb() || p.Env < 0 {
		return errors.Errorf("partition %#v, %d integral orbitals, blocks of %d and %d", p, ints.Norb(), left.Norb(), right.Norb())
	}

	idx := sector.Enumerate(left.Sectors(), right.Sectors())
	c, err := dmrg.New(idx, left, right, ints, cfg.Partition, st.Builder(ctx, cfg.Step), dmrg.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "")
	}

	keys := cfg.Sectors
	if len(keys) == 0 {
		keys = idx.Keys()
	}
	todo := make([]sector.Key, 0, len(keys))
	for _, k := range keys {
		if !idx.Contains(k) {
			return errors.Errorf("no sector %v", k)
		}
		if _, err := os.Stat(filepath.Join(sectorDir(cfg.Out, k), fnameDone)); err == nil {
			logger.Info("skip", zap.Stringer("key", k))
			continue
		}
		todo = append(todo, k)
	}

	hs, err := c.Hamiltonians(ctx, todo, cfg.Workers)
	if err != nil {
		return errors.Wrap(err, "")
	}
	for _, h := range hs {
		if err := solve(sectorDir(cfg.Out, h.Ket), h, cfg); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%v", h.Ket))
		}
		logger.Info("solved", zap.Stringer("key", h.Ket), zap.Int("states", h.RawMatrix().Rows))
	}
	return nil
}

func sectorDir(out string, k sector.Key) string {
	return filepath.Join(out, fmt.Sprintf("%dx%d", k.Alpha, k.Beta))
}

func solve(dir string, h *dmrg.Operator, cfg Config) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	var vvs []eigen.ValVec
	switch cfg.Solver {
	case solverArnoldi:
		vv, err := eigen.Arnoldi(h)
		if err != nil {
			return errors.Wrap(err, "")
		}
		vvs = []eigen.ValVec{vv}
	default:
		var err error
		if vvs, err = eigen.Symmetric(h); err != nil {
			return errors.Wrap(err, "")
		}
		if cfg.Roots > 0 && cfg.Roots < len(vvs) {
			vvs = vvs[:cfg.Roots]
		}
	}

	if err := writeEig(dir, vvs); err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(filepath.Join(dir, fnameDone), nil, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func writeEig(dir string, vvs []eigen.ValVec) error {
	f, err := os.Create(filepath.Join(dir, fnameEigen))
	if err != nil {
		return errors.Wrap(err, "")
	}
	err = eigen.WriteCSV(f, vvs)
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}
