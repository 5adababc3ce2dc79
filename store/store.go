// Package store keeps the inputs of composite steps in a sqlite database.
//
// A database holds named blocks with their coupling tensors, named integral tables,
// and operator sets keyed by step and role.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dmrg/block"
	"github.com/fumin/dmrg/integrals"
	"github.com/fumin/dmrg/ndarray"
	"github.com/fumin/dmrg/sector"
	"github.com/fumin/dmrg/sq"
)

const (
	tableBlocks    = "blocks"
	tableSectors   = "sectors"
	tableCouplings = "couplings"
	tableOpSets    = "opsets"
	tableMatrices  = "matrices"
	tableDensities = "densities"
	tableStacks    = "stacks"
	tableIntegrals = "integrals"
)

var schema = []string{
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, norb INTEGER NOT NULL) STRICT`, tableBlocks),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (block TEXT, alpha INTEGER, beta INTEGER, nstates INTEGER NOT NULL,
		PRIMARY KEY (block, alpha, beta)) STRICT`, tableSectors),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (block TEXT, str TEXT, bra_alpha INTEGER, bra_beta INTEGER, ket_alpha INTEGER, ket_beta INTEGER,
		shape TEXT NOT NULL, data BLOB NOT NULL,
		PRIMARY KEY (block, str, bra_alpha, bra_beta, ket_alpha, ket_beta)) STRICT`, tableCouplings),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (step TEXT, role TEXT, norb INTEGER NOT NULL, PRIMARY KEY (step, role)) STRICT`, tableOpSets),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (step TEXT, role TEXT, kind INTEGER, label INTEGER, ket_alpha INTEGER, ket_beta INTEGER, i INTEGER, j INTEGER,
		data BLOB NOT NULL,
		PRIMARY KEY (step, role, kind, label, ket_alpha, ket_beta, i, j)) STRICT`, tableMatrices),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (step TEXT, role TEXT, spin INTEGER, ket_alpha INTEGER, ket_beta INTEGER, bra INTEGER, ket INTEGER,
		i INTEGER, j INTEGER, k INTEGER, v REAL NOT NULL,
		PRIMARY KEY (step, role, spin, ket_alpha, ket_beta, bra, ket, i, j, k)) STRICT`, tableDensities),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (step TEXT, role TEXT, complement INTEGER, ket_alpha INTEGER, ket_beta INTEGER,
		layout INTEGER NOT NULL, shape TEXT NOT NULL, data BLOB NOT NULL,
		PRIMARY KEY (step, role, complement, ket_alpha, ket_beta)) STRICT`, tableStacks),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, norb INTEGER NOT NULL, one BLOB NOT NULL, two BLOB NOT NULL) STRICT`, tableIntegrals),
}

type Store struct {
	Path string

	db *sql.DB
}

// Open opens the database at path, creating the tables it lacks.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, path)
	}
	return &Store{Path: path, db: db}, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, sqlStr := range schema {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBlock replaces the block called name.
func (s *Store) SaveBlock(ctx context.Context, name string, m *block.Memory) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{tableSectors, tableCouplings} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE block=?`, table), name); err != nil {
				return errors.Wrap(err, table)
			}
		}
		sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (name, norb) VALUES (?, ?)`, tableBlocks)
		if _, err := tx.ExecContext(ctx, sqlStr, name, m.Norb()); err != nil {
			return errors.Wrap(err, sqlStr)
		}

		sqlStr = fmt.Sprintf(`INSERT INTO %s (block, alpha, beta, nstates) VALUES (?, ?, ?, ?)`, tableSectors)
		for _, st := range m.Sectors() {
			if _, err := tx.ExecContext(ctx, sqlStr, name, st.Key.Alpha, st.Key.Beta, st.NStates); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%s %v", sqlStr, st))
			}
		}

		sqlStr = fmt.Sprintf(`INSERT INTO %s (block, str, bra_alpha, bra_beta, ket_alpha, ket_beta, shape, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, tableCouplings)
		for k, a := range m.Couplings {
			shape, data, err := encodeArray(a)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("%v", k))
			}
			if _, err := tx.ExecContext(ctx, sqlStr, name, k.Str.String(), k.Bra.Alpha, k.Bra.Beta, k.Ket.Alpha, k.Ket.Beta, shape, data); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%s %v", sqlStr, k))
			}
		}
		return nil
	})
}

func (s *Store) LoadBlock(ctx context.Context, name string) (*block.Memory, error) {
	var norb int
	sqlStr := fmt.Sprintf(`SELECT norb FROM %s WHERE name=?`, tableBlocks)
	err := s.db.QueryRowContext(ctx, sqlStr, name).Scan(&norb)
	switch {
	case err == sql.ErrNoRows:
		return nil, errors.Errorf("no block %q", name)
	case err != nil:
		return nil, errors.Wrap(err, sqlStr)
	}

	var sectors []sector.State
	sqlStr = fmt.Sprintf(`SELECT alpha, beta, nstates FROM %s WHERE block=? ORDER BY alpha, beta`, tableSectors)
	err = s.query(ctx, sqlStr, []any{name}, func(rows *sql.Rows) error {
		var st sector.State
		if err := rows.Scan(&st.Key.Alpha, &st.Key.Beta, &st.NStates); err != nil {
			return errors.Wrap(err, "")
		}
		sectors = append(sectors, st)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	m := block.NewMemory(norb, sectors)

	sqlStr = fmt.Sprintf(`SELECT str, bra_alpha, bra_beta, ket_alpha, ket_beta, shape, data FROM %s WHERE block=?`, tableCouplings)
	err = s.query(ctx, sqlStr, []any{name}, func(rows *sql.Rows) error {
		var text, shape string
		var bra, ket sector.Key
		var data []byte
		if err := rows.Scan(&text, &bra.Alpha, &bra.Beta, &ket.Alpha, &ket.Beta, &shape, &data); err != nil {
			return errors.Wrap(err, "")
		}
		str, err := sq.Parse(text)
		if err != nil {
			return errors.Wrap(err, "")
		}
		a, err := decodeArray(shape, data)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("%v %v %v", str, bra, ket))
		}
		if want, ok := m.CouplingShape(str, bra, ket); !ok || !slices.Equal(want, a.Shape()) {
			return errors.Errorf("%v from %v to %v shape %v, expected %v", str, ket, bra, a.Shape(), want)
		}
		m.SetCoupling(str, bra, ket, a)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return m, nil
}

// SaveOperators replaces the operator set of role in step.
// norb is the number of orbitals of the integral table the set was built against.
func (s *Store) SaveOperators(ctx context.Context, step string, role block.Role, norb int, o *block.Ops) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{tableMatrices, tableDensities, tableStacks} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE step=? AND role=?`, table), step, string(role)); err != nil {
				return errors.Wrap(err, table)
			}
		}
		sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (step, role, norb) VALUES (?, ?, ?)`, tableOpSets)
		if _, err := tx.ExecContext(ctx, sqlStr, step, string(role), norb); err != nil {
			return errors.Wrap(err, sqlStr)
		}

		sqlStr = fmt.Sprintf(`INSERT INTO %s (step, role, kind, label, ket_alpha, ket_beta, i, j, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableMatrices)
		for k, m := range o.Mats {
			data, err := m.MarshalBinary()
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("%#v", k))
			}
			if _, err := tx.ExecContext(ctx, sqlStr, step, string(role), int(k.Kind), int(k.Label), k.Ket.Alpha, k.Ket.Beta, k.I, k.J, data); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, k))
			}
		}

		sqlStr = fmt.Sprintf(`INSERT INTO %s (step, role, spin, ket_alpha, ket_beta, bra, ket, i, j, k, v) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableDensities)
		for k, v := range o.Densities {
			if _, err := tx.ExecContext(ctx, sqlStr, step, string(role), int(k.Spin), k.Ket.Alpha, k.Ket.Beta, k.Bra, k.KetState, k.I, k.J, k.K, v); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, k))
			}
		}

		sqlStr = fmt.Sprintf(`INSERT INTO %s (step, role, complement, ket_alpha, ket_beta, layout, shape, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, tableStacks)
		for k, st := range o.Stacks {
			shape, data, err := encodeArray(st.Data)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("%v %v", k.Complement, k.Ket))
			}
			if _, err := tx.ExecContext(ctx, sqlStr, step, string(role), int(k.Complement), k.Ket.Alpha, k.Ket.Beta, int(st.Layout), shape, data); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%s %v %v", sqlStr, k.Complement, k.Ket))
			}
		}
		return nil
	})
}

// LoadOperators returns the operator set of role in step and the number of orbitals it was built against.
func (s *Store) LoadOperators(ctx context.Context, step string, role block.Role) (*block.Ops, int, error) {
	var norb int
	sqlStr := fmt.Sprintf(`SELECT norb FROM %s WHERE step=? AND role=?`, tableOpSets)
	err := s.db.QueryRowContext(ctx, sqlStr, step, string(role)).Scan(&norb)
	switch {
	case err == sql.ErrNoRows:
		return nil, -1, errors.Errorf("no %s operators in step %q", role, step)
	case err != nil:
		return nil, -1, errors.Wrap(err, sqlStr)
	}

	o := block.NewOps()
	args := []any{step, string(role)}
	sqlStr = fmt.Sprintf(`SELECT kind, label, ket_alpha, ket_beta, i, j, data FROM %s WHERE step=? AND role=?`, tableMatrices)
	err = s.query(ctx, sqlStr, args, func(rows *sql.Rows) error {
		var k block.OpKey
		var data []byte
		if err := rows.Scan(&k.Kind, &k.Label, &k.Ket.Alpha, &k.Ket.Beta, &k.I, &k.J, &data); err != nil {
			return errors.Wrap(err, "")
		}
		m := &mat.Dense{}
		if err := m.UnmarshalBinary(data); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%#v", k))
		}
		o.Mats[k] = m
		return nil
	})
	if err != nil {
		return nil, -1, errors.Wrap(err, "")
	}

	sqlStr = fmt.Sprintf(`SELECT spin, ket_alpha, ket_beta, bra, ket, i, j, k, v FROM %s WHERE step=? AND role=?`, tableDensities)
	err = s.query(ctx, sqlStr, args, func(rows *sql.Rows) error {
		var k block.DensityKey
		var v float64
		if err := rows.Scan(&k.Spin, &k.Ket.Alpha, &k.Ket.Beta, &k.Bra, &k.KetState, &k.I, &k.J, &k.K, &v); err != nil {
			return errors.Wrap(err, "")
		}
		o.Densities[k] = v
		return nil
	})
	if err != nil {
		return nil, -1, errors.Wrap(err, "")
	}

	sqlStr = fmt.Sprintf(`SELECT complement, ket_alpha, ket_beta, layout, shape, data FROM %s WHERE step=? AND role=?`, tableStacks)
	err = s.query(ctx, sqlStr, args, func(rows *sql.Rows) error {
		var c block.Complement
		var ket sector.Key
		var layout block.Layout
		var shape string
		var data []byte
		if err := rows.Scan(&c, &ket.Alpha, &ket.Beta, &layout, &shape, &data); err != nil {
			return errors.Wrap(err, "")
		}
		if int(c) >= len(block.Complements()) || layout > block.Unordered {
			return errors.Errorf("stack %d of layout %d", c, layout)
		}
		a, err := decodeArray(shape, data)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("%v %v", c, ket))
		}
		if len(a.Shape()) != 2+c.Norbs() {
			return errors.Errorf("%v stack of %v shape %v", c, ket, a.Shape())
		}
		o.SetStack(c, ket, &block.Stack{Layout: layout, Data: a})
		return nil
	})
	if err != nil {
		return nil, -1, errors.Wrap(err, "")
	}
	return o, norb, nil
}

// Builder returns a builder loading the operator sets of step.
// The sets must have been built against tables of as many orbitals as the ones passed to Build.
func (s *Store) Builder(ctx context.Context, step string) block.Builder {
	return block.BuilderFunc(func(role block.Role, b block.Block, t *integrals.Table) (block.Operators, error) {
		o, norb, err := s.LoadOperators(ctx, step, role)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if norb != t.Norb() {
			return nil, errors.Errorf("%s operators of step %q built against %d orbitals, table has %d", role, step, norb, t.Norb())
		}
		return o, nil
	})
}

func (s *Store) SaveIntegrals(ctx context.Context, name string, t *integrals.Table) error {
	one, err := mat.NewVecDense(len(t.One()), t.One()).MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "")
	}
	two, err := mat.NewVecDense(len(t.Two()), t.Two()).MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (name, norb, one, two) VALUES (?, ?, ?, ?)`, tableIntegrals)
	if _, err := s.db.ExecContext(ctx, sqlStr, name, t.Norb(), one, two); err != nil {
		return errors.Wrap(err, sqlStr)
	}
	return nil
}

func (s *Store) LoadIntegrals(ctx context.Context, name string) (*integrals.Table, error) {
	var norb int
	var oneData, twoData []byte
	sqlStr := fmt.Sprintf(`SELECT norb, one, two FROM %s WHERE name=?`, tableIntegrals)
	err := s.db.QueryRowContext(ctx, sqlStr, name).Scan(&norb, &oneData, &twoData)
	switch {
	case err == sql.ErrNoRows:
		return nil, errors.Errorf("no integrals %q", name)
	case err != nil:
		return nil, errors.Wrap(err, sqlStr)
	}

	var one, two mat.VecDense
	if err := one.UnmarshalBinary(oneData); err != nil {
		return nil, errors.Wrap(err, "one-electron")
	}
	if err := two.UnmarshalBinary(twoData); err != nil {
		return nil, errors.Wrap(err, "two-electron")
	}
	t, err := integrals.FromData(norb, one.RawVector().Data, two.RawVector().Data)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return t, nil
}

func (s *Store) inTx(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (s *Store) query(ctx context.Context, sqlStr string, args []any, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return errors.Wrap(err, sqlStr)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, sqlStr)
	}
	return nil
}

// encodeArray returns the comma separated shape and the gonum binary encoding of the data of a.
func encodeArray(a *ndarray.Array) (string, []byte, error) {
	dims := make([]string, 0, len(a.Shape()))
	for _, d := range a.Shape() {
		dims = append(dims, strconv.Itoa(d))
	}
	data, err := mat.NewVecDense(a.Size(), a.Data()).MarshalBinary()
	if err != nil {
		return "", nil, errors.Wrap(err, "")
	}
	return strings.Join(dims, ","), data, nil
}

func decodeArray(shapeStr string, data []byte) (*ndarray.Array, error) {
	var shape []int
	size := 1
	for _, f := range strings.Split(shapeStr, ",") {
		d, err := strconv.Atoi(f)
		if err != nil || d <= 0 {
			return nil, errors.Errorf("bad shape %q", shapeStr)
		}
		shape = append(shape, d)
		size *= d
	}

	var v mat.VecDense
	if err := v.UnmarshalBinary(data); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if v.Len() != size {
		return nil, errors.Errorf("%d elements for shape %v", v.Len(), shape)
	}
	return ndarray.FromData(v.RawVector().Data, shape...), nil
}
