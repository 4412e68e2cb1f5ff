package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

type FileInfo struct {
	Name     string `json:"name"`
	Version  int64  `json:"version"`
	Checksum string `json:"checksum"`
}

type Status struct {
	FileInfo
	Applied bool `json:"applied"`
}

// Service applies the SQL migrations shipped in the binary with goose.
type Service struct {
	fsys fs.FS
	dir  string
}

func NewService() *Service {
	return &Service{fsys: embedded, dir: "sql"}
}

func NewServiceFS(fsys fs.FS, dir string) *Service {
	return &Service{fsys: fsys, dir: dir}
}

// gooseUpContext and gooseVersionContext are seams for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

var gooseVersionContext = func(ctx context.Context, db *sql.DB) (int64, error) {
	return goose.GetDBVersionContext(ctx, db)
}

func (s *Service) configure() error {
	goose.SetBaseFS(s.fsys)
	goose.SetLogger(goose.NopLogger())
	return goose.SetDialect("postgres")
}

func (s *Service) Up(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database is required")
	}
	if err := s.configure(); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	if err := gooseUpContext(ctx, db, s.dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Service) Version(ctx context.Context, db *sql.DB) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("database is required")
	}
	if err := s.configure(); err != nil {
		return 0, fmt.Errorf("configure goose: %w", err)
	}
	v, err := gooseVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func (s *Service) List() ([]FileInfo, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	out := make([]FileInfo, 0)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, err := goose.NumericComponent(e.Name())
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", e.Name(), err)
		}
		b, err := fs.ReadFile(s.fsys, path.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(b)
		out = append(out, FileInfo{Name: e.Name(), Version: version, Checksum: hex.EncodeToString(sum[:])})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Status marks every file at or below the database's schema version as
// applied.
func (s *Service) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	current, err := s.Version(ctx, db)
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(files))
	for _, f := range files {
		out = append(out, Status{FileInfo: f, Applied: f.Version <= current})
	}
	return out, nil
}
