package migration

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Database is satisfied by the database manager.
type Database interface {
	Migrate() error
	Exec(stmt string) error
}

type Runner struct {
	db         Database
	migrations fs.FS
	logger     *logrus.Logger
}

func NewRunner(db Database, logger *logrus.Logger) *Runner {
	sub, _ := fs.Sub(migrationsFS, "sql")
	return &Runner{db: db, migrations: sub, logger: logger}
}

// RunMigrations applies the gorm models, then every embedded SQL file in
// name order. SQL files must be idempotent; they run on every start.
func (r *Runner) RunMigrations() error {
	r.logger.Info("Starting database migrations...")

	if err := r.db.Migrate(); err != nil {
		return fmt.Errorf("GORM auto-migration failed: %w", err)
	}

	files, err := fs.Glob(r.migrations, "*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		content, err := fs.ReadFile(r.migrations, name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		for i, stmt := range splitStatements(string(content)) {
			r.logger.WithFields(logrus.Fields{
				"file":      name,
				"statement": i + 1,
			}).Debug("Executing SQL statement")

			if err := r.db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to execute statement %d in %s: %w", i+1, name, err)
			}
		}
		r.logger.WithField("file", name).Info("Migration executed successfully")
	}

	r.logger.Info("Database migrations completed successfully")
	return nil
}

// splitStatements splits on semicolons outside dollar-quoted bodies and
// drops full-line comments.
func splitStatements(sql string) []string {
	var lines []string
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	sql = strings.Join(lines, "\n")

	var statements []string
	var current strings.Builder
	inDollar := false

	for i := 0; i < len(sql); i++ {
		if strings.HasPrefix(sql[i:], "$$") {
			inDollar = !inDollar
			current.WriteString("$$")
			i++
			continue
		}
		if sql[i] == ';' && !inDollar {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}
		current.WriteByte(sql[i])
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}

	return statements
}
