package app

import (
	"database/sql"
	"fmt"

	"oppline/internal/config"
	"oppline/internal/db"
	"oppline/internal/engine"
	"oppline/internal/migrate"
	"oppline/internal/repo"
)

// App bundles the open database, resolved configuration and engine for one
// workspace. Both the CLI and the server go through Open so startup behaves
// the same everywhere.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Repo   repo.Repo
}

// Open opens the workspace database, applies pending migrations and loads
// oppline.yml, falling back to defaults when the file is absent.
func Open(workspace string) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	eng := engine.New(conn, cfg)
	return &App{DB: conn, Config: cfg, Engine: eng, Repo: eng.Repo}, nil
}

// Close releases the database handle.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
