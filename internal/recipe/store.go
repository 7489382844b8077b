package recipe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a recipe to modify does not exist for the user.
var ErrNotFound = errors.New("recipe not found")

// ErrDuplicate is returned when the user already saved a recipe for the same file.
var ErrDuplicate = errors.New("recipe already saved for this file")

// Store defines the interface for recipe data operations.
type Store interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*StoredRecipe, error)
	FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*StoredRecipe, error)
	Create(ctx context.Context, r *StoredRecipe) error
	Get(ctx context.Context, userID, id string) (*StoredRecipe, error)
	List(ctx context.Context, userID string) ([]*StoredRecipe, error)
	Update(ctx context.Context, r *StoredRecipe) error
	Delete(ctx context.Context, userID, id string) error
	Ping(ctx context.Context) error
}

// PostgresStore implements Store for PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS recipes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		recipe_name TEXT NOT NULL,
		author TEXT,
		description TEXT,
		link TEXT,
		servings INTEGER,
		prep_time_minutes INTEGER,
		cook_time_minutes INTEGER,
		ingredients TEXT NOT NULL,
		instructions TEXT NOT NULL,
		nutrition TEXT,
		file_hash TEXT,
		image TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, file_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS recipes_file_hash_idx ON recipes (file_hash)`,
	`CREATE INDEX IF NOT EXISTS recipes_user_created_idx ON recipes (user_id, created_at DESC)`,
}

const selectRecipe = `SELECT id, user_id, recipe_name, author, description, link, servings,
	prep_time_minutes, cook_time_minutes, ingredients, instructions, nutrition,
	file_hash, image, created_at, updated_at FROM recipes`

// NewPostgresStore connects to the database and creates the recipes table if needed.
func NewPostgresStore(dataSourceName string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create recipes schema: %w", err)
		}
	}

	return &PostgresStore{db: db}, nil
}

// FindByFingerprint returns the newest recipe saved for a file by any user.
func (s *PostgresStore) FindByFingerprint(ctx context.Context, fingerprint string) (*StoredRecipe, error) {
	return s.getOne(ctx, selectRecipe+" WHERE file_hash = $1 ORDER BY created_at DESC LIMIT 1", fingerprint)
}

// FindByUserAndFingerprint returns the user's recipe for a file, if any.
func (s *PostgresStore) FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*StoredRecipe, error) {
	return s.getOne(ctx, selectRecipe+" WHERE user_id = $1 AND file_hash = $2", userID, fingerprint)
}

// Get retrieves a recipe by id, scoped to its owner.
func (s *PostgresStore) Get(ctx context.Context, userID, id string) (*StoredRecipe, error) {
	return s.getOne(ctx, selectRecipe+" WHERE id = $1 AND user_id = $2", id, userID)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, args ...any) (*StoredRecipe, error) {
	var row recipeRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Recipe not found
		}
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return fromRow(row)
}

// List returns the user's recipes, newest first.
func (s *PostgresStore) List(ctx context.Context, userID string) ([]*StoredRecipe, error) {
	var rows []recipeRow
	if err := s.db.SelectContext(ctx, &rows, selectRecipe+" WHERE user_id = $1 ORDER BY created_at DESC", userID); err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}

	recipes := make([]*StoredRecipe, 0, len(rows))
	for _, row := range rows {
		r, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}

// Create inserts a new recipe.
func (s *PostgresStore) Create(ctx context.Context, r *StoredRecipe) error {
	row, err := toRow(r)
	if err != nil {
		return err
	}

	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO recipes (id, user_id, recipe_name, author, description, link, servings,
			prep_time_minutes, cook_time_minutes, ingredients, instructions, nutrition,
			file_hash, image, created_at, updated_at)
		VALUES (:id, :user_id, :recipe_name, :author, :description, :link, :servings,
			:prep_time_minutes, :cook_time_minutes, :ingredients, :instructions, :nutrition,
			:file_hash, :image, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to save recipe: %w", err)
	}
	return nil
}

// Update overwrites the editable fields of an existing recipe.
func (s *PostgresStore) Update(ctx context.Context, r *StoredRecipe) error {
	row, err := toRow(r)
	if err != nil {
		return err
	}

	res, err := s.db.NamedExecContext(ctx,
		`UPDATE recipes SET recipe_name = :recipe_name, author = :author, description = :description,
			link = :link, servings = :servings, prep_time_minutes = :prep_time_minutes,
			cook_time_minutes = :cook_time_minutes, ingredients = :ingredients,
			instructions = :instructions, nutrition = :nutrition, image = :image,
			updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id`,
		row,
	)
	if err != nil {
		return fmt.Errorf("failed to update recipe: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a recipe owned by the user.
func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recipes WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	return expectAffected(res)
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
