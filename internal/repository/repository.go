package repository

import (
	"database/sql"
	"time"
)

type Repository struct {
	queryTimeout time.Duration
	dbpool       *sql.DB
}

func NewRepository(dbpool *sql.DB, queryTimeout time.Duration) *Repository {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &Repository{
		queryTimeout: queryTimeout,
		dbpool:       dbpool,
	}
}
