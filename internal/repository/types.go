package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

type HistoryEntry struct {
	ID       int64
	URI      string
	Title    string
	Artist   string
	PlayedAt int64
}
