package db

// KVSchema creates the single table backing the encrypted key-value store.
// Each row holds one whole document (the notes collection, the folder list,
// one draft); there are no partial updates.
const KVSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY NOT NULL,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`
