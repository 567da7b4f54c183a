package config

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	_ "modernc.org/sqlite"
)

const configSchema = `
CREATE TABLE IF NOT EXISTS config_values (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLiteProvider implements ConfigProvider for SQLite database configuration. Settings are
// stored one row per dotted key, e.g. "network.source" or "sinks.csv.dir".
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(configSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create config schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	rows, err := s.db.Query(`SELECT key, value FROM config_values ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query config values: %w", err)
	}
	defer rows.Close()

	config := &ConfigData{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		b, ok := bindingsByKey[key]
		if !ok {
			return nil, fmt.Errorf("unknown configuration key %q", key)
		}
		if err := b.set(config, value); err != nil {
			return nil, fmt.Errorf("configuration key %q: %w", key, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	config.ApplyDefaults()
	return config, nil
}

// SaveConfig replaces the stored configuration with c
func (s *SQLiteProvider) SaveConfig(c *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM config_values`); err != nil {
		return fmt.Errorf("failed to clear config values: %w", err)
	}
	for _, b := range bindings {
		value, ok := b.get(c)
		if !ok {
			continue
		}
		if _, err := tx.Exec(`INSERT INTO config_values (key, value) VALUES (?, ?)`, b.key, value); err != nil {
			return fmt.Errorf("failed to store %s: %w", b.key, err)
		}
	}
	return tx.Commit()
}

// IsReadOnly returns false since SQLite configuration can be written with SaveConfig
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

// Keys returns every configuration key the SQLite provider understands
func Keys() []string {
	keys := make([]string, 0, len(bindings))
	for _, b := range bindings {
		keys = append(keys, b.key)
	}
	sort.Strings(keys)
	return keys
}

type binding struct {
	key string
	get func(*ConfigData) (string, bool)
	set func(*ConfigData, string) error
}

// field binds a dotted key to a location in ConfigData. at returns nil for an absent optional
// section unless alloc is set, in which case it creates the section. Zero values are not stored.
func field[T comparable](key string, at func(c *ConfigData, alloc bool) *T, parse func(string) (T, error), format func(T) string) binding {
	return binding{
		key: key,
		get: func(c *ConfigData) (string, bool) {
			p := at(c, false)
			var zero T
			if p == nil || *p == zero {
				return "", false
			}
			return format(*p), true
		},
		set: func(c *ConfigData, s string) error {
			v, err := parse(s)
			if err != nil {
				return err
			}
			*at(c, true) = v
			return nil
		},
	}
}

func str(key string, at func(*ConfigData, bool) *string) binding {
	return field(key, at, func(s string) (string, error) { return s, nil }, func(s string) string { return s })
}

func num(key string, at func(*ConfigData, bool) *float64) binding {
	return field(key, at,
		func(s string) (float64, error) { return strconv.ParseFloat(s, 64) },
		func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) })
}

func integer(key string, at func(*ConfigData, bool) *int) binding {
	return field(key, at, strconv.Atoi, strconv.Itoa)
}

func boolean(key string, at func(*ConfigData, bool) *bool) binding {
	return field(key, at, strconv.ParseBool, strconv.FormatBool)
}

func section[S any](get func(*ConfigData) **S) func(*ConfigData, bool) *S {
	return func(c *ConfigData, alloc bool) *S {
		p := get(c)
		if *p == nil {
			if !alloc {
				return nil
			}
			*p = new(S)
		}
		return *p
	}
}

var (
	csvSink     = section(func(c *ConfigData) **CSVSinkData { return &c.Sinks.CSV })
	msgpackSink = section(func(c *ConfigData) **MsgPackSinkData { return &c.Sinks.MsgPack })
	sqliteSink  = section(func(c *ConfigData) **SQLiteSinkData { return &c.Sinks.SQLite })
	pgSink      = section(func(c *ConfigData) **PostgresSinkData { return &c.Sinks.Postgres })
	objSink     = section(func(c *ConfigData) **ObjectStoreSinkData { return &c.Sinks.ObjectStore })
	neo4jExport = section(func(c *ConfigData) **Neo4jData { return &c.NetworkExport.Neo4j })
)

var bindings = []binding{
	str("network.source", func(c *ConfigData, _ bool) *string { return &c.Network.Source }),
	str("network.path", func(c *ConfigData, _ bool) *string { return &c.Network.Path }),
	str("network.id_property", func(c *ConfigData, _ bool) *string { return &c.Network.IDProperty }),
	str("network.connection_string", func(c *ConfigData, _ bool) *string { return &c.Network.ConnectionString }),
	str("network.table", func(c *ConfigData, _ bool) *string { return &c.Network.Table }),
	num("network.snap_tolerance", func(c *ConfigData, _ bool) *float64 { return &c.Network.SnapTolerance }),
	integer("network.min_catchment_cells", func(c *ConfigData, _ bool) *int { return &c.Network.MinCatchmentCells }),

	str("rasters.elevation", func(c *ConfigData, _ bool) *string { return &c.Rasters.Elevation }),
	str("rasters.accumulation", func(c *ConfigData, _ bool) *string { return &c.Rasters.Accumulation }),
	num("rasters.cell_area_m2", func(c *ConfigData, _ bool) *float64 { return &c.Rasters.CellAreaM2 }),
	num("rasters.max_samples_per_second", func(c *ConfigData, _ bool) *float64 { return &c.Rasters.MaxSamplesPerSecond }),
	integer("rasters.sample_burst", func(c *ConfigData, _ bool) *int { return &c.Rasters.SampleBurst }),

	integer("selection.rivers", func(c *ConfigData, _ bool) *int { return &c.Selection.Rivers }),
	field("selection.seed", func(c *ConfigData, _ bool) *int64 { return &c.Selection.Seed },
		func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) },
		func(v int64) string { return strconv.FormatInt(v, 10) }),

	boolean("profile.drop_origin", func(c *ConfigData, _ bool) *bool { return &c.Profile.DropOrigin }),

	integer("run.workers", func(c *ConfigData, _ bool) *int { return &c.Run.Workers }),
	boolean("run.fail_fast", func(c *ConfigData, _ bool) *bool { return &c.Run.FailFast }),

	str("sinks.csv.dir", func(c *ConfigData, a bool) *string { return strIn(csvSink(c, a), func(s *CSVSinkData) *string { return &s.Dir }) }),
	str("sinks.msgpack.dir", func(c *ConfigData, a bool) *string {
		return strIn(msgpackSink(c, a), func(s *MsgPackSinkData) *string { return &s.Dir })
	}),
	str("sinks.msgpack.compression", func(c *ConfigData, a bool) *string {
		return strIn(msgpackSink(c, a), func(s *MsgPackSinkData) *string { return &s.Compression })
	}),
	str("sinks.sqlite.path", func(c *ConfigData, a bool) *string {
		return strIn(sqliteSink(c, a), func(s *SQLiteSinkData) *string { return &s.Path })
	}),
	str("sinks.postgres.connection_string", func(c *ConfigData, a bool) *string {
		return strIn(pgSink(c, a), func(s *PostgresSinkData) *string { return &s.ConnectionString })
	}),
	str("sinks.objectstore.endpoint", func(c *ConfigData, a bool) *string {
		return strIn(objSink(c, a), func(s *ObjectStoreSinkData) *string { return &s.Endpoint })
	}),
	str("sinks.objectstore.bucket", func(c *ConfigData, a bool) *string {
		return strIn(objSink(c, a), func(s *ObjectStoreSinkData) *string { return &s.Bucket })
	}),
	str("sinks.objectstore.access_key", func(c *ConfigData, a bool) *string {
		return strIn(objSink(c, a), func(s *ObjectStoreSinkData) *string { return &s.AccessKey })
	}),
	str("sinks.objectstore.secret_key", func(c *ConfigData, a bool) *string {
		return strIn(objSink(c, a), func(s *ObjectStoreSinkData) *string { return &s.SecretKey })
	}),
	str("sinks.objectstore.region", func(c *ConfigData, a bool) *string {
		return strIn(objSink(c, a), func(s *ObjectStoreSinkData) *string { return &s.Region })
	}),
	str("sinks.objectstore.prefix", func(c *ConfigData, a bool) *string {
		return strIn(objSink(c, a), func(s *ObjectStoreSinkData) *string { return &s.Prefix })
	}),
	boolean("sinks.objectstore.use_ssl", func(c *ConfigData, a bool) *bool {
		if s := objSink(c, a); s != nil {
			return &s.UseSSL
		}
		return nil
	}),

	str("network_export.neo4j.uri", func(c *ConfigData, a bool) *string {
		return strIn(neo4jExport(c, a), func(s *Neo4jData) *string { return &s.URI })
	}),
	str("network_export.neo4j.username", func(c *ConfigData, a bool) *string {
		return strIn(neo4jExport(c, a), func(s *Neo4jData) *string { return &s.Username })
	}),
	str("network_export.neo4j.password", func(c *ConfigData, a bool) *string {
		return strIn(neo4jExport(c, a), func(s *Neo4jData) *string { return &s.Password })
	}),
	str("network_export.neo4j.database", func(c *ConfigData, a bool) *string {
		return strIn(neo4jExport(c, a), func(s *Neo4jData) *string { return &s.Database })
	}),

	str("server.listen_addr", func(c *ConfigData, _ bool) *string { return &c.Server.ListenAddr }),
	integer("server.port", func(c *ConfigData, _ bool) *int { return &c.Server.Port }),
	str("server.database", func(c *ConfigData, _ bool) *string { return &c.Server.Database }),
}

func strIn[S any](s *S, f func(*S) *string) *string {
	if s == nil {
		return nil
	}
	return f(s)
}

var bindingsByKey = func() map[string]binding {
	m := make(map[string]binding, len(bindings))
	for _, b := range bindings {
		m[b.key] = b
	}
	return m
}()
