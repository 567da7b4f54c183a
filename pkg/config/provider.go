package config

import (
	"errors"
	"fmt"
	"runtime"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// Network source types
const (
	SourceGeoJSON  = "geojson"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// Compression codecs for the msgpack sink
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
)

// Configuration backends
const (
	BackendYAML   = "yaml"
	BackendSQLite = "sqlite"
)

const (
	defaultIDProperty  = "id"
	defaultVertexTable = "stream_vertices"
	defaultServerPort  = 8080
)

// ConfigData represents the complete configuration of a profile extraction run
type ConfigData struct {
	Network       NetworkData       `json:"network" yaml:"network"`
	Rasters       RasterData        `json:"rasters" yaml:"rasters"`
	Selection     SelectionData     `json:"selection" yaml:"selection"`
	Profile       ProfileData       `json:"profile" yaml:"profile"`
	Run           RunData           `json:"run" yaml:"run"`
	Sinks         SinkData          `json:"sinks,omitempty" yaml:"sinks,omitempty"`
	NetworkExport NetworkExportData `json:"network_export,omitempty" yaml:"network_export,omitempty"`
	Server        ServerData        `json:"server,omitempty" yaml:"server,omitempty"`
}

// NetworkData describes where the stream segments come from
type NetworkData struct {
	Source           string  `json:"source" yaml:"source"`
	Path             string  `json:"path,omitempty" yaml:"path,omitempty"`
	IDProperty       string  `json:"id_property,omitempty" yaml:"id_property,omitempty"`
	ConnectionString string  `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`
	Table            string  `json:"table,omitempty" yaml:"table,omitempty"`
	SnapTolerance    float64 `json:"snap_tolerance,omitempty" yaml:"snap_tolerance,omitempty"`
	// MinCatchmentCells is the threshold the stream network was delineated with
	MinCatchmentCells int `json:"min_catchment_cells,omitempty" yaml:"min_catchment_cells,omitempty"`
}

// RasterData points at the filled DEM and flow accumulation grids
type RasterData struct {
	Elevation           string  `json:"elevation" yaml:"elevation"`
	Accumulation        string  `json:"accumulation" yaml:"accumulation"`
	CellAreaM2          float64 `json:"cell_area_m2,omitempty" yaml:"cell_area_m2,omitempty"`
	MaxSamplesPerSecond float64 `json:"max_samples_per_second,omitempty" yaml:"max_samples_per_second,omitempty"`
	SampleBurst         int     `json:"sample_burst,omitempty" yaml:"sample_burst,omitempty"`
}

// SelectionData controls which heads are extracted
type SelectionData struct {
	Rivers int   `json:"rivers,omitempty" yaml:"rivers,omitempty"`
	Seed   int64 `json:"seed" yaml:"seed"`
}

// ProfileData controls profile construction
type ProfileData struct {
	DropOrigin bool `json:"drop_origin,omitempty" yaml:"drop_origin,omitempty"`
}

// RunData controls scheduling
type RunData struct {
	Workers  int  `json:"workers,omitempty" yaml:"workers,omitempty"`
	FailFast bool `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`
}

// SinkData holds the configuration for the profile sinks. More than one sink can be used
// simultaneously.
type SinkData struct {
	CSV         *CSVSinkData         `json:"csv,omitempty" yaml:"csv,omitempty"`
	MsgPack     *MsgPackSinkData     `json:"msgpack,omitempty" yaml:"msgpack,omitempty"`
	SQLite      *SQLiteSinkData      `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres    *PostgresSinkData    `json:"postgres,omitempty" yaml:"postgres,omitempty"`
	ObjectStore *ObjectStoreSinkData `json:"objectstore,omitempty" yaml:"objectstore,omitempty"`
}

type CSVSinkData struct {
	Dir string `json:"dir" yaml:"dir"`
}

type MsgPackSinkData struct {
	Dir         string `json:"dir" yaml:"dir"`
	Compression string `json:"compression,omitempty" yaml:"compression,omitempty"`
}

type SQLiteSinkData struct {
	Path string `json:"path" yaml:"path"`
}

type PostgresSinkData struct {
	ConnectionString string `json:"connection_string" yaml:"connection_string"`
}

type ObjectStoreSinkData struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	UseSSL    bool   `json:"use_ssl,omitempty" yaml:"use_ssl,omitempty"`
}

// NetworkExportData configures export of the resolved topology
type NetworkExportData struct {
	Neo4j *Neo4jData `json:"neo4j,omitempty" yaml:"neo4j,omitempty"`
}

type Neo4jData struct {
	URI      string `json:"uri" yaml:"uri"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// ServerData configures the profile API server
type ServerData struct {
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	// Database is the SQLite profile store the server reads from
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// ApplyDefaults fills in unset values
func (c *ConfigData) ApplyDefaults() {
	if c.Network.IDProperty == "" {
		c.Network.IDProperty = defaultIDProperty
	}
	if c.Network.Table == "" {
		c.Network.Table = defaultVertexTable
	}
	if c.Run.Workers <= 0 {
		c.Run.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Sinks.MsgPack != nil && c.Sinks.MsgPack.Compression == "" {
		c.Sinks.MsgPack.Compression = CompressionNone
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	if c.Server.Database == "" && c.Sinks.SQLite != nil {
		c.Server.Database = c.Sinks.SQLite.Path
	}
}

// Validate checks the configuration needed for an extraction run
func (c *ConfigData) Validate() error {
	var errs []error

	switch c.Network.Source {
	case SourceGeoJSON, SourceSQLite:
		if c.Network.Path == "" {
			errs = append(errs, fmt.Errorf("network.path is required for source %q", c.Network.Source))
		}
	case SourcePostgres:
		if c.Network.ConnectionString == "" {
			errs = append(errs, errors.New("network.connection_string is required for source \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported network.source %q: use geojson, sqlite or postgres", c.Network.Source))
	}
	if c.Network.SnapTolerance < 0 {
		errs = append(errs, errors.New("network.snap_tolerance must not be negative"))
	}

	if c.Rasters.Elevation == "" {
		errs = append(errs, errors.New("rasters.elevation is required"))
	}
	if c.Rasters.Accumulation == "" {
		errs = append(errs, errors.New("rasters.accumulation is required"))
	}
	if c.Rasters.CellAreaM2 < 0 {
		errs = append(errs, errors.New("rasters.cell_area_m2 must not be negative"))
	}
	if c.Selection.Rivers < 0 {
		errs = append(errs, errors.New("selection.rivers must not be negative"))
	}

	if m := c.Sinks.MsgPack; m != nil {
		switch m.Compression {
		case "", CompressionNone, CompressionZstd, CompressionLZ4:
		default:
			errs = append(errs, fmt.Errorf("unsupported sinks.msgpack.compression %q", m.Compression))
		}
	}
	if o := c.Sinks.ObjectStore; o != nil && (o.Endpoint == "" || o.Bucket == "") {
		errs = append(errs, errors.New("sinks.objectstore requires endpoint and bucket"))
	}

	return errors.Join(errs...)
}

// Load reads the configuration at filename from the named backend
func Load(filename, backend string) (*ConfigData, error) {
	var provider ConfigProvider
	var err error

	switch backend {
	case BackendYAML:
		provider = NewYAMLProvider(filename)
	case BackendSQLite:
		provider, err = NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", backend)
	}
	defer provider.Close()

	return provider.LoadConfig()
}
