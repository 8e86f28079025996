package pagedir

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/pagedir/blobstore"
	miniostore "github.com/hupe1980/pagedir/blobstore/minio"
	s3store "github.com/hupe1980/pagedir/blobstore/s3"
	"github.com/hupe1980/pagedir/codec"
)

// Config is the file form of the directory options.
//
//	page_store:
//	  type: sqlite
//	  path: ./index.db
//	checkpoint:
//	  type: s3
//	  bucket: my-bucket
//	  prefix: index/
//	  dynamodb_table: pagedir-commits
//	  compression: zstd
//	  retention: 3
//	  rate_limit: 52428800
//	memory_limit: 1073741824
//	maintenance: "@every 10m"
//	log:
//	  level: info
//	  format: json
type Config struct {
	PageStore      PageStoreConfig  `yaml:"page_store"`
	Checkpoint     CheckpointConfig `yaml:"checkpoint"`
	MemoryLimit    int64            `yaml:"memory_limit"`
	ComponentCache *int64           `yaml:"component_cache"`
	Maintenance    string           `yaml:"maintenance"`
	Codec          string           `yaml:"codec"`
	Log            LogConfig        `yaml:"log"`
}

// PageStoreConfig selects the page store.
type PageStoreConfig struct {
	// Type is "memory" (default), "file" or "sqlite".
	Type string `yaml:"type"`
	// Path is the page file or the SQLite DSN.
	Path string `yaml:"path"`
}

// CheckpointConfig selects the checkpoint blob store.
type CheckpointConfig struct {
	// Type is "" (no checkpoints), "memory", "local", "s3" or "minio".
	Type string `yaml:"type"`
	// Path is the root directory of a local store.
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	// DynamoDBTable, with type s3, commits CURRENT through DynamoDB.
	DynamoDBTable string `yaml:"dynamodb_table"`

	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`

	Compression string `yaml:"compression"`
	Retention   int    `yaml:"retention"`
	RateLimit   int64  `yaml:"rate_limit"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error". Empty disables logging.
	Level string `yaml:"level"`
	// Format is "text" (default) or "json".
	Format string `yaml:"format"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "pagedir: read config %s", path)
	}
	return ParseConfig(b)
}

// ParseConfig parses a YAML config. Unknown keys are rejected.
func ParseConfig(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "pagedir: parse config")
	}
	return &cfg, nil
}

// Options turns the config into options for Open. Stores are opened here; cloud
// clients use the default AWS credential chain or the MinIO keys in the config.
func (c *Config) Options(ctx context.Context) ([]Option, error) {
	var opts []Option

	if lvl := c.Log.Level; lvl != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(lvl)); err != nil {
			return nil, errors.Wrapf(err, "pagedir: log level %q", lvl)
		}
		switch strings.ToLower(c.Log.Format) {
		case "", "text":
			opts = append(opts, WithLogger(NewTextLogger(level)))
		case "json":
			opts = append(opts, WithLogger(NewJSONLogger(level)))
		default:
			return nil, errors.Newf("pagedir: unknown log format %q", c.Log.Format)
		}
	}

	if c.Codec != "" {
		cd, ok := codec.ByName(c.Codec)
		if !ok {
			return nil, errors.Newf("pagedir: unknown codec %q", c.Codec)
		}
		opts = append(opts, WithCodec(cd))
	}

	if c.MemoryLimit > 0 {
		opts = append(opts, WithMemoryLimit(c.MemoryLimit))
	}
	if c.ComponentCache != nil {
		opts = append(opts, WithComponentCache(*c.ComponentCache))
	}
	if c.Maintenance != "" {
		opts = append(opts, WithMaintenanceSchedule(c.Maintenance))
	}

	cp, err := c.Checkpoint.options(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, cp...)

	// The page store is opened last so that no error above leaks it.
	store, err := c.PageStore.open()
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, WithPageStore(store))
	}
	return opts, nil
}

func (c PageStoreConfig) open() (PageStore, error) {
	switch c.Type {
	case "", "memory":
		return nil, nil
	case "file":
		if c.Path == "" {
			return nil, errors.New("pagedir: file page store needs a path")
		}
		return OpenFilePageStore(c.Path)
	case "sqlite":
		if c.Path == "" {
			return nil, errors.New("pagedir: sqlite page store needs a path")
		}
		return OpenSQLitePageStore(c.Path)
	default:
		return nil, errors.Newf("pagedir: unknown page store type %q", c.Type)
	}
}

func (c CheckpointConfig) options(ctx context.Context) ([]Option, error) {
	if c.Type == "" {
		return nil, nil
	}

	var opts []Option
	if c.Compression != "" {
		comp, err := ParseCompression(c.Compression)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCompression(comp))
	}
	if c.Retention > 0 {
		opts = append(opts, WithCheckpointRetention(c.Retention))
	}
	if c.RateLimit > 0 {
		opts = append(opts, WithCheckpointRateLimit(c.RateLimit))
	}

	store, err := c.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	return append(opts, WithBlobStore(store)), nil
}

func (c CheckpointConfig) blobStore(ctx context.Context) (blobstore.BlobStore, error) {
	switch c.Type {
	case "memory":
		return blobstore.NewMemoryStore(), nil
	case "local":
		if c.Path == "" {
			return nil, errors.New("pagedir: local checkpoint store needs a path")
		}
		return blobstore.NewLocalStore(c.Path), nil
	case "s3":
		if c.Bucket == "" {
			return nil, errors.New("pagedir: s3 checkpoint store needs a bucket")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "pagedir: load aws config")
		}
		store := s3store.NewStore(awss3.NewFromConfig(awsCfg), c.Bucket, c.Prefix)
		if c.DynamoDBTable == "" {
			return store, nil
		}
		baseURI := "s3://" + c.Bucket + "/" + c.Prefix
		return s3store.NewDDBCommitStore(store, dynamodb.NewFromConfig(awsCfg), c.DynamoDBTable, baseURI), nil
	case "minio":
		if c.Endpoint == "" || c.Bucket == "" {
			return nil, errors.New("pagedir: minio checkpoint store needs an endpoint and a bucket")
		}
		client, err := minio.New(c.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
			Secure: c.Secure,
		})
		if err != nil {
			return nil, errors.Wrap(err, "pagedir: minio client")
		}
		return miniostore.NewStore(client, c.Bucket, c.Prefix), nil
	default:
		return nil, errors.Newf("pagedir: unknown checkpoint type %q", c.Type)
	}
}
