package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/rangeidx"
	"github.com/hupe1980/rangeidx/blobstore"
	"github.com/hupe1980/rangeidx/blobstore/httpstore"
	"github.com/hupe1980/rangeidx/blobstore/minio"
	"github.com/hupe1980/rangeidx/blobstore/s3"
	icache "github.com/hupe1980/rangeidx/internal/cache"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rangeidx",
		Short:        "Select and download records of indexed GRIB files",
		Long:         `Index GRIB files once, then fetch only the byte ranges of the records you select.`,
		SilenceUsage: true,
	}

	f := root.PersistentFlags()
	f.String("config", "", "YAML config file (default ./rangeidx.yaml)")
	f.String("cache-dir", "", "directory of persisted indexes")
	f.Int("threads", rangeidx.DefaultMaxThreads, "concurrent range requests")
	f.String("method", rangeidx.DefaultMethod, "grouping method, e.g. auto or cluster(5)")
	f.Bool("strict", false, "fail on selection keys the index does not know")
	f.Int64("block-cache", 0, "bytes of remote data cached in memory")
	f.StringSlice("s3-bucket", nil, "S3 buckets to mount as s3://<bucket>/")
	f.String("minio", "", "S3-compatible endpoint (host:port)")
	f.StringSlice("minio-bucket", nil, "buckets of --minio to mount as minio://<bucket>/")
	f.Bool("minio-secure", true, "use TLS for --minio")
	f.String("log-level", "warn", "debug, info, warn or error")
	f.String("log-format", "text", "text or json")
	f.String("log-file", "", "also write JSON logs to this file")

	root.AddCommand(
		newImportCmd(),
		newSelectCmd(),
		newPlanCmd(),
		newFetchCmd(),
		newConfigCmd(),
	)
	return root
}

// session is what a command needs to run: the configuration and a client
// built from it.
type session struct {
	cfg    *Config
	client *rangeidx.Client
	close  func() error
}

func newSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	transport, err := newTransport(ctx, cfg, logger)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	opts := []rangeidx.Option{
		rangeidx.WithLogger(logger),
		rangeidx.WithTransport(transport),
		rangeidx.WithMaxThreads(cfg.Threads),
		rangeidx.WithMethod(cfg.Method),
		rangeidx.WithStrict(cfg.Strict),
		rangeidx.WithAliases(cfg.Aliases),
	}
	if cfg.CacheDir != "" {
		opts = append(opts, rangeidx.WithCacheDir(cfg.CacheDir))
	}
	client, err := rangeidx.New(opts...)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	return &session{cfg: cfg, client: client, close: closeLog}, nil
}

func newTransport(ctx context.Context, cfg *Config, logger *rangeidx.Logger) (*blobstore.Transport, error) {
	l := logger.Logger
	opts := []blobstore.TransportOption{
		blobstore.WithTransportLogger(l),
		blobstore.WithMount("http://", httpstore.New("http://", httpstore.WithLogger(l))),
		blobstore.WithMount("https://", httpstore.New("https://", httpstore.WithLogger(l))),
	}
	for _, bucket := range cfg.S3Buckets {
		store, err := s3.New(ctx, bucket, "")
		if err != nil {
			return nil, fmt.Errorf("mount s3://%s: %w", bucket, err)
		}
		opts = append(opts, blobstore.WithMount("s3://"+bucket+"/", store))
	}
	if cfg.MinIO.Endpoint != "" {
		for _, bucket := range cfg.MinIO.Buckets {
			store, err := minio.Dial(minio.Config{
				Endpoint:  cfg.MinIO.Endpoint,
				AccessKey: cfg.MinIO.AccessKey,
				SecretKey: cfg.MinIO.SecretKey,
				Secure:    cfg.MinIO.Secure,
			}, bucket, "")
			if err != nil {
				return nil, fmt.Errorf("mount minio://%s: %w", bucket, err)
			}
			opts = append(opts, blobstore.WithMount("minio://"+bucket+"/", store))
		}
	}
	if cfg.BlockCacheBytes > 0 {
		opts = append(opts, blobstore.WithBlockCache(icache.NewShardedLRUBlockCache(cfg.BlockCacheBytes, nil), blobstore.DefaultBlockSize))
	}
	return blobstore.NewTransport(opts...), nil
}
