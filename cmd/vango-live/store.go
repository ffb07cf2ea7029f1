package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vango-dev/vango-live/internal/config"
	"github.com/vango-dev/vango-live/internal/errors"
	"github.com/vango-dev/vango-live/pkg/store"
)

// openStore builds the snapshot store named by cfg. An empty backend
// returns nil, which disables persistence.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendSQLite:
		db, err := sql.Open("sqlite3", cfg.Path)
		if err != nil {
			return nil, errors.New(errors.CodeStoreOpen).WithField("store.path").Wrap(err)
		}
		opts := []store.SQLStoreOption{store.WithSQLDialect(store.DialectSQLite)}
		if cfg.Table != "" {
			opts = append(opts, store.WithSQLTableName(cfg.Table))
		}
		st := store.NewSQLStore(db, opts...)
		if err := st.CreateTable(ctx); err != nil {
			_ = st.Close()
			return nil, errors.New(errors.CodeStoreOpen).
				Wrap(err).
				WithSuggestion(fmt.Sprintf("check that %s is writable", cfg.Path))
		}
		return st, nil
	case config.BackendS3:
		return store.NewS3Store(newS3Client(cfg), cfg.Bucket, cfg.Prefix), nil
	}
	return nil, errors.New(errors.CodeUnknownStore).WithField("store.backend").Wrap(fmt.Errorf("%q", cfg.Backend))
}

// newS3Client builds a client from the standard AWS environment variables.
// A custom endpoint (MinIO, localstack) switches to path-style addressing.
func newS3Client(cfg config.StoreConfig) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		})),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}
