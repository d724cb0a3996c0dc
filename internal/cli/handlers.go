package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/BartekS5/blobmigrate/internal/config"
	"github.com/BartekS5/blobmigrate/internal/cursor"
	"github.com/BartekS5/blobmigrate/internal/docstore"
	"github.com/BartekS5/blobmigrate/internal/etl"
	"github.com/BartekS5/blobmigrate/pkg/database"
	"github.com/BartekS5/blobmigrate/pkg/logger"
	"github.com/BartekS5/blobmigrate/pkg/models"
	"github.com/BartekS5/blobmigrate/pkg/progress"
)

type cursorStore interface {
	etl.CursorStore
	All(ctx context.Context) (map[string]int64, error)
}

// session owns the connections opened for one command invocation. Stores are
// connected lazily so that commands only touch what they use.
type session struct {
	cfg     *config.Config
	catalog *models.Catalog
	log     *logrus.Logger
	out     io.Writer

	sqlDB   *sqlx.DB
	mongo   *mongo.Client
	closers []func() error
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, &etl.Error{Kind: etl.Config, Op: "config", Err: err}
	}
	catalog, err := config.LoadCatalog(cfg.EntitiesFile)
	if err != nil {
		return nil, &etl.Error{Kind: etl.Config, Op: "config", Err: err}
	}
	log, closeLog, err := logger.New(logger.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		Out:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, &etl.Error{Kind: etl.Config, Op: "config", Err: err}
	}
	return &session{
		cfg:     cfg,
		catalog: catalog,
		log:     log,
		out:     cmd.OutOrStdout(),
		closers: []func() error{closeLog},
	}, nil
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.WithError(err).Warn("failed to release resource")
		}
	}
}

func (s *session) requireEntity(op, entity string) error {
	if _, ok := s.catalog.Lookup(entity); !ok {
		return &etl.Error{Kind: etl.Config, Op: op, Err: fmt.Errorf("unknown entity type %q (known: %v)", entity, s.catalog.Names())}
	}
	return nil
}

func (s *session) connectSQL(ctx context.Context) (*sqlx.DB, etl.Dialect, error) {
	dialect, err := etl.DialectFor(s.cfg.SQLDialect)
	if err != nil {
		return nil, etl.Dialect{}, err
	}
	if s.sqlDB != nil {
		return s.sqlDB, dialect, nil
	}
	db, err := database.ConnectSQL(ctx, dialect.Driver, s.cfg.SQLConnString)
	if err != nil {
		return nil, dialect, classifyConnect("sql.connect", err)
	}
	s.log.WithField("dialect", dialect.Driver).Debug("connected to source database")
	s.sqlDB = db
	s.closers = append(s.closers, db.Close)
	return db, dialect, nil
}

func (s *session) mongoDatabase(ctx context.Context) (*mongo.Database, error) {
	if s.mongo == nil {
		client, err := database.ConnectMongo(ctx, s.cfg.MongoConnString)
		if err != nil {
			return nil, classifyConnect("mongo.connect", err)
		}
		s.log.WithField("database", s.cfg.MongoDatabase).Debug("connected to MongoDB")
		s.mongo = client
		s.closers = append(s.closers, func() error {
			return client.Disconnect(context.Background())
		})
	}
	return s.mongo.Database(s.cfg.MongoDatabase), nil
}

func (s *session) pager(ctx context.Context, pageSize int) (*etl.SQLPager, error) {
	db, dialect, err := s.connectSQL(ctx)
	if err != nil {
		return nil, err
	}
	return etl.NewSQLPager(db, dialect, s.catalog, pageSize, s.log)
}

func (s *session) uploader(ctx context.Context) (etl.Uploader, error) {
	switch s.cfg.Target {
	case config.TargetGridFS:
		db, err := s.mongoDatabase(ctx)
		if err != nil {
			return nil, err
		}
		up, err := docstore.NewGridFSUploader(db, s.cfg.GridFSBucket, s.cfg.UploadTimeout, s.log)
		if err != nil {
			return nil, &etl.Error{Kind: etl.Transient, Op: "gridfs.connect", Err: err}
		}
		return up, nil
	case config.TargetWebDAV:
		up := docstore.NewWebDAVUploader(docstore.WebDAVConfig{
			BaseURL:  s.cfg.WebDAVURL,
			Root:     s.cfg.WebDAVRoot,
			User:     s.cfg.WebDAVUser,
			Password: s.cfg.WebDAVPassword,
			Timeout:  s.cfg.UploadTimeout,
		}, s.log)
		s.closers = append(s.closers, up.Close)
		return up, nil
	case config.TargetS3:
		up, err := docstore.NewS3Uploader(docstore.S3Config{
			Endpoint:  s.cfg.S3Endpoint,
			AccessKey: s.cfg.S3AccessKey,
			SecretKey: s.cfg.S3SecretKey,
			Bucket:    s.cfg.S3Bucket,
			Prefix:    s.cfg.S3Prefix,
			Region:    s.cfg.S3Region,
			UseSSL:    s.cfg.S3UseSSL,
			Timeout:   s.cfg.UploadTimeout,
		}, s.log)
		if err != nil {
			return nil, &etl.Error{Kind: etl.Config, Op: "s3.connect", Err: err}
		}
		if err := up.EnsureBucket(ctx); err != nil {
			return nil, &etl.Error{Kind: etl.Transient, Op: "s3.connect", Err: err}
		}
		return up, nil
	default:
		return nil, &etl.Error{Kind: etl.Config, Op: "uploader", Err: fmt.Errorf("unknown target %q", s.cfg.Target)}
	}
}

func (s *session) cursors(ctx context.Context) (cursorStore, error) {
	if s.cfg.CursorStore == config.CursorMongo {
		db, err := s.mongoDatabase(ctx)
		if err != nil {
			return nil, err
		}
		return cursor.NewMongoStore(db, cursor.DefaultCollection), nil
	}
	store := cursor.NewFileStore(s.cfg.CursorFile)
	s.log.WithField("path", store.Path()).Debug("using cursor file")
	return store, nil
}

// resolveFrom picks the first OrderKey to migrate: an explicit --from wins,
// then the stored cursor plus one, then 0.
func (s *session) resolveFrom(ctx context.Context, store cursorStore, opts *MigrateOptions) (int64, error) {
	if opts.HasFrom {
		return opts.From, nil
	}
	last, ok, err := store.Load(ctx, opts.Entity)
	if err != nil {
		return 0, &etl.Error{Kind: etl.Transient, Op: "cursor.load", Err: err}
	}
	if !ok {
		return 0, nil
	}
	s.log.WithFields(logrus.Fields{"entity": opts.Entity, "cursor": last}).Info("resuming from stored cursor")
	return last + 1, nil
}

const snapshotInterval = 10 * time.Second

// watchTransfer logs the orchestrator's counters at debug level while a
// transfer is active. The returned function stops the watcher and waits for it.
func watchTransfer(o *etl.Orchestrator, log logrus.FieldLogger, every time.Duration) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				snap := o.Snapshot()
				if !snap.Active {
					continue
				}
				log.WithFields(logrus.Fields{
					"processed":   snap.Processed,
					"total":       snap.Total,
					"bytes":       snap.BytesProcessed,
					"bytes_total": snap.BytesTotal,
				}).Debug("transfer in progress")
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func classifyConnect(op string, err error) error {
	if errors.Is(err, database.ErrAccessDenied) {
		return &etl.Error{Kind: etl.Config, Op: op, Err: err}
	}
	return &etl.Error{Kind: etl.Transient, Op: op, Err: err}
}

func runMigration(cmd *cobra.Command, opts *MigrateOptions) error {
	ctx := cmd.Context()
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireEntity("migrate.run", opts.Entity); err != nil {
		return err
	}
	pager, err := s.pager(ctx, opts.PageSize)
	if err != nil {
		return err
	}
	store, err := s.cursors(ctx)
	if err != nil {
		return err
	}
	from, err := s.resolveFrom(ctx, store, opts)
	if err != nil {
		return err
	}

	pipeline := &etl.Pipeline{
		Pager:     pager,
		Cursors:   store,
		ChunkSize: opts.ChunkSize,
		DryRun:    opts.DryRun,
		Log:       s.log,
	}
	if !opts.DryRun {
		up, err := s.uploader(ctx)
		if err != nil {
			return err
		}
		pipeline.Orchestrator = etl.NewOrchestrator(up, progress.NewReporter(s.out), opts.Label, s.log)
	}

	s.log.WithFields(logrus.Fields{
		"entity":    opts.Entity,
		"from":      from,
		"page_size": pager.PageSize(),
		"target":    s.cfg.Target,
	}).Debug("pipeline configured")
	if pipeline.Orchestrator != nil && s.log.IsLevelEnabled(logrus.DebugLevel) {
		stop := watchTransfer(pipeline.Orchestrator, s.log, snapshotInterval)
		defer stop()
	}

	sum, err := pipeline.Run(ctx, opts.Entity, from)
	verb := "Migrated"
	if opts.DryRun {
		verb = "Would migrate"
	}
	fmt.Fprintf(s.out, "%s %d %s records (%s) in %s, cursor %d\n",
		verb, sum.Rows, sum.Entity, humanize.Bytes(uint64(sum.Bytes)), sum.Duration.Round(time.Millisecond), sum.Cursor)
	if err != nil {
		fmt.Fprintf(s.out, "Run %s stopped; rerun to resume from OrderKey %d\n", sum.RunID, sum.Cursor+1)
		return err
	}
	return nil
}

func runCount(cmd *cobra.Command, opts *MigrateOptions) error {
	ctx := cmd.Context()
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireEntity("migrate.count", opts.Entity); err != nil {
		return err
	}
	pager, err := s.pager(ctx, opts.PageSize)
	if err != nil {
		return err
	}
	store, err := s.cursors(ctx)
	if err != nil {
		return err
	}
	from, err := s.resolveFrom(ctx, store, opts)
	if err != nil {
		return err
	}

	totals, err := pager.Remaining(ctx, opts.Entity, from)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s: %d records pending from OrderKey %d (%s)\n",
		opts.Entity, totals.Rows, from, humanize.Bytes(uint64(totals.Bytes)))
	return nil
}

func runCursorShow(cmd *cobra.Command, entity string) error {
	ctx := cmd.Context()
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	store, err := s.cursors(ctx)
	if err != nil {
		return err
	}

	if entity != "" {
		if err := s.requireEntity("cursor.show", entity); err != nil {
			return err
		}
		last, ok, err := store.Load(ctx, entity)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(s.out, "%s: (none)\n", entity)
			return nil
		}
		fmt.Fprintf(s.out, "%s: %d\n", entity, last)
		return nil
	}

	all, err := store.All(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(s.out, "no cursors stored")
		return nil
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "%s: %d\n", name, all[name])
	}
	return nil
}

func runCursorSet(cmd *cobra.Command, entity, rawKey string) error {
	const op = "cursor.set"
	key, err := strconv.ParseInt(rawKey, 10, 64)
	if err != nil {
		return &etl.Error{Kind: etl.Config, Op: op, Err: fmt.Errorf("invalid OrderKey %q: %w", rawKey, err)}
	}

	ctx := cmd.Context()
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireEntity(op, entity); err != nil {
		return err
	}
	store, err := s.cursors(ctx)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, entity, key); err != nil {
		return &etl.Error{Kind: etl.Transient, Op: op, Err: err}
	}
	s.log.WithFields(logrus.Fields{"entity": entity, "cursor": key}).Info("cursor overridden")
	fmt.Fprintf(s.out, "%s: %d\n", entity, key)
	return nil
}
