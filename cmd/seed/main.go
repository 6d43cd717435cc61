package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nellyolofsson/wt2/internal/config"
	"github.com/nellyolofsson/wt2/internal/database"
	"github.com/nellyolofsson/wt2/internal/importer"
	"github.com/nellyolofsson/wt2/internal/media"
	"github.com/nellyolofsson/wt2/internal/storage"
	"github.com/nellyolofsson/wt2/internal/store"
	"github.com/nellyolofsson/wt2/pkg/logger"
)

func main() {
	file := flag.String("file", "", "local CSV dataset to import")
	object := flag.String("object", "", "MinIO object key of the dataset (default MINIO_DATASET_OBJECT)")
	upload := flag.Bool("upload", false, "upload -file to MinIO under -object before importing")
	share := flag.Duration("share", 0, "print a presigned download URL of the dataset valid for this long")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MongoDB.URI == "" {
		logger.Fatalf("MONGODB_URI is required to seed the catalog")
	}
	client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	col := client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection)
	if err := database.EnsureIndexes(ctx, col, media.TitleSchema.UniqueFields()); err != nil {
		logger.Fatalf("%v", err)
	}

	src, err := openDataset(ctx, *file, *object, *upload, *share)
	if err != nil {
		logger.Fatalf("open dataset: %v", err)
	}
	defer src.Close()

	svc := media.NewService(store.NewMongoStore(col))
	im := importer.New(svc, media.TitleSchema, importer.WithColumn("release_year", media.FieldReleaseYear))
	res, err := im.Import(ctx, src)
	if err != nil {
		logger.Fatalf("import failed after %d rows: %v", res.Inserted, err)
	}
	for _, f := range res.Failed {
		logger.Warnf("%v", f)
	}
	logger.Infof("seeded %d titles into %s.%s (%d rejected)", res.Inserted, cfg.MongoDB.Database, cfg.MongoDB.Collection, len(res.Failed))
}

// openDataset reads from the local file unless an object is requested or
// only MinIO is configured.
func openDataset(ctx context.Context, file, object string, upload bool, share time.Duration) (io.ReadCloser, error) {
	mcfg := storage.LoadMinIOConfig()
	useMinIO := object != "" || upload || share > 0 || (file == "" && mcfg.Enabled())
	if !useMinIO {
		if file == "" {
			return nil, errors.New("one of -file or -object is required")
		}
		return os.Open(file)
	}

	if object == "" {
		object = mcfg.Object
	}
	st, err := storage.NewMinIOStorage(ctx, mcfg)
	if err != nil {
		return nil, err
	}
	if upload {
		if err := uploadFile(ctx, st, file, object); err != nil {
			return nil, err
		}
	}
	if share > 0 {
		link, err := st.GetPresignedURL(ctx, object, share)
		if err != nil {
			return nil, err
		}
		logger.Infof("dataset available for %s at %s", share, link)
	}
	return st.DownloadFile(ctx, object)
}

func uploadFile(ctx context.Context, st *storage.MinIOStorage, file, object string) error {
	if file == "" {
		return errors.New("-upload needs -file")
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if err := st.UploadFile(ctx, object, f, info.Size(), "text/csv"); err != nil {
		return err
	}
	logger.Infof("uploaded %s to %s", file, object)
	return nil
}
