// Package s3 provides a photo provider over an S3/MinIO bucket.
//
// The bucket listing under the configured prefix is indexed once at open;
// taken-times come from object Last-Modified and exact sizes from the
// listing. The first key segment under the prefix doubles as the album.
package s3

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/photosweep/photosweep/internal/logging"
	"github.com/photosweep/photosweep/internal/metrics"
	"github.com/photosweep/photosweep/internal/photostore"
)

// Config holds S3 connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Provider implements photostore.Provider over an S3 bucket.
type Provider struct {
	client *awss3.Client
	bucket string
	prefix string
	index  *photostore.Index

	mu    sync.Mutex
	sizes map[string]int64
}

// New creates an S3 provider and indexes the bucket prefix.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
			}, nil
		},
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.UsePathStyle = true
	})

	p := &Provider{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		index:  photostore.NewIndex(),
		sizes:  make(map[string]int64),
	}
	if err := p.Rescan(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Rescan rebuilds the descriptor index from the bucket listing.
func (p *Provider) Rescan(ctx context.Context) error {
	start := time.Now()
	var descs []photostore.Descriptor
	sizes := make(map[string]int64)

	paginator := awss3.NewListObjectsV2Paginator(p.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.prefix),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list bucket %s: %w", p.bucket, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			id := strings.TrimPrefix(key, p.prefix)
			id = strings.TrimPrefix(id, "/")
			if id == "" || strings.HasSuffix(id, "/") {
				continue
			}
			d := photostore.Descriptor{
				ID:  id,
				URI: "s3://" + p.bucket + "/" + key,
			}
			if obj.LastModified != nil {
				d.TakenAt = obj.LastModified.UnixMilli()
			}
			descs = append(descs, d)
			sizes[id] = aws.ToInt64(obj.Size)
		}
	}

	p.index.Replace(descs)
	p.mu.Lock()
	p.sizes = sizes
	p.mu.Unlock()
	metrics.RecordProviderOp("s3", "scan", time.Since(start))
	logging.Info("bucket indexed",
		zap.String("bucket", p.bucket),
		zap.String("prefix", p.prefix),
		zap.Int("assets", len(descs)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (p *Provider) key(id string) string {
	if p.prefix == "" {
		return id
	}
	return strings.TrimSuffix(p.prefix, "/") + "/" + id
}

func match(scope photostore.Scope) func(photostore.Descriptor) bool {
	return func(d photostore.Descriptor) bool {
		if !scope.IsRange() {
			return strings.HasPrefix(d.ID, scope.AlbumID+"/")
		}
		return d.TakenAt >= scope.Start && d.TakenAt < scope.End
	}
}

// FirstPage returns the first page of descriptors for a scope.
func (p *Provider) FirstPage(ctx context.Context, scope photostore.Scope, pageSize int) (photostore.Page, error) {
	if err := ctx.Err(); err != nil {
		return photostore.Page{}, err
	}
	return p.index.Page(match(scope), "", pageSize), nil
}

// NextPage continues enumeration after the given cursor.
func (p *Provider) NextPage(ctx context.Context, scope photostore.Scope, after string, pageSize int) (photostore.Page, error) {
	if err := ctx.Err(); err != nil {
		return photostore.Page{}, err
	}
	return p.index.Page(match(scope), after, pageSize), nil
}

// NearestBefore returns the newest TakenAt strictly older than ts.
func (p *Provider) NearestBefore(ctx context.Context, ts int64) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	found, ok := p.index.NearestBefore(ts)
	return found, ok, nil
}

// Resolve returns the exact object size, served from the listing cache
// when available. Objects not seen by the last scan fall back to a
// HeadObject round trip.
func (p *Provider) Resolve(ctx context.Context, d photostore.Descriptor) (photostore.Resolution, error) {
	p.mu.Lock()
	size, cached := p.sizes[d.ID]
	p.mu.Unlock()
	if cached {
		return photostore.Resolution{URI: d.URI, ByteSize: size}, nil
	}

	start := time.Now()
	out, err := p.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(d.ID)),
	})
	metrics.RecordProviderOp("s3", "resolve", time.Since(start))
	if err != nil {
		return photostore.Resolution{}, fmt.Errorf("head object %s: %w", d.ID, err)
	}
	return photostore.Resolution{
		URI:      d.URI,
		ByteSize: aws.ToInt64(out.ContentLength),
	}, nil
}

// Delete removes the given objects with one DeleteObjects call. Any
// per-object error fails the whole batch.
func (p *Provider) Delete(ctx context.Context, ids []string) error {
	start := time.Now()
	defer func() { metrics.RecordProviderOp("s3", "delete", time.Since(start)) }()

	objects := make([]types.ObjectIdentifier, len(ids))
	for i, id := range ids {
		objects[i] = types.ObjectIdentifier{Key: aws.String(p.key(id))}
	}

	out, err := p.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
		Bucket: aws.String(p.bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return fmt.Errorf("delete objects: %d failed, first: %s (%s)",
			len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
	}

	p.index.Remove(ids)
	p.mu.Lock()
	for _, id := range ids {
		delete(p.sizes, id)
	}
	p.mu.Unlock()
	return nil
}

// Type returns the provider type identifier.
func (p *Provider) Type() string {
	return "s3"
}

// Close releases resources (the AWS client needs no explicit close).
func (p *Provider) Close() error {
	return nil
}
