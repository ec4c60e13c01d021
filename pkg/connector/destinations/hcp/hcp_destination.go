// Package hcp uploads crawled content to an HCP namespace or any other
// S3-compatible bucket, carrying the record fields as object metadata.
package hcp

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/base"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	stringpool "github.com/kennyhitachi/hci-connectors/pkg/strings"
)

// Name is the registry name of the destination.
const Name = "hcp"

const (
	defaultRegion         = "us-east-1"
	defaultUploadPartSize = 5 * 1024 * 1024
	// maxMetadataBytes is the user metadata limit of a PUT request.
	maxMetadataBytes = 2048
)

// HCPDestination implements core.Destination for an S3 compatible bucket.
type HCPDestination struct {
	*base.BaseConnector

	bucket    string
	prefix    string
	region    string
	endpoint  string
	pathStyle bool

	client   *s3.Client
	uploader *manager.Uploader

	uploaded int64
	skipped  int64
}

// NewHCPDestination creates a new HCP destination
func NewHCPDestination(_ *config.BaseConfig) (core.Destination, error) {
	return &HCPDestination{
		BaseConnector: base.NewBaseConnector(Name, core.ConnectorTypeDestination, "1.0.0"),
	}, nil
}

// Initialize builds the S3 client and uploader.
func (d *HCPDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	var err error
	if d.bucket, err = cfg.RequireString("bucket"); err != nil {
		return err
	}
	d.prefix = strings.Trim(cfg.String("prefix", ""), "/")
	d.region = cfg.String("region", defaultRegion)
	d.endpoint = cfg.String("endpoint", "")
	if d.pathStyle, err = cfg.Bool("path_style", true); err != nil {
		return err
	}
	partSize, err := cfg.Int("upload_part_size", defaultUploadPartSize)
	if err != nil {
		return err
	}
	if partSize < int(manager.MinUploadPartSize) {
		return errors.Newf(errors.ErrorTypeConfig, "upload_part_size must be at least %d", manager.MinUploadPartSize).
			WithDetail("property", "upload_part_size")
	}

	if err := d.initializeClient(ctx, cfg, int64(partSize)); err != nil {
		return err
	}

	d.GetLogger().Info("HCP destination initialized",
		zap.String("bucket", d.bucket),
		zap.String("prefix", d.prefix),
		zap.String("endpoint", d.endpoint),
		zap.Bool("path_style", d.pathStyle))
	return nil
}

func (d *HCPDestination) initializeClient(ctx context.Context, cfg *config.BaseConfig, partSize int64) error {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(d.region)}
	if accessKey := cfg.Secret("access_key"); accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, cfg.Secret("secret_key"), "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	d.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.endpoint != "" {
			o.BaseEndpoint = aws.String(d.endpoint)
		}
		o.UsePathStyle = d.pathStyle
		// HCP does not implement the flexible checksum headers
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	d.uploader = manager.NewUploader(d.client, func(u *manager.Uploader) {
		u.PartSize = partSize
		u.Concurrency = 1
	})
	return nil
}

// objectKey maps a record id to its key below the prefix.
func (d *HCPDestination) objectKey(id string) string {
	return path.Join(d.prefix, strings.TrimPrefix(id, "/"))
}

// Write uploads the content of a leaf record. Containers and records without
// content are skipped.
func (d *HCPDestination) Write(ctx context.Context, record *core.Record, content io.Reader) error {
	if err := d.CheckOpen(); err != nil {
		return err
	}
	if record.IsContainer || content == nil {
		d.skipped++
		return nil
	}

	key := d.objectKey(record.ID)
	counter := &countingReader{r: content}
	_, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(d.bucket),
		Key:      aws.String(key),
		Body:     counter,
		Metadata: objectMetadata(record.Document()),
	})
	if err != nil {
		return d.GetErrorHandler().Surface(err, errors.ErrorTypeOperationFailed,
			"failed to upload object", zap.String("key", key))
	}

	d.uploaded++
	d.GetMetricsCollector().RecordBytes(counter.n)
	return nil
}

// Metrics adds upload counters.
func (d *HCPDestination) Metrics() map[string]interface{} {
	m := d.BaseConnector.Metrics()
	m["objects_uploaded"] = d.uploaded
	m["records_skipped"] = d.skipped
	return m
}

// objectMetadata converts record fields into user metadata. Keys are
// lowercased with unsupported characters replaced by '-'; values are
// ASCII-escaped. Fields are added in key order until the size limit.
func objectMetadata(doc map[string]interface{}) map[string]string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(keys))
	size := 0
	for _, k := range keys {
		name := metadataKey(k)
		value := asciiValue(stringpool.ValueToString(doc[k]))
		if size+len(name)+len(value) > maxMetadataBytes {
			continue
		}
		size += len(name) + len(value)
		out[name] = value
	}
	return out
}

func metadataKey(k string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(k) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

func asciiValue(v string) string {
	var sb strings.Builder
	for _, r := range v {
		switch {
		case r >= 0x20 && r < 0x7f:
			sb.WriteRune(r)
		case r == '\n' || r == '\t':
			sb.WriteByte(' ')
		default:
			sb.WriteString("?")
		}
	}
	return sb.String()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
