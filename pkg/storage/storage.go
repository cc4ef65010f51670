// Package storage opens source objects by URI. Plain paths and file:// URIs
// read the local filesystem, s3:// goes through the AWS SDK download
// manager and gs:// through the Cloud Storage client.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/stratus/pkg/compression"
	"github.com/ajitpratap0/stratus/pkg/errors"
)

// Options carries the credentials and endpoints of remote stores
type Options struct {
	// Region is the AWS region; empty uses the SDK's default chain
	Region string `mapstructure:"region"`
	// Endpoint overrides the S3 endpoint, e.g. for MinIO
	Endpoint string `mapstructure:"endpoint"`
	// CredentialsFile is a Google service account file
	CredentialsFile string `mapstructure:"credentials_file"`
}

// Location is a parsed object URI
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURI splits uri into scheme, bucket and key. Paths without a scheme
// are local files.
func ParseURI(uri string) (Location, error) {
	if uri == "" {
		return Location{}, errors.New(errors.ErrorTypeValidation, "empty storage uri")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: "file", Key: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, errors.Wrap(err, errors.ErrorTypeValidation, "invalid storage uri")
	}
	switch u.Scheme {
	case "file":
		return Location{Scheme: "file", Key: u.Host + u.Path}, nil
	case "s3", "gs":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, errors.Newf(errors.ErrorTypeValidation, "%s uri needs a bucket and a key: %s", u.Scheme, uri)
		}
		return Location{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
	default:
		return Location{}, errors.Newf(errors.ErrorTypeValidation, "unsupported storage scheme %q", u.Scheme)
	}
}

// Open returns the raw object bytes at uri
func Open(ctx context.Context, uri string, opts Options) (io.ReadCloser, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case "s3":
		return openS3(ctx, loc, opts)
	case "gs":
		return openGCS(ctx, loc, opts)
	default:
		f, err := os.Open(loc.Key)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, fmt.Sprintf("failed to open %s", loc.Key))
		}
		return f, nil
	}
}

// OpenDecompressed opens uri and decompresses it according to its extension
func OpenDecompressed(ctx context.Context, uri string, opts Options) (io.ReadCloser, error) {
	raw, err := Open(ctx, uri, opts)
	if err != nil {
		return nil, err
	}
	r, err := compression.NewReader(raw, compression.DetectAlgorithm(uri))
	if err != nil {
		raw.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeIO, fmt.Sprintf("failed to decompress %s", uri))
	}
	return &stackedReader{ReadCloser: r, under: raw}, nil
}

// ReadAll reads and decompresses the whole object
func ReadAll(ctx context.Context, uri string, opts Options) ([]byte, error) {
	r, err := OpenDecompressed(ctx, uri, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, fmt.Sprintf("failed to read %s", uri))
	}
	return data, nil
}

// stackedReader closes the decoder and then the object it reads from
type stackedReader struct {
	io.ReadCloser
	under io.Closer
}

func (s *stackedReader) Close() error {
	err := s.ReadCloser.Close()
	if uerr := s.under.Close(); err == nil {
		err = uerr
	}
	return err
}

func openS3(ctx context.Context, loc Location, opts Options) (io.ReadCloser, error) {
	var cfgOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to load AWS config")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	buf := manager.NewWriteAtBuffer(nil)
	downloader := manager.NewDownloader(client)
	if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, fmt.Sprintf("failed to download s3://%s/%s", loc.Bucket, loc.Key))
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

type gcsReader struct {
	*gcs.Reader
	client *gcs.Client
}

func (r *gcsReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func openGCS(ctx context.Context, loc Location, opts Options) (io.ReadCloser, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}
	r, err := client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeIO, fmt.Sprintf("failed to open gs://%s/%s", loc.Bucket, loc.Key))
	}
	return &gcsReader{Reader: r, client: client}, nil
}
