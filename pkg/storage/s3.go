package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/brimdata/docpipe/dperr"
)

type S3Engine struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
}

var _ Engine = (*S3Engine)(nil)

// NewS3 returns an engine configured from the environment.  The endpoint
// may be overridden with AWS_S3_ENDPOINT for S3-compatible stores.
func NewS3() *S3Engine {
	cfg := aws.NewConfig()
	if endpoint := os.Getenv("AWS_S3_ENDPOINT"); endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		SharedConfigState: session.SharedConfigEnable,
	}))
	return NewS3WithClient(s3.New(sess))
}

func NewS3WithClient(client s3iface.S3API) *S3Engine {
	return &S3Engine{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
	}
}

func bucketKey(u *URI) (string, string) {
	return u.Host, strings.TrimPrefix(u.Path, "/")
}

func (s *S3Engine) Get(ctx context.Context, u *URI) (io.ReadCloser, error) {
	bucket, key := bucketKey(u)
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapErr(u, err)
	}
	return out.Body, nil
}

func (s *S3Engine) Put(ctx context.Context, u *URI) (io.WriteCloser, error) {
	bucket, key := bucketKey(u)
	pr, pw := io.Pipe()
	w := &s3Writer{pw: pw, done: make(chan struct{})}
	go func() {
		_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		w.err = wrapErr(u, err)
		close(w.done)
		pr.CloseWithError(err)
	}()
	return w, nil
}

func (s *S3Engine) Delete(ctx context.Context, u *URI) error {
	bucket, key := bucketKey(u)
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return wrapErr(u, err)
}

func (s *S3Engine) Exists(ctx context.Context, u *URI) (bool, error) {
	bucket, key := bucketKey(u)
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if dperr.IsKind(wrapErr(u, err), dperr.NamespaceError) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Engine) List(ctx context.Context, u *URI) ([]Info, error) {
	bucket, prefix := bucketKey(u)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var infos []Info
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			infos = append(infos, Info{
				Name: strings.TrimPrefix(aws.StringValue(obj.Key), prefix),
				Size: aws.Int64Value(obj.Size),
			})
		}
		return true
	})
	if err != nil {
		return nil, wrapErr(u, err)
	}
	return infos, nil
}

type s3Writer struct {
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

func (w *s3Writer) Write(b []byte) (int, error) {
	return w.pw.Write(b)
}

func (w *s3Writer) Close() error {
	err := w.pw.Close()
	<-w.done
	if err != nil {
		return err
	}
	return w.err
}

func wrapErr(u *URI, err error) error {
	if err == nil {
		return nil
	}
	var reqerr awserr.RequestFailure
	if errors.As(err, &reqerr) && reqerr.StatusCode() == http.StatusNotFound {
		return dperr.E(dperr.NamespaceError, dperr.NamespaceNotFound, "%s: object does not exist", u)
	}
	return err
}
