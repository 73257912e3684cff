package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultUploadExpiry   = 15 * time.Minute
	defaultDownloadExpiry = 5 * time.Minute
	maxDownloadExpiry     = 15 * time.Minute
)

var (
	errNoSigner           = errors.New("storage: signer is required")
	errInvalidBucket      = errors.New("storage: bucket name is required")
	errInvalidObject      = errors.New("storage: object name is required")
	errContentTypeMissing = errors.New("storage: content type is required for uploads")
	errContentTypeDenied  = errors.New("storage: content type not allowed")
	errExpiryTooLong      = errors.New("storage: expiry exceeds permitted maximum")
)

// AttachmentClient mints signed upload and download URLs for chat attachments
// stored in a single bucket.
type AttachmentClient struct {
	signer Signer
	bucket string
	scheme storage.SigningScheme
	now    func() time.Time

	allowedContentTypes []string
	maxUploadSize       int64
}

// AttachmentClientOption customises client behaviour.
type AttachmentClientOption func(*AttachmentClient)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) AttachmentClientOption {
	return func(c *AttachmentClient) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithAllowedContentTypes restricts the content types accepted for uploads.
// Entries may use a trailing wildcard, e.g. "image/*".
func WithAllowedContentTypes(types ...string) AttachmentClientOption {
	return func(c *AttachmentClient) {
		c.allowedContentTypes = append([]string(nil), types...)
	}
}

// WithMaxUploadSize enforces an upper bound on uploaded object size in bytes.
func WithMaxUploadSize(size int64) AttachmentClientOption {
	return func(c *AttachmentClient) {
		if size > 0 {
			c.maxUploadSize = size
		}
	}
}

// NewAttachmentClient constructs a signed URL client bound to the given bucket.
func NewAttachmentClient(signer Signer, bucket string, opts ...AttachmentClientOption) (*AttachmentClient, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}

	client := &AttachmentClient{
		signer: signer,
		bucket: bucket,
		scheme: storage.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SignedURLResult describes the generated signed URL details.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// UploadURL mints a signed PUT URL for the object with the declared content type.
func (c *AttachmentClient) UploadURL(ctx context.Context, object, contentType string) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return SignedURLResult{}, errContentTypeMissing
	}
	if len(c.allowedContentTypes) > 0 && !contentTypeAllowed(contentType, c.allowedContentTypes) {
		return SignedURLResult{}, errContentTypeDenied
	}

	expiresAt := c.now().Add(defaultUploadExpiry)
	headers := map[string]string{"Content-Type": contentType}

	urlOpts := storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         c.scheme,
		Method:         "PUT",
		ContentType:    contentType,
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	}
	if c.maxUploadSize > 0 {
		sizeRange := fmt.Sprintf("0,%d", c.maxUploadSize)
		urlOpts.Headers = []string{"x-goog-content-length-range:" + sizeRange}
		headers["x-goog-content-length-range"] = sizeRange
	}

	signedURL, err := storage.SignedURL(c.bucket, object, &urlOpts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return SignedURLResult{
		URL:       signedURL,
		Method:    "PUT",
		ExpiresAt: expiresAt,
		Headers:   headers,
	}, nil
}

// DownloadURL mints a signed GET URL for the object. An optional disposition
// filename forces a download prompt in browsers.
func (c *AttachmentClient) DownloadURL(ctx context.Context, object, dispositionName string, expiresIn time.Duration) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}

	if expiresIn <= 0 {
		expiresIn = defaultDownloadExpiry
	}
	if expiresIn > maxDownloadExpiry {
		return SignedURLResult{}, errExpiryTooLong
	}
	expiresAt := c.now().Add(expiresIn)

	urlOpts := storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         c.scheme,
		Method:         "GET",
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	}
	if name := strings.TrimSpace(dispositionName); name != "" {
		query := url.Values{}
		query.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", name))
		urlOpts.QueryParameters = query
	}

	signedURL, err := storage.SignedURL(c.bucket, object, &urlOpts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign download url: %w", err)
	}

	return SignedURLResult{
		URL:       signedURL,
		Method:    "GET",
		ExpiresAt: expiresAt,
	}, nil
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if candidate == "*" {
			return true
		}
		if strings.HasSuffix(candidate, "/*") {
			if strings.HasPrefix(normalized, strings.TrimSuffix(candidate, "*")) {
				return true
			}
			continue
		}
		if normalized == candidate {
			return true
		}
	}
	return false
}
