// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package azblob implements a store.Store on Azure Blob Storage, one blob per key.
// Updates are conditional writes on the blob ETag.
package azblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/mia-platform/logrelay/internal/store"
)

const (
	backendName = "azblob"

	blobSuffix = ".json"

	maxUpdateAttempts = 10
)

var (
	// ErrMissingAccount is returned when neither a connection string nor an account name is configured.
	ErrMissingAccount = errors.New("one of connection string or account name must be present")
	// ErrMissingContainer is returned when the container name is empty.
	ErrMissingContainer = errors.New("container name is required")
)

var (
	_ store.Store   = &blobStore{}
	_ store.Updater = &blobStore{}
)

// Config selects the storage account and container.
type Config struct {
	ConnectionString string
	AccountName      string
	Container        string
}

func (c Config) validate() error {
	switch {
	case len(c.ConnectionString) == 0 && len(c.AccountName) == 0:
		return ErrMissingAccount
	case len(c.Container) == 0:
		return ErrMissingContainer
	}
	return nil
}

// serviceURL accepts both a bare account name and a full blob endpoint.
func (c Config) serviceURL() string {
	if strings.Contains(c.AccountName, ".blob.core.windows.net") {
		return c.AccountName
	}

	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.AccountName)
}

type blobStore struct {
	client    *azblob.Client
	container string
}

// New builds the blob client and makes sure the container exists. Without a
// connection string the default Azure credential chain is used.
func New(ctx context.Context, cfg Config) (store.Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, store.Wrap(backendName, "", err)
	}

	client, err := newClient(cfg)
	if err != nil {
		return nil, store.Wrap(backendName, "", err)
	}

	_, err = client.CreateContainer(ctx, cfg.Container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, store.Wrap(backendName, "", err)
	}

	return &blobStore{
		client:    client,
		container: cfg.Container,
	}, nil
}

func newClient(cfg Config) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}

	var credentials azcore.TokenCredential
	credentials, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}

	return azblob.NewClient(cfg.serviceURL(), credentials, nil)
}

func blobName(key string) string {
	return key + blobSuffix
}

func (s *blobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, etag, err := s.download(ctx, key)
	if err != nil {
		return nil, store.Wrap(backendName, key, err)
	}
	if etag == nil {
		return nil, store.ErrNotFound
	}
	return data, nil
}

func (s *blobStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.client.UploadBuffer(ctx, s.container, blobName(key), value, nil)
	return store.Wrap(backendName, key, err)
}

func (s *blobStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, blobName(key), nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil
	}
	return store.Wrap(backendName, key, err)
}

// Update reads the blob with its ETag and writes the result of update only if
// the blob is unchanged, retrying when another writer got there first.
func (s *blobStore) Update(ctx context.Context, key string, update store.UpdateFunc) error {
	for range maxUpdateAttempts {
		current, etag, err := s.download(ctx, key)
		if err != nil {
			return store.Wrap(backendName, key, err)
		}

		next, err := update(current)
		if err != nil {
			return err
		}

		err = s.conditionalWrite(ctx, key, next, etag)
		if isConflict(err) {
			continue
		}
		return store.Wrap(backendName, key, err)
	}
	return store.Wrap(backendName, key, store.ErrConflict)
}

func (s *blobStore) Close() error {
	return nil
}

// download returns a nil ETag when the blob does not exist.
func (s *blobStore) download(ctx context.Context, key string) ([]byte, *azcore.ETag, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, blobName(key), nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	etag := resp.ETag
	if etag == nil {
		etag = anyETag()
	}
	return data, etag, nil
}

// conditionalWrite stores value, or deletes the blob when value is nil, only if
// the blob still matches etag. A nil etag requires the blob to be missing.
func (s *blobStore) conditionalWrite(ctx context.Context, key string, value []byte, etag *azcore.ETag) error {
	conditions := &blob.ModifiedAccessConditions{IfMatch: etag}
	if etag == nil {
		conditions = &blob.ModifiedAccessConditions{IfNoneMatch: anyETag()}
	}
	access := &blob.AccessConditions{ModifiedAccessConditions: conditions}

	if value == nil {
		if etag == nil {
			return nil
		}
		_, err := s.client.DeleteBlob(ctx, s.container, blobName(key), &azblob.DeleteBlobOptions{AccessConditions: access})
		return err
	}

	_, err := s.client.UploadBuffer(ctx, s.container, blobName(key), value, &azblob.UploadBufferOptions{AccessConditions: access})
	return err
}

func anyETag() *azcore.ETag {
	etag := azcore.ETagAny
	return &etag
}

func isConflict(err error) bool {
	return bloberror.HasCode(err, bloberror.ConditionNotMet, bloberror.BlobAlreadyExists, bloberror.BlobNotFound)
}
