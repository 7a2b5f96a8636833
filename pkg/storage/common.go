package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const (
	// IpfsPrefix is the URI scheme prefix recognized for IPFS content.
	IpfsPrefix = "ipfs://"
	// FilecoinPrefix is the URI scheme prefix recognized for Filecoin/Lighthouse content.
	FilecoinPrefix = "filecoin://"
)

// Storage is the blob store used by the archiver.
type Storage interface {
	ReadFile(ctx context.Context, uri string) ([]byte, error)
	UploadJSON(ctx context.Context, data any) (string, error)
}

// LighthouseFetcher fetches content from a Lighthouse gateway.
type LighthouseFetcher interface {
	Fetch(ctx context.Context, endpoint, cid string) ([]byte, error)
}

// IPFSBackend fetches and stores content addressed by CID on IPFS.
type IPFSBackend interface {
	Fetch(ctx context.Context, hash string) ([]byte, error)
	Upload(ctx context.Context, data []byte) (string, error)
}

// Client aggregates the configured storage backends.
type Client struct {
	// LighthouseURL is the base URL of the Lighthouse HTTP gateway.
	LighthouseURL string

	lighthouse LighthouseFetcher
	ipfs       IPFSBackend
}

// NewStorage constructs a Client using the provided IPFS API endpoint and
// Lighthouse gateway URL.
func NewStorage(ipfsURL, lighthouseURL string) (*Client, error) {
	api, err := NewIPFSClient(ipfsURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		LighthouseURL: lighthouseURL,
		lighthouse:    defaultLighthouseFetcher{},
		ipfs:          newIPFSBackend(api),
	}, nil
}

// ReadFile fetches content identified by the given hash/URI. If the input has
// the "filecoin://" prefix, it is retrieved via the Lighthouse gateway;
// otherwise, the content is fetched from IPFS.
func (c *Client) ReadFile(ctx context.Context, uri string) ([]byte, error) {
	if strings.HasPrefix(uri, FilecoinPrefix) {
		if c.lighthouse == nil {
			c.lighthouse = defaultLighthouseFetcher{}
		}
		return c.lighthouse.Fetch(ctx, c.LighthouseURL, formatHash(uri))
	}
	if c.ipfs == nil {
		return nil, fmt.Errorf("ipfs client not configured")
	}
	return c.ipfs.Fetch(ctx, formatHash(uri))
}

// UploadJSON serializes data to JSON, uploads it to IPFS and returns the
// ipfs:// URI.
func (c *Client) UploadJSON(ctx context.Context, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		zap.L().Error("error marshaling data to json", zap.Error(err))
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if c.ipfs == nil {
		return "", fmt.Errorf("ipfs client not configured")
	}
	return c.ipfs.Upload(ctx, jsonData)
}

type defaultLighthouseFetcher struct{}

func (defaultLighthouseFetcher) Fetch(ctx context.Context, endpoint, cid string) ([]byte, error) {
	return GetLighthouseFile(ctx, endpoint, cid)
}

var specialCharacters = regexp.MustCompile("[^a-zA-Z0-9=]")

// formatHash removes known URI scheme prefixes and any character other than
// ASCII letters, digits and '='.
func formatHash(hash string) string {
	hash = strings.TrimPrefix(hash, IpfsPrefix)
	hash = strings.TrimPrefix(hash, FilecoinPrefix)
	return specialCharacters.ReplaceAllString(hash, "")
}

var _ Storage = (*Client)(nil)
